package systray

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"runtime"

	"serial-led-bridge/internal/events"
	"serial-led-bridge/internal/logger"

	"fyne.io/systray"
)

const (
	appTitle = "LED Serial Bridge"
	iconSize = 32
)

// Run shows the tray icon and blocks until Exit is chosen or Quit is called.
// onStart runs on its own goroutine once the tray is ready; onExit runs when
// the tray loop ends.
func Run(onStart func(), onExit func(), panelURL string) {
	systray.Run(func() { onReady(onStart, panelURL) }, func() {
		logger.Info("Exiting application.")
		if onExit != nil {
			onExit()
		}
	})
}

// Quit ends the tray loop from outside the menu, e.g. on a signal.
func Quit() {
	systray.Quit()
}

func onReady(onStart func(), panelURL string) {
	icon, err := iconData(runtime.GOOS)
	if err != nil {
		logger.Warn("Could not build tray icon: %v", err)
	} else {
		systray.SetIcon(icon)
	}
	systray.SetTitle(appTitle)
	systray.SetTooltip(tooltip(events.Disconnected))

	mPanel := systray.AddMenuItem("Open Control Panel", "Open the LED control panel in the browser")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Exit", "Stop the bridge")

	go onStart()
	events.StartListener(func(status events.ComPortStatus) {
		systray.SetTooltip(tooltip(status))
	})

	go func() {
		for {
			select {
			case <-mPanel.ClickedCh:
				openBrowser(panelURL)
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func tooltip(status events.ComPortStatus) string {
	return fmt.Sprintf("%s (device %s)", appTitle, status)
}

// openBrowser opens the specified URL in the default browser.
func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}
	if err != nil {
		logger.Error("Failed to open browser: %v", err)
	}
}

// iconData draws a round LED icon. Windows wants an .ico container, the
// other platforms take the PNG directly.
func iconData(goos string) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	led := color.NRGBA{R: 0x2e, G: 0xcc, B: 0x40, A: 0xff}
	c := float64(iconSize-1) / 2
	r2 := (c - 1) * (c - 1)
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := float64(x)-c, float64(y)-c
			if dx*dx+dy*dy <= r2 {
				img.Set(x, y, led)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode icon: %w", err)
	}
	if goos != "windows" {
		return buf.Bytes(), nil
	}
	return wrapICO(buf.Bytes(), iconSize), nil
}

// wrapICO stores a PNG image as the single entry of an ICO file.
func wrapICO(pngData []byte, size int) []byte {
	var ico bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&ico, le, [3]uint16{0, 1, 1}) // reserved, type icon, one image
	ico.Write([]byte{byte(size), byte(size), 0, 0})
	binary.Write(&ico, le, uint16(1))  // color planes
	binary.Write(&ico, le, uint16(32)) // bits per pixel
	binary.Write(&ico, le, uint32(len(pngData)))
	binary.Write(&ico, le, uint32(6+16)) // header plus one directory entry
	ico.Write(pngData)
	return ico.Bytes()
}
