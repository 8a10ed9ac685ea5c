package serial

import (
	"bufio"
	"bytes"
	"io"
)

// maxLineLength caps a single device line.
const maxLineLength = 64 * 1024

// ScanCRLFLines is a bufio.SplitFunc for "\r\n" terminated lines. A bare "\n"
// also ends a line; the trailing "\r" is never part of the token.
func ScanCRLFLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}
	if atEOF {
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}

// ReadLines reads r until it fails, calling fn for every complete line.
// It returns nil at EOF.
func ReadLines(r io.Reader, fn func(line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024), maxLineLength)
	scanner.Split(ScanCRLFLines)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	return scanner.Err()
}
