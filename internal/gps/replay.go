package gps

import (
	"bufio"
	"bytes"
	"io"
	"time"
)

// replayPort feeds recorded NMEA through a pipe as if it came off a serial
// line.
type replayPort struct {
	*io.PipeReader
}

// NewReplayReceiver returns a Receiver that plays back the NMEA lines in data,
// one line every interval, looping until the receiver is closed. It stands in
// for a receiver during development.
func NewReplayReceiver(data []byte, interval time.Duration) *Receiver[*replayPort] {
	r, w := io.Pipe()

	var lines [][]byte
	scan := bufio.NewScanner(bytes.NewReader(data))
	for scan.Scan() {
		if line := bytes.TrimSpace(scan.Bytes()); len(line) > 0 {
			lines = append(lines, append(append([]byte(nil), line...), '\n'))
		}
	}

	go func() {
		defer w.Close()
		if len(lines) == 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(lines) {
			if _, err := w.Write(lines[i]); err != nil {
				// reader closed
				return
			}
			<-ticker.C
		}
	}()

	return NewReceiver(&replayPort{PipeReader: r}, nil)
}
