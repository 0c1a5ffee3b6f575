package agent

import (
	"bufio"
	"bytes"
	"io"
)

// maxEventSize bounds a single SSE line.
const maxEventSize = 1 << 20

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReaderSize(r, 64*1024)}
}

// ReadEvent returns the next event name and its joined data lines.
// io.EOF is returned once the stream ends with no pending data.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var (
		eventType string
		dataLines [][]byte
		size      int
	)
	flush := func() (string, []byte, error) {
		return eventType, bytes.Join(dataLines, []byte("\n")), nil
	}
	for {
		line, err := s.reader.ReadBytes('\n')
		eof := err == io.EOF && len(line) > 0
		if err != nil && !eof {
			if err == io.EOF && len(dataLines) > 0 {
				return flush()
			}
			return "", nil, err
		}
		size += len(line)
		if size > maxEventSize {
			return "", nil, bufio.ErrBufferFull
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return flush()
			}
			eventType, size = "", 0
			continue
		}

		switch {
		case line[0] == ':':
			// keep-alive comment
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := line[len("data:"):]
			if len(data) > 0 && data[0] == ' ' {
				data = data[1:]
			}
			dataLines = append(dataLines, append([]byte(nil), data...))
		}
		// id: and retry: are ignored; sessions are never resumed.

		if eof {
			if len(dataLines) > 0 {
				return flush()
			}
			return "", nil, io.EOF
		}
	}
}
