package ai

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const doneSentinel = "[DONE]"

type sseEvent struct {
	Event string
	Data  string
}

// sseDecoder reads text/event-stream frames. Lines that carry no known field
// are kept as data so that non-conforming upstreams still reach the caller.
type sseDecoder struct {
	r *bufio.Reader
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next dispatched event. A pending event is flushed at EOF.
func (d *sseDecoder) Next() (sseEvent, error) {
	var (
		ev   sseEvent
		data []string
		seen bool
	)
	for {
		line, err := d.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if seen && (err == nil || errors.Is(err, io.EOF)) {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		default:
			name, value := splitSSEField(line)
			switch name {
			case "data":
				data = append(data, value)
				seen = true
			case "event":
				ev.Event = value
			case "id", "retry":
			default:
				data = append(data, line)
				seen = true
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) && seen {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			return sseEvent{}, err
		}
	}
}

func splitSSEField(line string) (string, string) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimPrefix(line[i+1:], " ")
}
