// Package sse reads server-sent event streams produced by LLM backends.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE line; completion deltas are far smaller.
const maxLineSize = 1 << 20

// Event is one dispatched server-sent event.
type Event struct {
	Name string // "event:" field, empty for unnamed events
	Data string // "data:" lines joined with "\n"
}

// Scan reads events from r and hands each one to fn in arrival order.
// Scanning stops when fn returns false, when fn returns an error, or at the
// end of r. A trailing event without a blank line is still dispatched.
func Scan(r io.Reader, fn func(Event) (bool, error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		name    string
		data    []string
		pending bool
	)

	dispatch := func() (bool, error) {
		if !pending {
			return true, nil
		}
		event := Event{Name: name, Data: strings.Join(data, "\n")}
		name, data, pending = "", nil, false
		return fn(event)
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			more, err := dispatch()
			if err != nil || !more {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			name = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	_, err := dispatch()
	return err
}
