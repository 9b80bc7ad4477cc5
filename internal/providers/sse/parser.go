// Package sse implements the shared Server-Sent-Events parser used by every
// provider stream (spec §4.D): chunked-byte buffering, data-line extraction,
// and [DONE]/comment/empty-payload filtering.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"unicode/utf8"
)

// Options configures parser behaviour that differs between providers.
type Options struct {
	// ProcessRemainingBuffer controls whether a trailing, unterminated line
	// at stream end is still parsed. Google needs this; OpenAI terminates
	// explicitly with a "[DONE]" line and does not.
	ProcessRemainingBuffer bool
}

// DefaultOptions processes the remaining buffer at stream end.
func DefaultOptions() Options {
	return Options{ProcessRemainingBuffer: true}
}

// Parser consumes chunked bytes from an io.Reader and yields "data:" payload
// strings, skipping [DONE] markers, comments, and empty lines.
type Parser struct {
	r       *bufio.Reader
	opts    Options
	pending []byte
}

// NewParser wraps r with the shared SSE line-extraction rules.
func NewParser(r io.Reader, opts Options) *Parser {
	return &Parser{r: bufio.NewReaderSize(r, 8192), opts: opts}
}

// Next returns the next non-empty data payload, or io.EOF once the stream
// is exhausted (including, if configured, one final unterminated line).
func (p *Parser) Next() (string, error) {
	for {
		line, err := p.r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				return "", err
			}
			// line holds whatever was read before EOF with no trailing
			// newline — the "remaining buffer" case.
			if p.opts.ProcessRemainingBuffer && line != "" {
				p.opts.ProcessRemainingBuffer = false // only once
				if data, ok := ExtractData(line); ok {
					return data, nil
				}
			}
			return "", io.EOF
		}

		if data, ok := ExtractData(line); ok {
			return data, nil
		}
	}
}

// ExtractData extracts the "data:" payload from a single SSE line, applying
// the shared filtering rules: trims \r\n, skips comments (":" prefix),
// empty lines, the "[DONE]" marker, and invalid UTF-8.
func ExtractData(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)

	if trimmed == "" || strings.HasPrefix(trimmed, ":") {
		return "", false
	}

	data, ok := strings.CutPrefix(trimmed, "data:")
	if !ok {
		return "", false
	}
	data = strings.TrimPrefix(data, " ")
	data = strings.TrimSpace(data)

	if data == "[DONE]" || data == "" {
		return "", false
	}
	if !utf8.ValidString(data) {
		return "", false
	}
	return data, true
}

// ReadAll drains every payload from r into a slice; used by tests and small
// fixture-driven call sites. Production streaming call sites should call
// Next in a loop instead, to avoid buffering the whole response.
func ReadAll(r io.Reader, opts Options) ([]string, error) {
	p := NewParser(r, opts)
	var out []string
	for {
		data, err := p.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, data)
	}
}

// SplitChunks turns a raw byte slice into a reader that reimplements the
// "read gradually, buffer across reads" behaviour for tests that want to
// simulate a streaming response split across network reads.
func SplitChunks(chunks ...[]byte) io.Reader {
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c)
	}
	return &buf
}
