package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Framing is how a message was delimited on a byte stream.
type Framing int

const (
	// FramingLine is newline-delimited JSON, the MCP stdio default.
	FramingLine Framing = iota
	// FramingContentLength prefixes each body with LSP-style headers.
	FramingContentLength
)

// DefaultMaxMessageBytes is the frame size limit used when ReadMessage is
// given none.
const DefaultMaxMessageBytes = 1 << 20

var (
	// ErrFrameTooLarge reports a frame over the size limit.
	ErrFrameTooLarge = errors.New("mcp: frame exceeds size limit")
	// ErrInvalidContentLength reports a header block whose length is not a
	// non-negative integer.
	ErrInvalidContentLength = errors.New("mcp: invalid Content-Length")
)

// FrameError is a frame that was consumed but cannot be dispatched. The
// stream is left at the next frame, so the caller may answer with Reply and
// keep reading.
type FrameError struct {
	Framing Framing
	Err     error
	Detail  string
}

func (e *FrameError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *FrameError) Unwrap() error { return e.Err }

// Reply encodes the JSON-RPC error answering the rejected frame. The request
// id is unknown, so it is null.
func (e *FrameError) Reply() []byte {
	resp := newError(nil, CodeParseError, "Parse error", e.Error())
	if errors.Is(e.Err, ErrFrameTooLarge) {
		resp = newError(nil, CodeInvalidRequest, "Request too large", e.Error())
	}
	data, _ := json.Marshal(resp)
	return data
}

// ReadMessage reads the next frame from r and reports which framing the peer
// used. Blank lines between frames are skipped. Frames larger than maxBytes
// (DefaultMaxMessageBytes when maxBytes <= 0) are skipped without being
// buffered and reported as a *FrameError, as are unreadable headers. It
// returns io.EOF once the stream ends cleanly.
func ReadMessage(r *bufio.Reader, maxBytes int64) ([]byte, Framing, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	for {
		line, tooLong, err := readLine(r, maxBytes)
		if tooLong {
			return nil, FramingLine, &FrameError{
				Framing: FramingLine,
				Err:     ErrFrameTooLarge,
				Detail:  fmt.Sprintf("line exceeds %d bytes", maxBytes),
			}
		}
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			return nil, FramingLine, err
		}
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			if err != nil {
				return nil, FramingLine, io.EOF
			}
			continue
		}
		if isHeaderLine(trimmed) {
			body, err := readContentLength(r, string(trimmed), maxBytes)
			return body, FramingContentLength, err
		}
		return trimmed, FramingLine, nil
	}
}

// readLine reads through the next newline. Once the line passes max bytes
// the rest of it is discarded and tooLong is set.
func readLine(r *bufio.Reader, max int64) ([]byte, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			// Room for a trailing \r\n.
			if int64(len(line)+len(chunk)) > max+2 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, err
	}
}

func isHeaderLine(line []byte) bool {
	if line[0] == '{' || line[0] == '[' {
		return false
	}
	i := bytes.IndexByte(line, ':')
	return i > 0 && strings.EqualFold(strings.TrimSpace(string(line[:i])), "content-length")
}

// readContentLength consumes the remaining headers after first and then the
// body they announce.
func readContentLength(r *bufio.Reader, first string, max int64) ([]byte, error) {
	headers := map[string]string{}
	addHeader(headers, first)
	for {
		line, tooLong, err := readLine(r, max)
		if tooLong {
			return nil, &FrameError{Framing: FramingContentLength, Err: ErrFrameTooLarge, Detail: "header line too long"}
		}
		if err != nil {
			return nil, err
		}
		s := strings.TrimRight(string(line), "\r\n")
		if s == "" {
			break
		}
		addHeader(headers, s)
	}

	clStr := headers["content-length"]
	length, err := strconv.ParseInt(clStr, 10, 64)
	if err != nil || length < 0 {
		skipBody(r)
		return nil, &FrameError{Framing: FramingContentLength, Err: ErrInvalidContentLength, Detail: strconv.Quote(clStr)}
	}
	if length > max {
		if _, err := io.CopyN(io.Discard, r, length); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, &FrameError{
			Framing: FramingContentLength,
			Err:     ErrFrameTooLarge,
			Detail:  fmt.Sprintf("Content-Length %d exceeds %d bytes", length, max),
		}
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// skipBody drops the body of a frame whose length could not be read, up to
// the next header block. Only bytes already buffered are examined, so a peer
// waiting on the error reply is not blocked on.
func skipBody(r *bufio.Reader) {
	n := r.Buffered()
	if n == 0 {
		return
	}
	buf, _ := r.Peek(n)
	if i := bytes.Index(bytes.ToLower(buf), []byte("content-length")); i >= 0 {
		n = i
	}
	_, _ = r.Discard(n)
}

func addHeader(headers map[string]string, s string) {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		key := strings.ToLower(strings.TrimSpace(s[:i]))
		headers[key] = strings.TrimSpace(s[i+1:])
	}
}

// WriteMessage writes data using framing and flushes w.
func WriteMessage(w *bufio.Writer, data []byte, framing Framing) error {
	if framing == FramingContentLength {
		if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		return w.Flush()
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
