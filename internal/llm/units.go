package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"strings"
)

// UnitKind is the type of one structured piece of a streamed answer.
type UnitKind string

const (
	UnitAnswer  UnitKind = "answer"
	UnitSources UnitKind = "sources"
	UnitError   UnitKind = "error"
)

// SourceRef is a source as the model reports it, before numbering.
type SourceRef struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	IssueNumber int    `json:"issue_number"`
	Author      string `json:"author,omitempty"`
	Preview     string `json:"preview,omitempty"`
}

// Unit is one decoded element of a streamed answer.
type Unit struct {
	Kind    UnitKind
	Text    string
	Sources []SourceRef
	Message string
}

type wireUnit struct {
	Type    string      `json:"type"`
	Text    *string     `json:"text"`
	Content *string     `json:"content"`
	Sources []SourceRef `json:"sources"`
	Message string      `json:"message"`
}

var errConsumerStopped = errors.New("answer consumer stopped")

// StreamUnits runs gen.Stream and decodes its output into units as it
// arrives. Breaking out of the loop cancels the generation. A generation
// failure is yielded once as the final element.
func StreamUnits(ctx context.Context, gen Generator, p Prompt) iter.Seq2[Unit, error] {
	return func(yield func(Unit, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		pr, pw := io.Pipe()
		done := make(chan struct{})

		go func() {
			defer close(done)
			err := gen.Stream(ctx, p, func(chunk string) error {
				_, err := io.WriteString(pw, chunk)
				return err
			})
			pw.CloseWithError(err)
		}()

		defer func() {
			cancel()
			pr.CloseWithError(errConsumerStopped)
			<-done
		}()

		for u, err := range DecodeUnits(pr) {
			if !yield(u, err) || err != nil {
				return
			}
		}
	}
}

// DecodeUnits reads answer units from r. The stream may be a JSON array of
// unit objects, a sequence of concatenated or newline-delimited unit
// objects, or plain text, which is passed through as answer chunks. Read
// errors are yielded once and end the sequence.
func DecodeUnits(r io.Reader) iter.Seq2[Unit, error] {
	return func(yield func(Unit, error) bool) {
		br := bufio.NewReader(r)

		first, err := peekNonSpace(br)
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(Unit{}, err)
			return
		}

		if fence, _ := br.Peek(3); string(fence) == "```" {
			// ```json fence line
			if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
				yield(Unit{}, err)
				return
			}
			if first, err = peekNonSpace(br); err == io.EOF {
				return
			} else if err != nil {
				yield(Unit{}, err)
				return
			}
		}

		switch {
		case first == '[' && opensJSON(br, `{"]`):
			decodeArray(br, yield)
		case first == '{' && opensJSON(br, `"}`):
			decodeObjects(br, yield)
		default:
			passThrough(br, yield)
		}
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// opensJSON reports whether the bracket at the head of br is followed by
// one of the bytes in next, ignoring whitespace. Text such as a markdown
// link "[Issue #12](...)" fails the check and is passed through.
func opensJSON(br *bufio.Reader, next string) bool {
	for n := 2; n <= 64; n++ {
		b, _ := br.Peek(n)
		if len(b) < n {
			return true
		}
		switch c := b[n-1]; c {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return strings.IndexByte(next, c) >= 0
		}
	}
	return true
}

// prefixRecorder keeps everything the decoder reads until the first unit
// is decoded, so input that turns out not to be JSON can be replayed.
type prefixRecorder struct {
	buf bytes.Buffer
	off bool
}

func (p *prefixRecorder) Write(b []byte) (int, error) {
	if !p.off {
		p.buf.Write(b)
	}
	return len(b), nil
}

func (p *prefixRecorder) stop() {
	p.off = true
	p.buf.Reset()
}

// replayable reports whether a failure before the first unit should be
// treated as plain text. Truncated JSON is left to recoverTail.
func replayable(rec *prefixRecorder, err error) bool {
	var se *json.SyntaxError
	return !rec.off && errors.As(err, &se)
}

func replay(rec *prefixRecorder, br *bufio.Reader, yield func(Unit, error) bool) {
	passThrough(bufio.NewReader(io.MultiReader(&rec.buf, br)), yield)
}

func decodeArray(br *bufio.Reader, yield func(Unit, error) bool) {
	rec := &prefixRecorder{}
	dec := json.NewDecoder(io.TeeReader(br, rec))
	if _, err := dec.Token(); err != nil {
		yield(Unit{}, err)
		return
	}
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if replayable(rec, err) {
				replay(rec, br, yield)
			} else {
				recoverTail(dec, br, err, yield)
			}
			return
		}
		rec.stop()
		if !yield(parseUnit(raw), nil) {
			return
		}
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		if !isSyntaxError(err) {
			yield(Unit{}, err)
		}
	}
}

func decodeObjects(br *bufio.Reader, yield func(Unit, error) bool) {
	rec := &prefixRecorder{}
	dec := json.NewDecoder(io.TeeReader(br, rec))
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if err == io.EOF {
			return
		}
		if err != nil {
			if replayable(rec, err) {
				replay(rec, br, yield)
			} else {
				recoverTail(dec, br, err, yield)
			}
			return
		}
		rec.stop()
		if !yield(parseUnit(raw), nil) {
			return
		}
	}
}

// recoverTail handles a decode failure. Reader errors are yielded as is.
// Malformed or truncated JSON is repaired if possible, otherwise the
// remaining text becomes a plain answer chunk.
func recoverTail(dec *json.Decoder, br *bufio.Reader, err error, yield func(Unit, error) bool) {
	if !isSyntaxError(err) {
		yield(Unit{}, err)
		return
	}

	rest, readErr := io.ReadAll(io.MultiReader(dec.Buffered(), br))
	if readErr != nil {
		yield(Unit{}, readErr)
		return
	}
	tail := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(string(rest)), "```"))
	tail = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(tail, ","), "]"))
	if tail == "" {
		return
	}

	if repaired, _, rerr := RepairJSON(tail); rerr == nil && strings.HasPrefix(repaired, "{") {
		yield(parseUnit(json.RawMessage(repaired)), nil)
		return
	}
	yield(Unit{Kind: UnitAnswer, Text: tail}, nil)
}

func isSyntaxError(err error) bool {
	var se *json.SyntaxError
	return errors.As(err, &se) || errors.Is(err, io.ErrUnexpectedEOF)
}

func passThrough(br *bufio.Reader, yield func(Unit, error) bool) {
	buf := make([]byte, 4096)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			if !yield(Unit{Kind: UnitAnswer, Text: string(buf[:n])}, nil) {
				return
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(Unit{}, err)
			return
		}
	}
}

func parseUnit(raw json.RawMessage) Unit {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return Unit{Kind: UnitAnswer, Text: s}
	}

	var w wireUnit
	if err := json.Unmarshal(raw, &w); err != nil {
		return Unit{Kind: UnitAnswer, Text: string(raw)}
	}

	switch strings.ToLower(w.Type) {
	case "answer", "text", "chunk":
		return Unit{Kind: UnitAnswer, Text: w.text()}
	case "sources", "source":
		return Unit{Kind: UnitSources, Sources: w.Sources}
	case "error":
		msg := w.Message
		if msg == "" {
			msg = w.text()
		}
		if msg == "" {
			msg = "the model reported an error"
		}
		return Unit{Kind: UnitError, Message: msg}
	}

	if w.Text != nil || w.Content != nil {
		return Unit{Kind: UnitAnswer, Text: w.text()}
	}
	return Unit{Kind: UnitAnswer, Text: string(raw)}
}

func (w wireUnit) text() string {
	if w.Text != nil {
		return *w.Text
	}
	if w.Content != nil {
		return *w.Content
	}
	return ""
}
