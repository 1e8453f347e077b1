package nmapxml

import (
	"bytes"
	"encoding/xml"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/anstrom/scanvault/internal/errors"
)

// tokenSink receives well-formed structural callbacks from the tokenizer.
// During startElement and endElement the element itself is not on the
// tokenizer stack, so the stack holds exactly its ancestors.
type tokenSink interface {
	startElement(name string, attrs []xml.Attr) error
	endElement(name string) error
	charData(data []byte) error
}

// tokenizer turns arbitrarily split input into element callbacks.
//
// A write runs a fresh decoder over the bytes not yet consumed. Tokens are
// committed by their end offset; a construct cut off by the end of the buffer
// is retried on a later write. Character data that reaches the end of the
// buffer is held back as well, so a text node is always delivered whole.
// The retry waits for input that can end the held construct, so feeding a
// long attribute or text node in small pieces stays linear.
// RawToken does not check nesting, so the tokenizer keeps its own stack.
type tokenizer struct {
	sink     tokenSink
	pending  []byte
	scanned  int // prefix of pending already searched for a terminator
	decodes  int
	stack    []string
	rootSeen bool
	line     int // line number of pending[0]
	tokLine  int // line of the token being dispatched
}

func newTokenizer(sink tokenSink) tokenizer {
	return tokenizer{sink: sink, line: 1}
}

// write appends data and dispatches every complete token. When final is set
// there is no more input and anything left over is a truncated document.
func (t *tokenizer) write(data []byte, final bool) error {
	t.pending = append(t.pending, data...)
	if !final && !t.mayComplete() {
		return nil
	}
	t.decodes++

	limit := len(t.pending)
	if !final {
		limit = completeRunes(t.pending)
	}

	dec := xml.NewDecoder(bytes.NewReader(t.pending[:limit]))
	var consumed int64
	for {
		tok, err := dec.RawToken()
		if err != nil {
			if stderrors.Is(err, io.EOF) || (isUnexpectedEOF(err) && !final) {
				break
			}
			if isUnexpectedEOF(err) {
				return t.malformed("document is truncated", err)
			}
			return t.malformed("malformed XML", err)
		}

		end := dec.InputOffset()
		if _, ok := tok.(xml.CharData); ok && !final && end == int64(limit) {
			break
		}

		decLine, _ := dec.InputPos()
		t.tokLine = t.line + decLine - 1
		if err := t.dispatch(tok); err != nil {
			return err
		}
		consumed = end
	}

	t.line += bytes.Count(t.pending[:consumed], []byte{'\n'})
	t.pending = append(t.pending[:0], t.pending[consumed:]...)
	t.scanned = len(t.pending)

	if !final {
		return nil
	}
	switch {
	case len(bytes.TrimSpace(t.pending)) > 0:
		return t.malformed("document is truncated", nil)
	case len(t.stack) > 0:
		return t.malformed(fmt.Sprintf("unexpected end of document inside <%s>", t.stack[len(t.stack)-1]), nil)
	case !t.rootSeen:
		return t.malformed("document has no root element", nil)
	}
	return nil
}

// mayComplete reports whether the input added since the last decode can end
// the construct held back in pending. Markup ends at '>' and a text node at
// the next '<'.
func (t *tokenizer) mayComplete() bool {
	if t.scanned == 0 {
		return true
	}
	terminator := byte('<')
	if t.pending[0] == '<' {
		terminator = '>'
	}
	found := bytes.IndexByte(t.pending[t.scanned:], terminator) >= 0
	t.scanned = len(t.pending)
	return found
}

func (t *tokenizer) dispatch(tok xml.Token) error {
	switch tok := tok.(type) {
	case xml.StartElement:
		if len(t.stack) == 0 {
			if t.rootSeen {
				return t.malformed(fmt.Sprintf("second root element <%s>", qualifiedName(tok.Name)), nil)
			}
			t.rootSeen = true
		}
		if err := t.sink.startElement(tok.Name.Local, tok.Attr); err != nil {
			return err
		}
		t.stack = append(t.stack, qualifiedName(tok.Name))

	case xml.EndElement:
		name := qualifiedName(tok.Name)
		if len(t.stack) == 0 {
			return t.malformed(fmt.Sprintf("unexpected end element </%s>", name), nil)
		}
		if open := t.stack[len(t.stack)-1]; open != name {
			return t.malformed(fmt.Sprintf("element <%s> closed by </%s>", open, name), nil)
		}
		t.stack = t.stack[:len(t.stack)-1]
		return t.sink.endElement(tok.Name.Local)

	case xml.CharData:
		if len(t.stack) == 0 {
			if len(bytes.TrimSpace(tok)) > 0 {
				return t.malformed("text outside the root element", nil)
			}
			return nil
		}
		return t.sink.charData(tok)
	}

	// Comments, processing instructions and directives carry nothing we use.
	return nil
}

// parent returns the name of the innermost open element, or "".
func (t *tokenizer) parent() string {
	if len(t.stack) == 0 {
		return ""
	}
	return t.stack[len(t.stack)-1]
}

// inside reports whether any open element has the given name.
func (t *tokenizer) inside(name string) bool {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i] == name {
			return true
		}
	}
	return false
}

func (t *tokenizer) malformed(msg string, cause error) error {
	err := errors.WrapReportError(errors.CodeMalformedDocument, msg, cause)
	err.Line = t.tokLine
	var syntaxErr *xml.SyntaxError
	if stderrors.As(cause, &syntaxErr) {
		err.Line = t.line + syntaxErr.Line - 1
		err.Message = msg + ": " + syntaxErr.Msg
	}
	return err
}

func isUnexpectedEOF(err error) bool {
	var syntaxErr *xml.SyntaxError
	return stderrors.As(err, &syntaxErr) && strings.HasPrefix(syntaxErr.Msg, "unexpected EOF")
}

// completeRunes returns the length of the longest prefix of b that does not
// end inside a multi-byte UTF-8 sequence.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return i
			}
			break
		}
	}
	return len(b)
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
