package nmapxml

import (
	"encoding/xml"
	stderrors "errors"
	"io"

	"github.com/anstrom/scanvault/internal/errors"
)

// readChunkSize is the buffer size ReadFrom uses between Feed calls.
const readChunkSize = 32 * 1024

// Parser is a push parser for one Nmap XML document.
//
// Feed may be called any number of times with consecutive pieces of the
// document, and Drain returns the events completed so far. Finish must be
// called once after the last piece so truncated input is detected. The first
// error poisons the parser and is returned by every later call.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	tok      tokenizer
	queue    []Event
	err      error
	finished bool

	host    *HostRecord
	port    *PortRecord
	osMatch *OSMatch
	script  *scriptBuilder

	capturing bool
	text      []byte
	cpeDst    *[]string
}

// NewParser creates a parser for a single document.
func NewParser() *Parser {
	p := &Parser{}
	p.tok = newTokenizer(p)
	return p
}

// Feed pushes the next piece of the document into the parser.
func (p *Parser) Feed(data []byte) error {
	if p.err != nil {
		return p.err
	}
	if p.finished {
		return p.fail(errors.NewReportError(errors.CodeMalformedDocument, "input after end of document"))
	}
	return p.fail(p.tok.write(data, false))
}

// Finish signals the end of input. It fails if the document is incomplete.
func (p *Parser) Finish() error {
	if p.err != nil || p.finished {
		return p.err
	}
	p.finished = true
	return p.fail(p.tok.write(nil, true))
}

// Drain returns the events completed since the previous call and empties
// the queue.
func (p *Parser) Drain() []Event {
	events := p.queue
	p.queue = nil
	return events
}

// ReadFrom feeds everything from r and then calls Finish. Events stay queued
// until drained.
func (p *Parser) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, readChunkSize)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if ferr := p.Feed(buf[:n]); ferr != nil {
				return total, ferr
			}
		}
		if stderrors.Is(err, io.EOF) {
			return total, p.Finish()
		}
		if err != nil {
			return total, err
		}
	}
}

// Err returns the error that stopped the parser, if any.
func (p *Parser) Err() error {
	return p.err
}

func (p *Parser) fail(err error) error {
	if err == nil {
		return nil
	}
	var reportErr *errors.ReportError
	if stderrors.As(err, &reportErr) && reportErr.Line == 0 {
		reportErr.Line = p.tok.tokLine
	}
	p.err = err
	return err
}

func (p *Parser) emit(ev Event) {
	p.queue = append(p.queue, ev)
}

func (p *Parser) startElement(name string, attrs []xml.Attr) error {
	if p.tok.inside("hosthint") {
		return nil
	}
	handler, ok := startHandlers[name]
	if !ok {
		return nil
	}
	return handler(p, attributes{element: name, list: attrs})
}

func (p *Parser) endElement(name string) error {
	if p.tok.inside("hosthint") {
		return nil
	}
	handler, ok := endHandlers[name]
	if !ok {
		return nil
	}
	return handler(p)
}

func (p *Parser) charData(data []byte) error {
	if p.capturing {
		p.text = append(p.text, data...)
	}
	return nil
}

func (p *Parser) startCapture() error {
	if p.capturing {
		return errors.NewReportError(errors.CodeMalformedDocument, "text capture started twice")
	}
	p.capturing = true
	p.text = p.text[:0]
	return nil
}

func (p *Parser) stopCapture() (string, error) {
	if !p.capturing {
		return "", errors.NewReportError(errors.CodeMalformedDocument, "text capture stopped while not capturing")
	}
	p.capturing = false
	return string(p.text), nil
}

func misplaced(element, container string) error {
	return errors.NewReportError(errors.CodeMalformedDocument, "element outside of <"+container+">").InElement(element)
}
