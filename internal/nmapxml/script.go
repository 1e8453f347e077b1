package nmapxml

import (
	"strconv"

	"github.com/anstrom/scanvault/internal/errors"
)

type scriptTarget int

const (
	discardScript scriptTarget = iota
	portScript
	hostScript
)

type scriptFrame struct {
	prefix  string
	unkeyed int
}

// scriptBuilder flattens one <script> element into a ScriptResult.
type scriptBuilder struct {
	id     string
	target scriptTarget
	result ScriptResult
	frames []scriptFrame
	key    string
}

// childKey returns the flattened key for a table or elem opened in the
// innermost frame.
func (s *scriptBuilder) childKey(key string) string {
	frame := &s.frames[len(s.frames)-1]
	if key == "" {
		frame.unkeyed++
		key = strconv.Itoa(frame.unkeyed)
	}
	if frame.prefix == "" {
		return key
	}
	return frame.prefix + "." + key
}

func (p *Parser) startScript(a attributes) error {
	if p.script != nil {
		return errors.NewReportError(errors.CodeMalformedDocument, "nested <script>").InElement("script")
	}
	id, err := a.required("id")
	if err != nil {
		return err
	}

	// Scripts under <prescript> and <postscript> belong to no host.
	target := discardScript
	switch p.tok.parent() {
	case "port":
		if p.port != nil {
			target = portScript
		}
	case "hostscript":
		if p.host != nil {
			target = hostScript
		}
	}

	p.script = &scriptBuilder{
		id:     id,
		target: target,
		result: ScriptResult{"output": a.str("output")},
		frames: []scriptFrame{{}},
	}
	return nil
}

func (p *Parser) endScript() error {
	s := p.script
	if s == nil {
		return errors.NewReportError(errors.CodeMalformedDocument, "</script> without an open script")
	}
	p.script = nil

	switch s.target {
	case portScript:
		if p.port.Scripts == nil {
			p.port.Scripts = make(map[string]ScriptResult)
		}
		p.port.Scripts[s.id] = s.result
	case hostScript:
		if p.host.Scripts == nil {
			p.host.Scripts = make(map[string]ScriptResult)
		}
		p.host.Scripts[s.id] = s.result
	case discardScript:
	}
	return nil
}

func (p *Parser) startTable(a attributes) error {
	if p.script == nil {
		return nil
	}
	prefix := p.script.childKey(a.str("key"))
	p.script.frames = append(p.script.frames, scriptFrame{prefix: prefix})
	return nil
}

func (p *Parser) endTable() error {
	if p.script == nil {
		return nil
	}
	if len(p.script.frames) > 1 {
		p.script.frames = p.script.frames[:len(p.script.frames)-1]
	}
	return nil
}

func (p *Parser) startElem(a attributes) error {
	if p.script == nil {
		return nil
	}
	p.script.key = p.script.childKey(a.str("key"))
	return p.startCapture()
}

func (p *Parser) endElem() error {
	if p.script == nil {
		return nil
	}
	value, err := p.stopCapture()
	if err != nil {
		return err
	}
	p.script.result[p.script.key] = value
	return nil
}
