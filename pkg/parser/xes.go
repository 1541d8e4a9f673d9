package parser

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/logflow/hminer/internal/model"
	hmerrors "github.com/logflow/hminer/pkg/errors"
)

// XES attribute keys
var (
	xesConceptName = []byte("concept:name")
	xesTimeStamp   = []byte("time:timestamp")
	xesOrgResource = []byte("org:resource")
)

// XML element names
var (
	xmlTrace  = []byte("trace")
	xmlEvent  = []byte("event")
	xmlGlobal = []byte("global")
)

var xmlUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

type xesState uint8

const (
	stateLog xesState = iota
	stateGlobal
	stateTrace
	stateEvent
)

// XESParser implements streaming XES parsing using a state machine over tags.
// Trace-level concept:name becomes the case id of the trace's events.
type XESParser struct {
	cfg Config
}

// NewXESParser creates a new XES parser.
func NewXESParser(cfg Config) *XESParser {
	return &XESParser{cfg: cfg}
}

type xesEvent struct {
	activity  string
	timestamp string
	resource  string
}

// Parse implements the Parser interface.
//
// Events are buffered until their trace closes because the trace's
// concept:name may follow its events.
func (p *XESParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)

	state := stateLog
	var (
		caseID  string
		pending []xesEvent
		current *xesEvent
		row     int
		depth   int // nesting of list/container attributes inside an event
	)

	flush := func() error {
		for i, ev := range pending {
			eventRow := row - len(pending) + i + 1
			if caseID == "" {
				return missingField("xes", "case id", eventRow)
			}
			if ev.activity == "" {
				return missingField("xes", "activity", eventRow)
			}
			if ev.timestamp == "" {
				return missingField("xes", "timestamp", eventRow)
			}
			ts, err := ParseTimestamp(ev.timestamp, p.cfg.TimestampFormat)
			if err != nil {
				return badTimestamp("xes", ev.timestamp, eventRow)
			}
			e := &model.Event{
				CaseID:       caseID,
				Activity:     ev.activity,
				Timestamp:    ts,
				HasTimestamp: true,
				Resource:     ev.resource,
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return canceled("xes")
			}
		}
		pending = pending[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return canceled("xes")
		default:
		}

		tag, err := reader.ReadBytes('>')
		if err != nil && err != io.EOF {
			return hmerrors.ParseError("xes", row, err)
		}
		if len(tag) == 0 && err == io.EOF {
			break
		}

		if i := bytes.IndexByte(tag, '<'); i >= 0 {
			tag = tag[i:]
		} else {
			tag = nil
		}

		switch {
		case len(tag) == 0:
		case isOpenTag(tag, xmlGlobal) && state == stateLog:
			if !isSelfClosing(tag) {
				state = stateGlobal
			}
		case isCloseTag(tag, xmlGlobal):
			state = stateLog

		case isOpenTag(tag, xmlTrace) && state == stateLog:
			state = stateTrace
			caseID = ""

		case isCloseTag(tag, xmlTrace):
			if err := flush(); err != nil {
				return err
			}
			state = stateLog

		case isOpenTag(tag, xmlEvent) && state == stateTrace:
			row++
			pending = append(pending, xesEvent{})
			current = &pending[len(pending)-1]
			state = stateEvent
			depth = 0
			if isSelfClosing(tag) {
				state = stateTrace
			}

		case isCloseTag(tag, xmlEvent) && state == stateEvent:
			state = stateTrace
			current = nil

		case state == stateTrace && isAttributeTag(tag):
			if key, value := attribute(tag); bytes.Equal(key, xesConceptName) {
				caseID = xmlUnescaper.Replace(string(value))
			}

		case state == stateEvent && isAttributeTag(tag):
			if depth == 0 && current != nil {
				p.setEventAttribute(tag, current)
			}
			if !isSelfClosing(tag) {
				depth++
			}

		case state == stateEvent && len(tag) > 1 && tag[1] == '/':
			if depth > 0 {
				depth--
			}
		}

		if err == io.EOF {
			break
		}
	}

	if state == stateTrace || state == stateEvent {
		return hmerrors.New(hmerrors.CodeInvalidFormat, "unterminated trace").WithContext("format", "xes")
	}
	return nil
}

func (p *XESParser) setEventAttribute(tag []byte, ev *xesEvent) {
	key, value := attribute(tag)
	switch {
	case bytes.Equal(key, xesConceptName):
		ev.activity = xmlUnescaper.Replace(string(value))
	case bytes.Equal(key, xesTimeStamp):
		ev.timestamp = string(value)
	case bytes.Equal(key, xesOrgResource):
		ev.resource = xmlUnescaper.Replace(string(value))
	}
}

// isOpenTag checks if tag opens the given element.
func isOpenTag(tag, element []byte) bool {
	if len(tag) < len(element)+2 || tag[0] != '<' || !bytes.HasPrefix(tag[1:], element) {
		return false
	}
	next := 1 + len(element)
	if next >= len(tag) {
		return true
	}
	c := tag[next]
	return c == '>' || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/'
}

// isCloseTag checks if tag is the closing tag of the given element.
func isCloseTag(tag, element []byte) bool {
	return len(tag) >= len(element)+3 && tag[0] == '<' && tag[1] == '/' && bytes.HasPrefix(tag[2:], element)
}

func isSelfClosing(tag []byte) bool {
	return bytes.HasSuffix(tag, []byte("/>"))
}

var xesAttributeElements = [][]byte{
	[]byte("string"), []byte("date"), []byte("int"), []byte("float"),
	[]byte("boolean"), []byte("id"), []byte("list"), []byte("container"),
}

// isAttributeTag checks if tag opens an XES attribute element.
func isAttributeTag(tag []byte) bool {
	for _, el := range xesAttributeElements {
		if isOpenTag(tag, el) {
			return true
		}
	}
	return false
}

// attribute extracts the key and value of an XES attribute element.
func attribute(tag []byte) (key, value []byte) {
	return attrValue(tag, []byte(`key="`)), attrValue(tag, []byte(`value="`))
}

func attrValue(tag, prefix []byte) []byte {
	idx := bytes.Index(tag, prefix)
	if idx < 0 {
		return nil
	}
	start := idx + len(prefix)
	end := bytes.IndexByte(tag[start:], '"')
	if end < 0 {
		return nil
	}
	return tag[start : start+end]
}
