package agent

import "strings"

// Tool directive syntax embedded in model output:
//
//	[[TOOL: name | argument]]
//
// The parser distinguishes three cases the substring search in earlier
// bridges conflated: no directive at all, a well-formed directive, and an
// opening marker with no close (malformed).
const (
	openMarker  = "[[TOOL:"
	closeMarker = "]]"
)

// Kind names a sandboxed operation the model may request.
type Kind string

const (
	KindRun    Kind = "run"
	KindList   Kind = "list"
	KindRead   Kind = "read"
	KindSwitch Kind = "switch"
)

// Directive is one parsed tool request.
type Directive struct {
	Name Kind
	Arg  string
}

// ParseOutcome classifies a model response.
type ParseOutcome int

const (
	// OutcomeNone means the response contains no directive: it is the
	// final answer.
	OutcomeNone ParseOutcome = iota
	// OutcomeFound means a well-formed directive was parsed.
	OutcomeFound
	// OutcomeMalformed means an opening marker without a closing one.
	OutcomeMalformed
)

// Parse scans response for a single tool directive.
func Parse(response string) (Directive, ParseOutcome) {
	start := strings.Index(response, openMarker)
	if start < 0 {
		return Directive{}, OutcomeNone
	}

	end := strings.Index(response[start:], closeMarker)
	if end < 0 {
		return Directive{}, OutcomeMalformed
	}

	body := response[start+len(openMarker) : start+end]
	name, arg, _ := strings.Cut(body, "|")

	return Directive{
		Name: Kind(strings.ToLower(strings.TrimSpace(name))),
		Arg:  strings.TrimSpace(arg),
	}, OutcomeFound
}

// Known reports whether the directive names a supported tool.
func (d Directive) Known() bool {
	switch d.Name {
	case KindRun, KindList, KindRead, KindSwitch:
		return true
	}
	return false
}
