// Package toolargs decodes tool-call arguments into a closed set of typed
// shapes keyed by function name.
package toolargs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind tags an Arguments variant.
type Kind string

const (
	KindLeadSearch Kind = "lead_search"
	KindOutreach   Kind = "outreach"
	KindRaw        Kind = "raw"
)

// Arguments is implemented only by the variants in this package.
type Arguments interface {
	Kind() Kind
	sealed()
}

// LeadSearch is the argument shape of search_leads / find_leads.
type LeadSearch struct {
	Query    string `json:"query"`
	Location string `json:"location,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Outreach is the argument shape of send_outreach.
type Outreach struct {
	LeadID  string `json:"lead_id"`
	Channel string `json:"channel,omitempty"`
	Message string `json:"message"`
}

// Raw carries arguments of a configured passthrough function unparsed.
type Raw struct {
	JSON json.RawMessage `json:"json"`
}

func (LeadSearch) Kind() Kind { return KindLeadSearch }
func (Outreach) Kind() Kind   { return KindOutreach }
func (Raw) Kind() Kind        { return KindRaw }

func (LeadSearch) sealed() {}
func (Outreach) sealed()   {}
func (Raw) sealed()        {}

// The wire form of every variant carries its kind next to its fields, e.g.
// {"kind":"lead_search","query":"florists"}.

func (a LeadSearch) MarshalJSON() ([]byte, error) {
	type fields LeadSearch
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		fields
	}{KindLeadSearch, fields(a)})
}

func (a Outreach) MarshalJSON() ([]byte, error) {
	type fields Outreach
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		fields
	}{KindOutreach, fields(a)})
}

func (a Raw) MarshalJSON() ([]byte, error) {
	type fields Raw
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		fields
	}{KindRaw, fields(a)})
}

// Unmarshal decodes the tagged wire form back into its variant.
func Unmarshal(data []byte) (Arguments, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	kind := Kind(gjson.GetBytes(data, "kind").String())
	var (
		args Arguments
		err  error
	)
	switch kind {
	case KindLeadSearch:
		var a LeadSearch
		err = json.Unmarshal(data, &a)
		args = a
	case KindOutreach:
		var a Outreach
		err = json.Unmarshal(data, &a)
		args = a
	case KindRaw:
		var a Raw
		err = json.Unmarshal(data, &a)
		args = a
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	return args, nil
}

var (
	// ErrUnknownFunction is returned for function names that are neither
	// known nor configured as passthrough.
	ErrUnknownFunction = errors.New("unknown tool function")
	// ErrMalformed is returned when the argument string is not valid for
	// its function.
	ErrMalformed = errors.New("malformed tool arguments")
)

var knownFunctions = map[string]Kind{
	"search_leads":  KindLeadSearch,
	"find_leads":    KindLeadSearch,
	"send_outreach": KindOutreach,
}

// Parser decodes arguments by function name.
type Parser struct {
	passthrough map[string]bool
}

// NewParser returns a parser that also accepts the given passthrough names
// as Raw arguments.
func NewParser(passthrough []string) *Parser {
	p := &Parser{passthrough: make(map[string]bool, len(passthrough))}
	for _, name := range passthrough {
		if name = strings.TrimSpace(name); name != "" {
			p.passthrough[name] = true
		}
	}
	return p
}

// Known reports whether functionName can be parsed at all.
func (p *Parser) Known(functionName string) bool {
	_, ok := knownFunctions[functionName]
	return ok || p.passthrough[functionName]
}

// Parse decodes raw (a serialized JSON object) for functionName.
func (p *Parser) Parse(functionName, raw string) (Arguments, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}

	kind, ok := knownFunctions[functionName]
	if !ok {
		if p.passthrough[functionName] {
			if !json.Valid([]byte(raw)) {
				return nil, fmt.Errorf("%w: %s: invalid JSON", ErrMalformed, functionName)
			}
			return Raw{JSON: json.RawMessage(raw)}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, functionName)
	}

	switch kind {
	case KindLeadSearch:
		var a LeadSearch
		if err := decode(raw, &a); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, functionName, err)
		}
		if strings.TrimSpace(a.Query) == "" {
			return nil, fmt.Errorf("%w: %s: query is required", ErrMalformed, functionName)
		}
		return a, nil
	case KindOutreach:
		var a Outreach
		if err := decode(raw, &a); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, functionName, err)
		}
		if strings.TrimSpace(a.LeadID) == "" {
			return nil, fmt.Errorf("%w: %s: lead_id is required", ErrMalformed, functionName)
		}
		return a, nil
	case KindRaw:
		return Raw{JSON: json.RawMessage(raw)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, functionName)
	}
}

func decode(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	return dec.Decode(v)
}
