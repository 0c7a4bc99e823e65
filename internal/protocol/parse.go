package protocol

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed decision.schema.json
var decisionSchemaJSON string

var decisionSchema = mustCompile("decision.schema.json", decisionSchemaJSON)

func mustCompile(name, src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(src)); err != nil {
		panic(err)
	}
	s, err := c.Compile(name)
	if err != nil {
		panic(err)
	}
	return s
}

// extractJSON pulls the first balanced top-level JSON object out of a raw
// model reply, tolerating markdown fences and surrounding prose.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in reply")
	}
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			esc = inStr
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				depth++
			}
		case '}':
			if !inStr {
				depth--
				if depth == 0 {
					return s[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in reply")
}

// ParseDecision parses a raw model reply into a Decision. The parse
// tolerates mild reformatting (fences, prose, case) but validates the
// object shape against the schema.
func ParseDecision(raw string) (Decision, error) {
	var d Decision
	body, err := extractJSON(raw)
	if err != nil {
		return d, err
	}
	var generic any
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return d, fmt.Errorf("decision unmarshal: %w", err)
	}
	if err := decisionSchema.Validate(generic); err != nil {
		return d, fmt.Errorf("decision schema: %w", err)
	}
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return d, fmt.Errorf("decision decode: %w", err)
	}
	d.Action = strings.ToLower(strings.TrimSpace(d.Action))
	d.Target = strings.TrimSpace(d.Target)
	d.MessageTo = strings.TrimSpace(d.MessageTo)
	return d, nil
}

// ParseInvestigation parses the daily verdict-note. Confidence is clamped
// into [0, 1].
func ParseInvestigation(raw string) (InvestigationResult, error) {
	var r InvestigationResult
	body, err := extractJSON(raw)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return r, fmt.Errorf("investigation decode: %w", err)
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	return r, nil
}

// ParseVerdict parses a judicial verdict.
func ParseVerdict(raw string) (Verdict, error) {
	var v Verdict
	body, err := extractJSON(raw)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return v, fmt.Errorf("verdict decode: %w", err)
	}
	if v.Fine < 0 {
		v.Fine = 0
	}
	return v, nil
}
