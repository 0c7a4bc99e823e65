package protocol

import (
	"strings"
	"testing"
)

func TestParseDecision_PlainJSON(t *testing.T) {
	d, err := ParseDecision(`{"action":"WORK","target":"market","rationale":"rent is due"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Action != "work" {
		t.Fatalf("action = %q, want lowercased %q", d.Action, "work")
	}
	if d.Target != "market" {
		t.Fatalf("target = %q", d.Target)
	}
}

func TestParseDecision_ToleratesFencesAndProse(t *testing.T) {
	raw := "Sure! Here's my choice:\n```json\n{\"action\": \"steal\", \"target\": \"Marla\", \"mood_self\": \"wired\"}\n```\nGood luck."
	d, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Action != "steal" || d.Target != "Marla" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestParseDecision_NestedBracesInStrings(t *testing.T) {
	raw := `{"action":"message","message_to":"Finn","message_body":"the plan is {simple}: meet me at the harbor"}`
	d, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.Contains(d.MessageBody, "{simple}") {
		t.Fatalf("body mangled: %q", d.MessageBody)
	}
}

func TestParseDecision_RejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"I refuse to answer.",
		`{"no_action_here": true}`,
		`{"action": ""}`,
		`{"action": "work"`,
	} {
		if _, err := ParseDecision(raw); err == nil {
			t.Fatalf("parse(%q) succeeded, want error", raw)
		}
	}
}

func TestParseInvestigation_ClampsConfidence(t *testing.T) {
	r, err := ParseInvestigation(`{"confidence": 1.7, "case_note": "too sure", "request_arrest": true}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Confidence != 1 {
		t.Fatalf("confidence = %v, want clamp to 1", r.Confidence)
	}
	if !r.RequestArrest {
		t.Fatal("request_arrest lost")
	}
}

func TestParseVerdict(t *testing.T) {
	v, err := ParseVerdict("```\n{\"guilty\": true, \"fine\": 300, \"reasoning\": \"the ledger does not lie\"}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !v.Guilty || v.Fine != 300 {
		t.Fatalf("verdict = %+v", v)
	}
	v, err = ParseVerdict(`{"guilty": false, "fine": -50}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.Fine != 0 {
		t.Fatalf("negative fine = %d, want floor 0", v.Fine)
	}
}
