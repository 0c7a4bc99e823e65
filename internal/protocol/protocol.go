// Package protocol defines the contract between the simulation engine and
// the external reasoning model: structured requests out, parsable decision
// objects back. The engine must tolerate malformed outputs; parsing is
// strict but reformatting-tolerant, and callers fall back to role defaults
// on error.
package protocol

import "context"

// DecisionRequest packs everything the reasoning model is allowed to see
// for one agent turn. All inputs are explicit; the model sees only what the
// facade includes here.
type DecisionRequest struct {
	Day       int
	TimePhase string

	AgentName string
	Role      string
	Tokens    int
	AgeDays   int
	MoodText  string

	// SusceptibilityFraming is the descriptive tone for police officers
	// (honest / pragmatic / corrupt). Never a number, never exported
	// anywhere else.
	SusceptibilityFraming string

	// Comprehension is included for newborns only.
	Comprehension int

	Newspaper  string
	AssetFlags map[string]bool

	Inbox         []InboxMessage
	PositiveBonds []BondNote
	NegativeBonds []BondNote
	Recalls       []string

	AvailableActions []string
}

type InboxMessage struct {
	Day  int    `json:"day"`
	From string `json:"from"`
	Body string `json:"body"`
}

type BondNote struct {
	Name       string `json:"name"`
	Annotation string `json:"annotation"`
}

// Decision is the parsed decision object.
type Decision struct {
	Action      string `json:"action"`
	Target      string `json:"target,omitempty"`
	MessageTo   string `json:"message_to,omitempty"`
	MessageBody string `json:"message_body,omitempty"`
	MoodSelf    string `json:"mood_self,omitempty"`
	Rationale   string `json:"rationale,omitempty"`
	Details     string `json:"details,omitempty"`
}

// InvestigationRequest packs the police-scope evidence for one open case.
type InvestigationRequest struct {
	Day         int
	CaseID      uint64
	OfficerName string
	// Framing is the officer's descriptive tone (honest / pragmatic /
	// corrupt), derived from bribe susceptibility. It conditions the
	// prompt only.
	Framing      string
	CaseSummary  string
	Evidence     []string
	LedgerTrail  []string
	PriorNotes   []string
	KnownSuspects []string
}

// InvestigationResult is the parsed daily verdict-note.
type InvestigationResult struct {
	Confidence    float64  `json:"confidence"`
	SuspectRank   []string `json:"suspect_rank"`
	NextActions   []string `json:"next_actions,omitempty"`
	CaseNote      string   `json:"case_note"`
	RequestArrest bool     `json:"request_arrest"`
	AcceptBribe   bool     `json:"accept_bribe,omitempty"`
}

// JudgeRequest packs a trial.
type JudgeRequest struct {
	Day       int
	CaseID    uint64
	Defendant string
	Charge    string
	Evidence  []string
	Defense   string
}

// Verdict is the parsed judicial outcome.
type Verdict struct {
	Guilty    bool   `json:"guilty"`
	Fine      int    `json:"fine,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

type NarrativeKind string

const (
	NarrativeDaily   NarrativeKind = "daily"
	NarrativeWeekly  NarrativeKind = "weekly"
	NarrativeMonthly NarrativeKind = "monthly"
	NarrativeClosing NarrativeKind = "case_closing"
)

// NarrativeRequest asks for prose. For the newspaper kinds the events MUST
// come from the narrator scope (public only); the engine enforces that
// before building the request.
type NarrativeRequest struct {
	Kind             NarrativeKind
	Day              int
	WriterName       string
	PublicEvents     []string
	PriorStories     []string
	ArchivePrecision bool
}

// GraduationRequest asks the model to pick a newborn's adult role from the
// allow-list.
type GraduationRequest struct {
	Day          int
	AgentName    string
	Comprehension int
	AllowedRoles []string
	Recalls      []string
}

type GraduationChoice struct {
	Role      string `json:"role"`
	Rationale string `json:"rationale,omitempty"`
}

// Reasoner is the pluggable external reasoning service. Every call is a
// suspension point: implementations must honor ctx cancellation, and the
// engine wraps calls with per-call timeouts.
type Reasoner interface {
	Decide(ctx context.Context, req DecisionRequest) (Decision, error)
	Investigate(ctx context.Context, req InvestigationRequest) (InvestigationResult, error)
	Judge(ctx context.Context, req JudgeRequest) (Verdict, error)
	WriteNarrative(ctx context.Context, req NarrativeRequest) (string, error)
	ChooseGraduation(ctx context.Context, req GraduationRequest) (GraduationChoice, error)
}
