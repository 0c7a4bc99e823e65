package city

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"aicity.ai/internal/protocol"
)

// CaseEngine owns the police case lifecycle:
//
//	open --daily investigation--> open
//	open --arrest + guilty------> solved
//	open --arrest + not guilty--> open (evidence re-weighed)
//	open --no new evidence K days--> cold
//	cold --new evidence linked--> open (reopened)
type CaseEngine struct {
	cases  map[uint64]*PoliceCase
	nextID uint64
	cfg    *CityConfig
	log    *log.Logger
}

func NewCaseEngine(cfg *CityConfig, logger *log.Logger) *CaseEngine {
	return &CaseEngine{cases: map[uint64]*PoliceCase{}, cfg: cfg, log: logger}
}

// Open starts a case from a reported trigger event, or links the report to
// the existing case already tracking that event.
func (ce *CaseEngine) Open(day int, trigger *Event, complainant string) *PoliceCase {
	if existing := ce.ForEvent(trigger.ID); existing != nil {
		ce.AttachEvidence(existing, trigger, day)
		return existing
	}
	ce.nextID++
	pc := &PoliceCase{
		ID:           ce.nextID,
		DayOpened:    day,
		TriggerEvent: trigger.ID,
		Complainant:  complainant,
		EvidenceRefs: []uint64{trigger.ID},
		Status:       CaseOpen,
		LastEvidence: day,
	}
	if trigger.Actor != "" {
		pc.Suspects = append(pc.Suspects, trigger.Actor)
	}
	ce.cases[pc.ID] = pc
	trigger.CaseID = pc.ID
	ce.log.Printf("cases: #%d opened (trigger event #%d, complainant %s)", pc.ID, trigger.ID, complainant)
	return pc
}

// ForEvent finds the case holding an event as trigger or evidence.
func (ce *CaseEngine) ForEvent(eventID uint64) *PoliceCase {
	for _, pc := range ce.sorted() {
		if pc.TriggerEvent == eventID {
			return pc
		}
		for _, ref := range pc.EvidenceRefs {
			if ref == eventID {
				return pc
			}
		}
	}
	return nil
}

// AttachEvidence links a new evidence event. Attaching to a cold case
// reopens it.
func (ce *CaseEngine) AttachEvidence(pc *PoliceCase, e *Event, day int) {
	for _, ref := range pc.EvidenceRefs {
		if ref == e.ID {
			return
		}
	}
	pc.EvidenceRefs = append(pc.EvidenceRefs, e.ID)
	pc.LastEvidence = day
	e.CaseID = pc.ID
	if pc.Status == CaseCold {
		pc.Status = CaseOpen
		pc.DayClosed = 0
		pc.ClosingReport = ""
		ce.log.Printf("cases: #%d reopened on day %d (new evidence #%d)", pc.ID, day, e.ID)
	}
}

func (ce *CaseEngine) AddSuspect(pc *PoliceCase, suspect string) {
	for _, s := range pc.Suspects {
		if s == suspect {
			return
		}
	}
	pc.Suspects = append(pc.Suspects, suspect)
}

func (ce *CaseEngine) AddNote(pc *PoliceCase, note CaseNote) {
	pc.Notes = append(pc.Notes, note)
}

// MarkCold closes an inactive case. The caller supplies the closing
// narrative, written only from police-scope evidence.
func (ce *CaseEngine) MarkCold(pc *PoliceCase, day int, closingReport string) {
	pc.Status = CaseCold
	pc.DayClosed = day
	pc.ClosingReport = closingReport
	ce.log.Printf("cases: #%d went cold on day %d", pc.ID, day)
}

// MarkSolved closes a case on a guilty verdict.
func (ce *CaseEngine) MarkSolved(pc *PoliceCase, day int, closingReport string) {
	pc.Status = CaseSolved
	pc.DayClosed = day
	pc.ClosingReport = closingReport
	ce.log.Printf("cases: #%d solved on day %d", pc.ID, day)
}

func (ce *CaseEngine) Get(id uint64) *PoliceCase { return ce.cases[id] }

func (ce *CaseEngine) OpenCases() []*PoliceCase {
	var out []*PoliceCase
	for _, pc := range ce.sorted() {
		if pc.Status == CaseOpen {
			out = append(out, pc)
		}
	}
	return out
}

func (ce *CaseEngine) sorted() []*PoliceCase {
	out := make([]*PoliceCase, 0, len(ce.cases))
	for _, pc := range ce.cases {
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (ce *CaseEngine) All() []*PoliceCase { return ce.sorted() }

func (ce *CaseEngine) Restore(cases []*PoliceCase, nextID uint64) {
	ce.cases = map[uint64]*PoliceCase{}
	for _, pc := range cases {
		ce.cases[pc.ID] = pc
	}
	ce.nextID = nextID
}

func (ce *CaseEngine) NextID() uint64 { return ce.nextID }

// --- Daily investigation --------------------------------------------------

// susceptibilityFraming maps the officer's hidden susceptibility onto the
// descriptive tone used in prompts. The number itself never leaves the
// engine.
func susceptibilityFraming(s float64) string {
	switch {
	case s < 0.33:
		return "honest"
	case s < 0.66:
		return "pragmatic"
	default:
		return "corrupt"
	}
}

// onDutyOfficer picks the investigating officer: the free police agent
// with the lowest id.
func (c *City) onDutyOfficer() *Agent {
	var officer *Agent
	for _, a := range c.agentsSorted() {
		if a.Role == RolePolice && a.Free() {
			officer = a
			break
		}
	}
	return officer
}

// runDailyInvestigations advances every open case one day: evidence fetch
// in police scope, ledger trail, reasoning-model note, arrest queueing,
// cold-case sweep. Runs in the scheduler after meetings and gang
// formation, before arrests and vault policy.
func (c *City) runDailyInvestigations(ctx context.Context) {
	officer := c.onDutyOfficer()
	if officer == nil {
		return
	}
	for _, pc := range c.cases.OpenCases() {
		c.investigateCase(ctx, officer, pc)
	}
}

func (c *City) investigateCase(ctx context.Context, officer *Agent, pc *PoliceCase) {
	trigger := c.events.Get(pc.TriggerEvent)
	if trigger == nil {
		return
	}

	// 1-2. Evidence in police scope plus the ledger window around it.
	var evidence []string
	for _, id := range pc.EvidenceRefs {
		e := c.events.Get(id)
		if e == nil {
			continue
		}
		switch e.Visibility {
		case VisWitnessed, VisReported, VisPublic:
			evidence = append(evidence, c.describeEvidence(e))
		}
	}
	window := []string{}
	parties := append([]string{}, pc.Suspects...)
	if trigger.Target != "" {
		parties = append(parties, trigger.Target)
	}
	for _, tx := range c.ledger.TransactionsAround(parties, trigger.Day-2, c.day) {
		window = append(window, fmt.Sprintf("day %d: %s -> %s %d tokens (%s, %s)",
			tx.Day, orVault(tx.From), orVault(tx.To), tx.Amount, tx.Kind, tx.Reason))
	}
	var priorNotes []string
	for _, n := range pc.Notes {
		priorNotes = append(priorNotes, fmt.Sprintf("day %d (%.2f): %s", n.Day, n.Confidence, n.Text))
	}

	// 3-4. Structured prompt to the reasoning model, parsed verdict-note.
	req := protocol.InvestigationRequest{
		Day:           c.day,
		CaseID:        pc.ID,
		OfficerName:   officer.Name,
		Framing:       susceptibilityFraming(officer.BribeSusceptibility),
		CaseSummary:   fmt.Sprintf("%s on day %d: %s", trigger.Kind, trigger.Day, trigger.Description),
		Evidence:      evidence,
		LedgerTrail:   window,
		PriorNotes:    priorNotes,
		KnownSuspects: c.namesOf(pc.Suspects),
	}
	rctx, cancel := context.WithTimeout(ctx, c.decisionTimeout())
	result, err := c.reasoner.Investigate(rctx, req)
	cancel()
	if err != nil {
		c.log.Printf("cases: #%d investigation call failed: %v", pc.ID, err)
		c.sweepCold(ctx, officer, pc)
		return
	}

	// Bribe handling: a bribe transfer to the officer around the case
	// window, accepted by the model, biases the case toward cold and
	// drifts susceptibility.
	if result.AcceptBribe && c.bribeObserved(officer, trigger.Day) {
		officer.BribeSusceptibility = clampFrac(officer.BribeSusceptibility + float64(c.cfg.BribeDriftPermille)/1000)
		c.closeCold(ctx, officer, pc, "leads dried up; the file notes nothing actionable")
		return
	}

	// 5. Append the day's case note.
	suspects := result.SuspectRank
	if len(suspects) == 0 {
		suspects = c.namesOf(pc.Suspects)
	}
	c.cases.AddNote(pc, CaseNote{Day: c.day, Text: result.CaseNote, Suspects: suspects, Confidence: result.Confidence})
	for _, s := range result.SuspectRank {
		if a := c.AgentByName(s); a != nil {
			c.cases.AddSuspect(pc, a.ID)
		}
	}

	// 6. Arrest request above the confidence threshold.
	if result.RequestArrest && result.Confidence >= float64(c.cfg.ArrestConfidencePermille)/1000 {
		if suspect := c.topSuspect(pc, result.SuspectRank); suspect != "" {
			c.queueArrest(suspect, pc.ID, "investigation")
		}
	}

	// 7. Cold sweep.
	c.sweepCold(ctx, officer, pc)
}

func (c *City) sweepCold(ctx context.Context, officer *Agent, pc *PoliceCase) {
	if pc.Status != CaseOpen {
		return
	}
	if c.day-pc.LastEvidence >= c.cfg.ColdCaseDays && c.day-pc.DayOpened >= c.cfg.ColdCaseDays {
		c.closeCold(ctx, officer, pc, "")
	}
}

// closeCold writes the closing narrative from police-scope evidence only
// and applies the complainant's cold-case mood hit.
func (c *City) closeCold(ctx context.Context, officer *Agent, pc *PoliceCase, bias string) {
	report := bias
	if report == "" {
		var lines []string
		for _, e := range c.events.PoliceScope(pc.DayOpened-2, "", "") {
			if e.CaseID == pc.ID {
				lines = append(lines, c.describeEvidence(e))
			}
		}
		rctx, cancel := context.WithTimeout(ctx, c.decisionTimeout())
		text, err := c.reasoner.WriteNarrative(rctx, protocol.NarrativeRequest{
			Kind:         protocol.NarrativeClosing,
			Day:          c.day,
			WriterName:   officer.Name,
			PublicEvents: lines,
		})
		cancel()
		if err != nil {
			text = fmt.Sprintf("Case #%d closed without arrest after %d days.", pc.ID, c.day-pc.DayOpened)
		}
		report = text
	}
	c.cases.MarkCold(pc, c.day, report)
	if comp := c.agents[pc.Complainant]; comp != nil && comp.Alive() {
		comp.addMood(MoodColdCase)
	}
}

// bribeObserved checks the ledger for a transfer into the officer around
// the case window with a bribe-shaped reason.
func (c *City) bribeObserved(officer *Agent, sinceDay int) bool {
	for _, tx := range c.ledger.TransactionsAround([]string{officer.ID}, sinceDay, c.day) {
		if tx.To == officer.ID && tx.Kind == TxTransfer && tx.Reason == "bribe" {
			return true
		}
	}
	return false
}

func (c *City) topSuspect(pc *PoliceCase, ranked []string) string {
	for _, name := range ranked {
		if a := c.AgentByName(name); a != nil && a.Alive() {
			return a.ID
		}
	}
	for _, id := range pc.Suspects {
		if a := c.agents[id]; a != nil && a.Alive() {
			return id
		}
	}
	return ""
}

func (c *City) queueArrest(suspectID string, caseID uint64, reason string) {
	for _, ar := range c.arrestQueue {
		if ar.Suspect == suspectID && ar.CaseID == caseID {
			return
		}
	}
	c.arrestQueue = append(c.arrestQueue, arrestRequest{Suspect: suspectID, CaseID: caseID, Reason: reason})
}

func (c *City) describeEvidence(e *Event) string {
	s := fmt.Sprintf("event #%d, day %d, %s", e.ID, e.Day, e.Kind)
	if e.Visibility == VisWitnessed {
		// Police knows someone saw something, not the full record.
		return s + fmt.Sprintf(": %d witness(es) reported unusual activity", len(e.Witnesses))
	}
	return s + ": " + e.Description
}

func (c *City) namesOf(ids []string) []string {
	var out []string
	for _, id := range ids {
		if a := c.agents[id]; a != nil {
			out = append(out, a.Name)
		}
	}
	return out
}

func (c *City) decisionTimeout() time.Duration {
	return time.Duration(c.cfg.DecisionTimeoutMs) * time.Millisecond
}

func orVault(id string) string {
	if id == "" {
		return "sink"
	}
	return id
}

func clampFrac(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
