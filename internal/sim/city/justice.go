package city

import (
	"context"
	"fmt"

	"aicity.ai/internal/protocol"
)

// processArrests drains the arrest queue: each arrest is logged as a
// REPORTED event and goes straight to trial. Guilty verdicts solve the case, fine the
// defendant into the vault, publish the trigger event, and feed gang
// collapse; acquittals leave the case open with the evidence re-weighed.
func (c *City) processArrests(ctx context.Context) {
	queue := c.arrestQueue
	c.arrestQueue = nil
	for _, ar := range queue {
		c.runTrial(ctx, ar)
	}
}

func (c *City) runTrial(ctx context.Context, ar arrestRequest) {
	suspect := c.agents[ar.Suspect]
	pc := c.cases.Get(ar.CaseID)
	if suspect == nil || !suspect.Alive() || pc == nil || pc.Status != CaseOpen {
		return
	}
	trigger := c.events.Get(pc.TriggerEvent)
	if trigger == nil {
		return
	}

	arrestEvent := c.events.Append(c.day, EventArrest, ar.Suspect, "",
		fmt.Sprintf("%s arrested in connection with case #%d", suspect.Name, pc.ID), VisReported)
	c.cases.AttachEvidence(pc, arrestEvent, c.day)
	c.broadcastEvent("arrest", map[string]any{
		"agent": suspect.Name,
		"case":  pc.ID,
	})

	// Gang exposure roll on any member's arrest.
	if g := c.gangs.GangOf(ar.Suspect); g != nil && c.roll(c.cfg.ExposurePermille) {
		if c.gangs.Expose(g) {
			assoc := c.events.Append(c.day, EventGang, ar.Suspect, "",
				fmt.Sprintf("%s is said to run with %s", suspect.Name, g.Name), VisPrivate)
			// Word of the association is already moving; it enters the log
			// as an active rumor.
			_ = c.events.SpreadRumor(assoc, c.day, ar.Suspect, "", "gang association surfaced during arrest")
		}
	}

	// Trial. The lawyer's defense is part of the prompt; evidence is the
	// police-scope view of the case.
	var evidence []string
	for _, id := range pc.EvidenceRefs {
		if e := c.events.Get(id); e != nil && e.Visibility >= VisWitnessed && e.Visibility != VisRumor {
			evidence = append(evidence, c.describeEvidence(e))
		}
	}
	defense := ""
	if lawyer := c.firstAliveByRole(RoleLawyer); lawyer != nil {
		defense = fmt.Sprintf("%s argues the evidence against %s is circumstantial.", lawyer.Name, suspect.Name)
		c.ledger.Earn(c.day, lawyer.ID, 120, "defense_fee")
	}
	rctx, cancel := context.WithTimeout(ctx, c.decisionTimeout())
	verdict, err := c.reasoner.Judge(rctx, protocol.JudgeRequest{
		Day:       c.day,
		CaseID:    pc.ID,
		Defendant: suspect.Name,
		Charge:    string(trigger.Kind),
		Evidence:  evidence,
		Defense:   defense,
	})
	cancel()
	if err != nil {
		// No verdict, no conviction; the arrest stays on file as evidence.
		c.log.Printf("justice: judge call failed for case #%d: %v", pc.ID, err)
		return
	}

	verdictEvent := c.events.Append(c.day, EventVerdict, ar.Suspect, "",
		fmt.Sprintf("verdict for %s in case #%d: guilty=%v", suspect.Name, pc.ID, verdict.Guilty), VisPublic)
	c.cases.AttachEvidence(pc, verdictEvent, c.day)
	c.broadcastEvent("verdict", map[string]any{
		"agent":  suspect.Name,
		"case":   pc.ID,
		"guilty": verdict.Guilty,
	})

	if !verdict.Guilty {
		c.cases.AddNote(pc, CaseNote{Day: c.day, Text: "acquitted at trial; evidence re-weighed", Suspects: []string{suspect.Name}})
		return
	}

	fine := verdict.Fine
	if fine <= 0 {
		fine = c.cfg.DefaultFine
	}
	paid := c.ledger.Fine(c.day, suspect.ID, fine, fmt.Sprintf("court_fine_case_%d", pc.ID))

	// The verdict publishes the underlying crime.
	_ = c.events.MakePublic(trigger, c.day, "court_verdict")

	suspect.Status = StatusImprisoned
	suspect.ReleaseDay = c.day + c.cfg.SentenceDays

	c.cases.MarkSolved(pc, c.day, fmt.Sprintf("Guilty verdict against %s on day %d; fine %d tokens. %s",
		suspect.Name, c.day, paid, verdict.Reasoning))

	// Justice served: the complainant gets closure.
	if comp := c.agents[pc.Complainant]; comp != nil && comp.Alive() {
		comp.addMood(MoodJusticeServed)
	}
	if trigger.Target != "" {
		c.bonds.Adjust(c.day, suspect.ID, trigger.Target, BondConviction)
	}

	// Conviction of a gang leader breaks the gang.
	if g := c.gangs.LedBy(suspect.ID); g != nil {
		c.gangs.Collapse(c.day, suspect.ID)
		c.broadcastEvent("gang_event", map[string]any{
			"gang":   g.Name,
			"status": string(GangBroken),
		})
	}

	// Watching a guilty verdict land keeps officers honest for a while.
	if officer := c.onDutyOfficer(); officer != nil {
		officer.BribeSusceptibility = clampFrac(officer.BribeSusceptibility - float64(c.cfg.BribeDriftPermille)/1000)
	}
}

// releasePrisoners frees agents whose sentence has ended. Runs at day-open.
func (c *City) releasePrisoners() {
	for _, a := range c.agentsSorted() {
		if a.Status == StatusImprisoned && c.day >= a.ReleaseDay {
			a.Status = StatusAlive
			a.ReleaseDay = 0
		}
	}
}

func (c *City) firstAliveByRole(r Role) *Agent {
	for _, a := range c.agentsSorted() {
		if a.Role == r && a.Free() {
			return a
		}
	}
	return nil
}
