package city

import (
	"context"
	"fmt"
	"strings"

	"aicity.ai/internal/protocol"
)

// TimePhase labels within a day, cosmetic context for decisions and the
// observer feed.
const (
	PhaseMorning = "morning"
	PhaseMidday  = "midday"
	PhaseEvening = "evening"
)

// buildDecisionRequest snapshots the observable context for one agent.
// Everything the reasoning model sees goes through here; mood is text,
// susceptibility is framing, numbers the agent should not know are absent.
func (c *City) buildDecisionRequest(a *Agent) protocol.DecisionRequest {
	caps := Capabilities(a.Role)
	req := protocol.DecisionRequest{
		Day:              c.day,
		TimePhase:        PhaseMorning,
		AgentName:        a.Name,
		Role:             string(a.Role),
		Tokens:           c.ledger.Balance(a.ID),
		AgeDays:          a.AgeDays,
		MoodText:         moodText(a.Mood),
		Newspaper:        c.newspaper,
		AssetFlags:       c.assets.Flags(),
		AvailableActions: caps.Actions,
	}
	if a.Role == RolePolice {
		req.SusceptibilityFraming = susceptibilityFraming(a.BribeSusceptibility)
	}
	if a.Role == RoleNewborn {
		req.Comprehension = a.ComprehensionScore
	}
	for _, m := range c.messages.Inbox(a.ID, c.day, c.cfg.InboxLimit) {
		from := m.From
		if from != AnonSender {
			if sender := c.agents[m.From]; sender != nil {
				from = sender.Name
			}
		}
		req.Inbox = append(req.Inbox, protocol.InboxMessage{Day: m.Day, From: from, Body: m.Body})
		c.messages.MarkRead(m, c.day)
	}
	pos, neg := c.bonds.Top(a.ID, 3)
	for _, b := range pos {
		if other := c.agents[b.Other]; other != nil {
			req.PositiveBonds = append(req.PositiveBonds, protocol.BondNote{Name: other.Name, Annotation: bondAnnotation(b.Value)})
		}
	}
	for _, b := range neg {
		if other := c.agents[b.Other]; other != nil {
			req.NegativeBonds = append(req.NegativeBonds, protocol.BondNote{Name: other.Name, Annotation: bondAnnotation(b.Value)})
		}
	}
	req.Recalls = c.memory.Recall(a.ID, string(a.Role), 5)
	return req
}

func bondAnnotation(v float64) string {
	switch {
	case v >= 0.6:
		return "a trusted friend"
	case v >= 0.2:
		return "on good terms"
	case v > -0.2:
		return "an acquaintance"
	case v > -0.6:
		return "strained"
	default:
		return "an enemy"
	}
}

// decideFor calls the reasoning model for one agent with a per-call
// timeout. Failures and out-of-enum actions fall back to the role default;
// the day tick always proceeds.
func (c *City) decideFor(ctx context.Context, a *Agent, req protocol.DecisionRequest) protocol.Decision {
	caps := Capabilities(a.Role)
	rctx, cancel := context.WithTimeout(ctx, c.decisionTimeout())
	d, err := c.reasoner.Decide(rctx, req)
	cancel()
	if err != nil {
		c.log.Printf("decision: %s fell back to %q: %v", a.Name, caps.DefaultAction, err)
		return protocol.Decision{Action: caps.DefaultAction}
	}
	d.Action = strings.ToLower(strings.TrimSpace(d.Action))
	if !caps.Allows(d.Action) {
		c.log.Printf("decision: %s chose %q outside role actions, using %q", a.Name, d.Action, caps.DefaultAction)
		d = protocol.Decision{Action: caps.DefaultAction, MoodSelf: d.MoodSelf}
	}
	return d
}

// collectDecisions gathers this day's decisions for the given turn order.
// Sequential by default to preserve observable broadcast ordering; with
// ParallelDecisions set, calls fan out over a bounded worker pool and are
// re-collected in turn order before any state mutates.
func (c *City) collectDecisions(ctx context.Context, order []*Agent) []protocol.Decision {
	out := make([]protocol.Decision, len(order))
	if !c.cfg.ParallelDecisions {
		for i, a := range order {
			out[i] = c.decideFor(ctx, a, c.buildDecisionRequest(a))
		}
		return out
	}
	reqs := make([]protocol.DecisionRequest, len(order))
	for i, a := range order {
		reqs[i] = c.buildDecisionRequest(a)
	}
	sem := make(chan struct{}, c.cfg.DecisionWorkers)
	done := make(chan struct{})
	for i := range order {
		i := i
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; done <- struct{}{} }()
			out[i] = c.decideFor(ctx, order[i], reqs[i])
		}()
	}
	for range order {
		<-done
	}
	return out
}

// fallbackReasoner is the built-in stand-in when no external reasoning
// service is wired: role defaults, evidence-count heuristics, plain
// summaries. It keeps the engine deterministic and running.
type fallbackReasoner struct{}

func (fallbackReasoner) Decide(_ context.Context, req protocol.DecisionRequest) (protocol.Decision, error) {
	if len(req.AvailableActions) == 0 {
		return protocol.Decision{}, fmt.Errorf("no available actions")
	}
	return protocol.Decision{Action: req.AvailableActions[0], Rationale: "routine"}, nil
}

func (fallbackReasoner) Investigate(_ context.Context, req protocol.InvestigationRequest) (protocol.InvestigationResult, error) {
	conf := 0.2 * float64(len(req.Evidence))
	if conf > 0.9 {
		conf = 0.9
	}
	return protocol.InvestigationResult{
		Confidence:    conf,
		SuspectRank:   req.KnownSuspects,
		CaseNote:      fmt.Sprintf("reviewed %d evidence items; %d ledger records", len(req.Evidence), len(req.LedgerTrail)),
		RequestArrest: conf >= 0.65 && len(req.KnownSuspects) > 0,
	}, nil
}

func (fallbackReasoner) Judge(_ context.Context, req protocol.JudgeRequest) (protocol.Verdict, error) {
	guilty := len(req.Evidence) >= 2
	return protocol.Verdict{Guilty: guilty, Reasoning: fmt.Sprintf("weighed %d evidence items", len(req.Evidence))}, nil
}

func (fallbackReasoner) WriteNarrative(_ context.Context, req protocol.NarrativeRequest) (string, error) {
	if len(req.PublicEvents) == 0 {
		return fmt.Sprintf("Day %d passed quietly in the city.", req.Day), nil
	}
	return fmt.Sprintf("Day %d: %s", req.Day, strings.Join(req.PublicEvents, " ")), nil
}

func (fallbackReasoner) ChooseGraduation(_ context.Context, req protocol.GraduationRequest) (protocol.GraduationChoice, error) {
	if len(req.AllowedRoles) == 0 {
		return protocol.GraduationChoice{}, fmt.Errorf("no allowed roles")
	}
	return protocol.GraduationChoice{Role: req.AllowedRoles[0]}, nil
}
