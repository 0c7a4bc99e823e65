package city

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"

	"aicity.ai/internal/protocol"
)

// scriptedReasoner scripts each operation per test; unset hooks return
// quiet defaults (rest, low confidence, not guilty).
type scriptedReasoner struct {
	decide      func(req protocol.DecisionRequest) protocol.Decision
	investigate func(req protocol.InvestigationRequest) protocol.InvestigationResult
	judge       func(req protocol.JudgeRequest) protocol.Verdict
	narrate     func(req protocol.NarrativeRequest) string

	narrativeReqs []protocol.NarrativeRequest
}

func (s *scriptedReasoner) Decide(_ context.Context, req protocol.DecisionRequest) (protocol.Decision, error) {
	if s.decide != nil {
		return s.decide(req), nil
	}
	return protocol.Decision{Action: ActRest}, nil
}

func (s *scriptedReasoner) Investigate(_ context.Context, req protocol.InvestigationRequest) (protocol.InvestigationResult, error) {
	if s.investigate != nil {
		return s.investigate(req), nil
	}
	return protocol.InvestigationResult{Confidence: 0.1, CaseNote: "nothing new"}, nil
}

func (s *scriptedReasoner) Judge(_ context.Context, req protocol.JudgeRequest) (protocol.Verdict, error) {
	if s.judge != nil {
		return s.judge(req), nil
	}
	return protocol.Verdict{Guilty: false}, nil
}

func (s *scriptedReasoner) WriteNarrative(_ context.Context, req protocol.NarrativeRequest) (string, error) {
	s.narrativeReqs = append(s.narrativeReqs, req)
	if s.narrate != nil {
		return s.narrate(req), nil
	}
	return fmt.Sprintf("Day %d, %d items of record.", req.Day, len(req.PublicEvents)), nil
}

func (s *scriptedReasoner) ChooseGraduation(_ context.Context, req protocol.GraduationRequest) (protocol.GraduationChoice, error) {
	return protocol.GraduationChoice{Role: req.AllowedRoles[0]}, nil
}

// quietConfig disables every stochastic mechanism so scripted tests are
// fully deterministic. Negative permilles mean "off".
func quietConfig() CityConfig {
	return CityConfig{
		Seed:                 7,
		StartingAgents:       1,
		PopulationFloor:      -1,
		HeartAttackPermille:  -1,
		WindfallPermille:     -1,
		WitnessChance:        -1,
		BusyWitnessChance:    -1,
		VictimReportChance:   -1,
		FormationPermille:    -1,
		ExposurePermille:     -1,
		ArrestChancePermille: -1,
		WatchtowerArrestPermille: -1,
		BribeDriftPermille:   -1,
		WelfareFloor:         -1,
		WelfareGrant:         -1,
		CommunityBonus:       -1,
		SurplusThreshold:     1 << 40,
		TheftSuccessPermille: 1000,
	}
}

func testLogger() *log.Logger { return log.New(os.Stderr, "[test] ", 0) }

// grant tops up an agent outside the cap path so multi-week scenarios
// survive the daily burn.
func grant(t *testing.T, c *City, id string, amount int) {
	t.Helper()
	net, _ := c.ledger.Earn(c.day, id, amount, "test_grant")
	if net == 0 {
		t.Fatalf("grant to %s did not credit", id)
	}
}

func runDays(t *testing.T, c *City, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := c.SimulateDay(context.Background()); err != nil {
			t.Fatalf("day %d: %v", c.Day(), err)
		}
	}
}

// Scenario A: with no earnings, the daily burn starves the whole cohort on
// schedule; the poorest agent dies first and a public death record fires.
func TestScenario_FirstDeath(t *testing.T) {
	cfg := quietConfig()
	r := &scriptedReasoner{} // everyone rests
	c := New(cfg, testLogger(), WithReasoner(r))

	var poor *Agent
	for i := 0; i < 10; i++ {
		a, err := c.SpawnAgent(fmt.Sprintf("citizen-%02d", i), RoleBuilder)
		if err != nil {
			t.Fatalf("spawn: %v", err)
		}
		if i == 0 {
			poor = a
		} else {
			grant(t, c, a.ID, 2000)
		}
	}

	runDays(t, c, 9)
	if poor.Status != StatusAlive {
		t.Fatalf("poorest died early on day %d", c.Day())
	}
	runDays(t, c, 1)

	if poor.Status != StatusDead || poor.CauseOfDeath != "starvation" {
		t.Fatalf("day 10: status=%s cause=%q", poor.Status, poor.CauseOfDeath)
	}
	if got := c.ledger.Balance(poor.ID); got != 0 {
		t.Fatalf("dead balance = %d, want 0", got)
	}
	if got := c.GraveyardCount(); got != 1 {
		t.Fatalf("graveyard = %d, want 1", got)
	}
	var death *Event
	for _, e := range c.events.CreatedOn(10) {
		if e.Kind == EventDeath && e.Actor == poor.ID {
			death = e
		}
	}
	if death == nil || death.Visibility != VisPublic {
		t.Fatalf("death event missing or not public: %+v", death)
	}

	// No subsequent tick may resurrect: the record is terminal.
	runDays(t, c, 1)
	if poor.Status != StatusDead || c.ledger.Balance(poor.ID) != 0 {
		t.Fatal("dead agent mutated after death")
	}
}

// Scenario B: theft -> witness -> report -> investigation -> arrest ->
// guilty verdict. Checks fine routing, visibility, mood and bond fallout.
func TestScenario_TheftReportVerdict(t *testing.T) {
	cfg := quietConfig()
	cfg.WitnessChance = 1000
	cfg.BusyWitnessChance = 1000

	r := &scriptedReasoner{}
	c := New(cfg, testLogger(), WithReasoner(r))

	thief, _ := c.SpawnAgent("Sly", RoleThief)
	merchant, _ := c.SpawnAgent("Marla", RoleMerchant)
	officer, _ := c.SpawnAgent("Pryce", RolePolice)
	bystander, _ := c.SpawnAgent("Finn", RoleBuilder)
	for _, a := range []*Agent{thief, merchant, officer, bystander} {
		grant(t, c, a.ID, 8000)
	}
	grant(t, c, merchant.ID, 30000) // the richest target

	r.decide = func(req protocol.DecisionRequest) protocol.Decision {
		switch {
		case req.AgentName == "Sly" && req.Day == 3:
			return protocol.Decision{Action: ActSteal}
		case req.AgentName == "Marla" && req.Day == 4:
			return protocol.Decision{Action: ActReport}
		default:
			return protocol.Decision{Action: ActRest}
		}
	}
	r.investigate = func(req protocol.InvestigationRequest) protocol.InvestigationResult {
		if req.Day >= 5 {
			return protocol.InvestigationResult{
				Confidence:    0.9,
				SuspectRank:   []string{"Sly"},
				CaseNote:      "the ledger trail points one way",
				RequestArrest: true,
			}
		}
		return protocol.InvestigationResult{Confidence: 0.3, CaseNote: "canvassing"}
	}
	r.judge = func(req protocol.JudgeRequest) protocol.Verdict {
		return protocol.Verdict{Guilty: true, Fine: 300, Reasoning: "clear pattern"}
	}

	runDays(t, c, 3)

	var theft *Event
	for _, e := range c.events.CreatedOn(3) {
		if e.Kind == EventTheft && e.Actor == thief.ID {
			theft = e
		}
	}
	if theft == nil {
		t.Fatal("no theft on day 3")
	}
	if theft.Target != merchant.ID {
		t.Fatalf("theft target = %s, want the richest merchant", theft.Target)
	}
	if theft.Visibility != VisWitnessed {
		t.Fatalf("day 3 visibility = %s, want WITNESSED", theft.Visibility)
	}
	bondAfterTheft := c.bonds.Get(thief.ID, merchant.ID)

	runDays(t, c, 1) // day 4: the report
	if theft.Visibility < VisReported {
		t.Fatalf("day 4 visibility = %s, want REPORTED", theft.Visibility)
	}
	pc := c.cases.ForEvent(theft.ID)
	if pc == nil || pc.Status != CaseOpen {
		t.Fatalf("case not open after report: %+v", pc)
	}

	vaultBefore := c.ledger.Vault().VaultBalance
	thiefBefore := c.ledger.Balance(thief.ID)
	moodBeforeVerdict := merchant.Mood
	runDays(t, c, 3) // days 5-7: investigate, arrest, verdict

	if pc.Status != CaseSolved {
		t.Fatalf("case status = %s, want solved", pc.Status)
	}
	if theft.Visibility != VisPublic {
		t.Fatalf("visibility after verdict = %s, want PUBLIC", theft.Visibility)
	}
	if got := c.ledger.Balance(thief.ID); got > thiefBefore-300+200 {
		// The fine plus three days of burn; the exact rest is burn noise.
		t.Fatalf("thief balance %d -> %d, fine not collected", thiefBefore, got)
	}
	if got := c.ledger.Vault().VaultBalance; got < vaultBefore+300 {
		t.Fatalf("vault %d -> %d, want +300 fine", vaultBefore, got)
	}
	if merchant.Mood < moodBeforeVerdict+0.19 {
		t.Fatalf("merchant mood = %v (was %v), want +0.20 justice bump", merchant.Mood, moodBeforeVerdict)
	}
	if got := c.bonds.Get(thief.ID, merchant.ID); bondAfterTheft-got < 0.15 || got > -0.30 {
		t.Fatalf("bond = %v (after theft %v), want total drop >= 0.30", got, bondAfterTheft)
	}
	if thief.Status != StatusImprisoned {
		t.Fatalf("thief status = %s, want imprisoned", thief.Status)
	}
}

// Scenario C: mood-driven gang formation, criminal multiplier while
// active, collapse on the leader's conviction.
func TestScenario_GangFormationAndCollapse(t *testing.T) {
	cfg := quietConfig()
	cfg.FormationPermille = 1000

	r := &scriptedReasoner{}
	c := New(cfg, testLogger(), WithReasoner(r))

	leader, _ := c.SpawnAgent("Vex", RoleGangLeader)
	d1, _ := c.SpawnAgent("Moss", RoleBuilder)
	d2, _ := c.SpawnAgent("Reyes", RoleBuilder)
	victim, _ := c.SpawnAgent("Marla", RoleMerchant)
	officer, _ := c.SpawnAgent("Pryce", RolePolice)
	for _, a := range []*Agent{leader, d1, d2, victim, officer} {
		grant(t, c, a.ID, 10000)
	}
	grant(t, c, victim.ID, 30000)
	d1.Mood = -0.8
	d2.Mood = -0.8

	r.decide = func(req protocol.DecisionRequest) protocol.Decision {
		switch {
		case req.AgentName == "Vex" && req.Day == 1:
			return protocol.Decision{Action: ActRecruit}
		case req.AgentName == "Vex" && req.Day == 2:
			return protocol.Decision{Action: ActSteal}
		default:
			return protocol.Decision{Action: ActRest}
		}
	}

	runDays(t, c, 1)
	g := c.gangs.LedBy(leader.ID)
	if g == nil || len(g.Members) != 3 {
		t.Fatalf("gang = %+v, want 3 members on day 1", g)
	}

	runDays(t, c, 1) // day 2: leader steals with the 1.4x multiplier
	foundBonus := false
	for _, tx := range c.ledger.Transactions() {
		if tx.Day == 2 && tx.To == leader.ID && strings.Contains(tx.Reason, "fence_bonus") {
			foundBonus = true
		}
	}
	if !foundBonus {
		t.Fatal("no fence bonus on the leader's gang-backed theft")
	}

	// Conviction: the victim reports, investigation nails the leader.
	r.decide = func(req protocol.DecisionRequest) protocol.Decision {
		if req.AgentName == "Marla" && req.Day == 3 {
			return protocol.Decision{Action: ActReport}
		}
		return protocol.Decision{Action: ActRest}
	}
	r.investigate = func(req protocol.InvestigationRequest) protocol.InvestigationResult {
		return protocol.InvestigationResult{Confidence: 0.9, SuspectRank: []string{"Vex"}, CaseNote: "pattern", RequestArrest: true}
	}
	r.judge = func(req protocol.JudgeRequest) protocol.Verdict {
		return protocol.Verdict{Guilty: true, Fine: 300}
	}
	runDays(t, c, 2) // days 3-4

	if g.Status != GangBroken {
		t.Fatalf("gang status = %s, want broken after the leader's conviction", g.Status)
	}
	if got := c.gangs.Multiplier(d1.ID, &c.cfg); got != 1.0 {
		t.Fatalf("member multiplier after collapse = %v, want 1.0", got)
	}
}

// Scenario D: hospital build with the required healer, completion on day
// 5, healer benefit on day 6.
func TestScenario_ProjectCompletion(t *testing.T) {
	cfg := quietConfig()
	r := &scriptedReasoner{}
	c := New(cfg, testLogger(), WithReasoner(r))

	builder, _ := c.SpawnAgent("Bram", RoleBuilder)
	healer, _ := c.SpawnAgent("Isla", RoleHealer)
	grant(t, c, builder.ID, 5000)
	grant(t, c, healer.ID, 5000)

	r.decide = func(req protocol.DecisionRequest) protocol.Decision {
		if req.AgentName == "Bram" && req.Day == 1 {
			return protocol.Decision{Action: ActStartProject, Target: "hospital"}
		}
		if req.Day <= 5 {
			return protocol.Decision{Action: ActWorkProject}
		}
		return protocol.Decision{Action: ActRest}
	}

	runDays(t, c, 5)

	p := c.projects.ActiveOfType("hospital")
	if p != nil {
		t.Fatalf("hospital still active: progress=%v", p.Progress)
	}
	asset := c.assets.Standing("hospital")
	if asset == nil {
		t.Fatal("no standing hospital after day 5")
	}
	for _, pr := range c.projects.All() {
		if pr.Type == "hospital" && (pr.Status != ProjectCompleted || pr.DayCompleted != 5) {
			t.Fatalf("project = %+v", pr)
		}
	}

	runDays(t, c, 1) // day 6: the benefit lands before turns
	found := false
	for _, tx := range c.ledger.Transactions() {
		if tx.Day == 6 && tx.To == healer.ID && tx.Reason == "hospital_practice" && tx.Amount == BenefitHospitalHealer {
			found = true
		}
	}
	if !found {
		t.Fatal("healer did not receive the hospital daily bonus")
	}
}

// Scenario E: a reported theft goes cold after fourteen quiet days, then a
// late witness reopens it with fresh evidence.
func TestScenario_ColdCaseReopen(t *testing.T) {
	cfg := quietConfig()
	r := &scriptedReasoner{}
	c := New(cfg, testLogger(), WithReasoner(r))

	thief, _ := c.SpawnAgent("Sly", RoleThief)
	victim, _ := c.SpawnAgent("Marla", RoleMerchant)
	witness, _ := c.SpawnAgent("Finn", RoleBuilder)
	officer, _ := c.SpawnAgent("Pryce", RolePolice)
	for _, a := range []*Agent{thief, victim, witness, officer} {
		grant(t, c, a.ID, 50000)
	}

	runDays(t, c, 1)
	theft := c.events.Append(1, EventTheft, thief.ID, victim.ID, "tokens went missing overnight", VisPrivate)

	runDays(t, c, 1) // day 2
	if err := c.events.FileReport(theft, 2, victim.ID); err != nil {
		t.Fatalf("report: %v", err)
	}
	pc := c.cases.Open(2, theft, victim.ID)

	runDays(t, c, 14) // days 3-16, nothing new
	if pc.Status != CaseCold {
		t.Fatalf("day 16 status = %s, want cold", pc.Status)
	}
	if pc.ClosingReport == "" {
		t.Fatal("cold case has no closing narrative")
	}

	runDays(t, c, 9) // to day 25
	if _, err := c.events.MarkWitnessed(theft, []string{witness.ID}, func(int) int { return 0 }); err != nil {
		t.Fatalf("late witness: %v", err)
	}
	if err := c.events.FileReport(theft, 25, witness.ID); err != nil {
		t.Fatalf("second report: %v", err)
	}
	arrestEvidence := c.events.Append(25, EventTheft, thief.ID, victim.ID, "a pawned trinket resurfaced", VisReported)
	c.cases.AttachEvidence(pc, arrestEvidence, 25)

	if pc.Status != CaseOpen {
		t.Fatalf("status after new evidence = %s, want reopened", pc.Status)
	}
	if pc.LastEvidence != 25 {
		t.Fatalf("last evidence = %d, want 25", pc.LastEvidence)
	}
}

// Scenario F: rumors never reach the narrator. Five planted rumor events
// must not appear in any narrative request input.
func TestScenario_NarratorContainment(t *testing.T) {
	cfg := quietConfig()
	r := &scriptedReasoner{}
	c := New(cfg, testLogger(), WithReasoner(r))

	messenger, _ := c.SpawnAgent("Quill", RoleMessenger)
	actor, _ := c.SpawnAgent("Sly", RoleThief)
	grant(t, c, messenger.ID, 20000)
	grant(t, c, actor.ID, 20000)

	secrets := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		desc := fmt.Sprintf("secret-incident-%d", i)
		e := c.events.Append(0, EventTheft, actor.ID, "", desc, VisPrivate)
		_, _ = c.events.MarkWitnessed(e, []string{messenger.ID}, func(int) int { return 0 })
		_ = c.events.SpreadRumor(e, 0, messenger.ID, actor.ID, "whispers about "+desc)
		secrets = append(secrets, desc)
	}
	// One genuinely public event as a control.
	c.events.Append(0, EventBirth, actor.ID, "", "public-festival", VisPublic)

	runDays(t, c, 3)

	if len(r.narrativeReqs) == 0 {
		t.Fatal("the messenger never wrote")
	}
	for _, req := range r.narrativeReqs {
		for _, line := range req.PublicEvents {
			for _, s := range secrets {
				if strings.Contains(line, s) {
					t.Fatalf("narrator input leaked %q: %q", s, line)
				}
			}
		}
	}
	// And the scope query itself never surfaces them at any day.
	for _, e := range c.events.NarratorScope(0) {
		for _, s := range secrets {
			if strings.Contains(e.Description, s) {
				t.Fatalf("narrator scope leaked %q", s)
			}
		}
	}
}

// Five independent knowers push an event public without any verdict.
func TestPromotion_KnowerThreshold(t *testing.T) {
	cfg := quietConfig()
	cfg.WitnessChance = 1000
	cfg.BusyWitnessChance = 1000
	r := &scriptedReasoner{}
	c := New(cfg, testLogger(), WithReasoner(r))

	thief, _ := c.SpawnAgent("Sly", RoleThief)
	victim, _ := c.SpawnAgent("Marla", RoleMerchant)
	grant(t, c, thief.ID, 5000)
	grant(t, c, victim.ID, 30000)
	for i := 0; i < 5; i++ {
		a, _ := c.SpawnAgent(fmt.Sprintf("bystander-%d", i), RoleBuilder)
		grant(t, c, a.ID, 5000)
	}

	r.decide = func(req protocol.DecisionRequest) protocol.Decision {
		if req.AgentName == "Sly" && req.Day == 1 {
			return protocol.Decision{Action: ActSteal}
		}
		return protocol.Decision{Action: ActRest}
	}
	runDays(t, c, 1)

	var theft *Event
	for _, e := range c.events.CreatedOn(1) {
		if e.Kind == EventTheft {
			theft = e
		}
	}
	if theft == nil {
		t.Fatal("no theft")
	}
	// Everyone co-located witnessed it: 5 bystanders plus the victim's own
	// discovery crosses the threshold during promotions.
	if c.events.KnowerCount(theft.ID) < 5 {
		t.Fatalf("knowers = %d, want >= 5", c.events.KnowerCount(theft.ID))
	}
	if theft.Visibility != VisPublic {
		t.Fatalf("visibility = %s, want PUBLIC via the knower threshold", theft.Visibility)
	}
}
