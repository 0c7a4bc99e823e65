package city

import (
	"context"
	"errors"
	"testing"

	"aicity.ai/internal/protocol"
)

type failingReasoner struct{ scriptedReasoner }

func (f *failingReasoner) Decide(context.Context, protocol.DecisionRequest) (protocol.Decision, error) {
	return protocol.Decision{}, errors.New("model unavailable")
}

// A dead reasoning service falls back to role defaults; the tick proceeds.
func TestDecision_FallbackOnReasonerFailure(t *testing.T) {
	cfg := quietConfig()
	c := New(cfg, testLogger(), WithReasoner(&failingReasoner{}))
	a, _ := c.SpawnAgent("Bram", RoleBuilder)
	grant(t, c, a.ID, 3000)

	runDays(t, c, 1)
	// The builder's default is work: a daily_work earn must exist.
	found := false
	for _, tx := range c.ledger.Transactions() {
		if tx.Day == 1 && tx.To == a.ID && tx.Reason == "daily_work" {
			found = true
		}
	}
	if !found {
		t.Fatal("fallback did not run the role default action")
	}
}

// An out-of-enum action from the model is replaced by the role default.
func TestDecision_RejectsOutOfEnumAction(t *testing.T) {
	cfg := quietConfig()
	r := &scriptedReasoner{
		decide: func(req protocol.DecisionRequest) protocol.Decision {
			return protocol.Decision{Action: "rob_the_vault"}
		},
	}
	c := New(cfg, testLogger(), WithReasoner(r))
	a, _ := c.SpawnAgent("Sly", RoleThief)
	grant(t, c, a.ID, 3000)

	d := c.decideFor(context.Background(), a, c.buildDecisionRequest(a))
	if d.Action != ActLurk {
		t.Fatalf("action = %q, want the thief default %q", d.Action, ActLurk)
	}
}

// Boundary: a vault exactly at the surplus threshold funds public goods.
func TestVaultPolicy_SurplusBoundaryFundsProject(t *testing.T) {
	cfg := quietConfig()
	cfg.TotalSupply = 10_000
	cfg.StartingTokens = 1000
	r := &scriptedReasoner{}
	c := New(cfg, testLogger(), WithReasoner(r))
	a, _ := c.SpawnAgent("Bram", RoleBuilder)
	b, _ := c.SpawnAgent("Rios", RoleBuilder)
	_ = b
	// Vault is now exactly 8000.
	c.cfg.SurplusThreshold = c.ledger.Vault().VaultBalance

	p, err := c.projects.Start(0, a.ID, "road", [2]int{}, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	before := p.Progress
	c.runVaultPolicy()
	if p.Progress != before+1.0 {
		t.Fatalf("progress = %v, want +1.0 at the exact threshold", p.Progress)
	}
	if c.ledger.Vault().VaultBalance >= c.cfg.SurplusThreshold {
		t.Fatal("funding did not spend from the vault")
	}
}

// Welfare tops up everyone under the floor when the vault can fund it.
func TestVaultPolicy_WelfareFloor(t *testing.T) {
	cfg := quietConfig()
	cfg.WelfareFloor = 150
	cfg.WelfareGrant = 200
	r := &scriptedReasoner{}
	c := New(cfg, testLogger(), WithReasoner(r))
	a, _ := c.SpawnAgent("Bram", RoleBuilder)
	// Burn down to under the floor.
	if err := c.ledger.Spend(0, a.ID, 950, "setup"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	c.runVaultPolicy()
	if got := c.ledger.Balance(a.ID); got < 150 {
		t.Fatalf("balance after vault policy = %d, want >= the welfare floor", got)
	}
	if a.moodDelta < MoodWelfare {
		t.Fatalf("welfare mood delta missing: %v", a.moodDelta)
	}
}

// Imprisonment sits out turns and releases on schedule.
func TestJustice_SentenceAndRelease(t *testing.T) {
	cfg := quietConfig()
	r := &scriptedReasoner{}
	c := New(cfg, testLogger(), WithReasoner(r))
	a, _ := c.SpawnAgent("Sly", RoleThief)
	grant(t, c, a.ID, 3000)
	a.Status = StatusImprisoned
	a.ReleaseDay = 2

	runDays(t, c, 1)
	if a.Status != StatusImprisoned {
		t.Fatal("released a day early")
	}
	runDays(t, c, 1)
	if a.Status != StatusAlive {
		t.Fatalf("status on release day = %s, want alive", a.Status)
	}
}

// The gang exposure path promotes the association to rumor on arrest.
func TestJustice_GangExposureOnArrest(t *testing.T) {
	cfg := quietConfig()
	cfg.ExposurePermille = 1000
	r := &scriptedReasoner{
		judge: func(req protocol.JudgeRequest) protocol.Verdict {
			return protocol.Verdict{Guilty: false}
		},
	}
	c := New(cfg, testLogger(), WithReasoner(r))
	leader, _ := c.SpawnAgent("Vex", RoleGangLeader)
	member, _ := c.SpawnAgent("Moss", RoleThief)
	victim, _ := c.SpawnAgent("Marla", RoleMerchant)
	for _, a := range []*Agent{leader, member, victim} {
		grant(t, c, a.ID, 5000)
	}
	g := c.gangs.Form(0, leader.ID, []string{member.ID}, func(int) int { return 0 })

	theft := c.events.Append(0, EventTheft, member.ID, victim.ID, "a theft", VisPrivate)
	_ = c.events.FileReport(theft, 0, victim.ID)
	pc := c.cases.Open(0, theft, victim.ID)
	c.day = 1
	c.queueArrest(member.ID, pc.ID, "test")
	c.processArrests(context.Background())

	if !g.KnownToPolice {
		t.Fatal("gang not exposed on the member's arrest")
	}
	if pc.Status != CaseOpen {
		t.Fatalf("acquittal should leave the case open, got %s", pc.Status)
	}
}
