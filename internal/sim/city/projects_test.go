package city

import (
	"log"
	"os"
	"testing"
)

func testProjects() *ProjectSystem {
	return NewProjectSystem(log.New(os.Stderr, "[test] ", 0))
}

func TestProjects_FullCrewFullProgress(t *testing.T) {
	ps := testProjects()
	p, err := ps.Start(1, "A1", "hospital", [2]int{}, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// Hospital needs a builder plus the healer.
	crew := map[uint64]map[string]Role{p.ID: {"A1": RoleBuilder, "A2": RoleHealer}}
	completed, _ := ps.StepDay(1, 3, crew)
	if len(completed) != 0 {
		t.Fatal("completed on day 1")
	}
	if p.Progress != 1.0 {
		t.Fatalf("progress = %v, want 1.0 with the full crew", p.Progress)
	}
}

func TestProjects_PartialCrewHalfProgress(t *testing.T) {
	ps := testProjects()
	p, _ := ps.Start(1, "A1", "hospital", [2]int{}, false)
	crew := map[uint64]map[string]Role{p.ID: {"A1": RoleBuilder}} // no healer
	ps.StepDay(1, 3, crew)
	if p.Progress != 0.5 {
		t.Fatalf("progress = %v, want 0.5 without the required healer", p.Progress)
	}
}

func TestProjects_AbandonAfterIdleDays(t *testing.T) {
	ps := testProjects()
	p, _ := ps.Start(1, "A1", "road", [2]int{}, false)
	for day := 2; day <= 4; day++ {
		_, abandoned := ps.StepDay(day, 3, nil)
		if day < 4 && len(abandoned) != 0 {
			t.Fatalf("abandoned early on day %d", day)
		}
		if day == 4 && (len(abandoned) != 1 || abandoned[0].ID != p.ID) {
			t.Fatalf("day 4: abandoned = %v, want project %d", abandoned, p.ID)
		}
	}
	if p.Status != ProjectAbandoned {
		t.Fatalf("status = %s, want abandoned", p.Status)
	}
}

func TestProjects_CompletionAndBuilderList(t *testing.T) {
	ps := testProjects()
	p, _ := ps.Start(1, "A1", "road", [2]int{3, 4}, true) // goal 2
	crew := map[uint64]map[string]Role{p.ID: {"A1": RoleBuilder}}
	ps.StepDay(1, 3, crew)
	completed, _ := ps.StepDay(2, 3, crew)
	if len(completed) != 1 || p.Status != ProjectCompleted || p.DayCompleted != 2 {
		t.Fatalf("completion: status=%s day=%d", p.Status, p.DayCompleted)
	}
	builders := p.BuilderList()
	if len(builders) != 1 || builders[0] != "A1" {
		t.Fatalf("builders = %v", builders)
	}
}

func TestProjects_OneActivePerType(t *testing.T) {
	ps := testProjects()
	if _, err := ps.Start(1, "A1", "market", [2]int{}, false); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := ps.Start(1, "A2", "market", [2]int{}, false); err == nil {
		t.Fatal("second active market allowed")
	}
	if _, err := ps.Start(1, "A2", "no_such_type", [2]int{}, false); err == nil {
		t.Fatal("unknown type allowed")
	}
}

func TestAssets_DestroyStopsStanding(t *testing.T) {
	ps := testProjects()
	as := NewAssetSystem(log.New(os.Stderr, "[test] ", 0))
	p, _ := ps.Start(1, "A1", "road", [2]int{}, false)
	crew := map[uint64]map[string]Role{p.ID: {"A1": RoleBuilder}}
	ps.StepDay(1, 3, crew)
	ps.StepDay(2, 3, crew)
	a := as.Raise(2, p)
	if as.Standing("road") == nil {
		t.Fatal("asset not standing after raise")
	}
	as.Destroy(3, a)
	if as.Standing("road") != nil {
		t.Fatal("destroyed asset still standing")
	}
	if as.Flags()["road"] {
		t.Fatal("flags still advertise a destroyed asset")
	}
	if a.DayDestroyed != 3 {
		t.Fatalf("day destroyed = %d, want 3", a.DayDestroyed)
	}
}

func TestGangs_RecruitabilityAndMultiplier(t *testing.T) {
	cfg := CityConfig{}
	cfg.applyDefaults()
	gs := NewGangSystem(log.New(os.Stderr, "[test] ", 0))

	happy := &Agent{ID: "A1", Status: StatusAlive, Mood: 0.1}
	desperate := &Agent{ID: "A2", Status: StatusAlive, Mood: -0.8}
	officer := &Agent{ID: "A3", Status: StatusAlive, Mood: -0.9, Role: RolePolice}

	if ok, _ := Recruitable(happy, 500, &cfg); ok {
		t.Fatal("content agent recruitable")
	}
	if ok, _ := Recruitable(officer, 0, &cfg); ok {
		t.Fatal("police recruitable")
	}
	ok, desp := Recruitable(desperate, 100, &cfg)
	if !ok || !desp {
		t.Fatalf("near-starving miserable agent = (%v, %v), want (true, true)", ok, desp)
	}

	g := gs.Form(5, "L1", []string{"A2", "A4"}, func(int) int { return 0 })
	if got := gs.Multiplier("L1", &cfg); got != cfg.LeaderMultiplier {
		t.Fatalf("leader multiplier = %v", got)
	}
	if got := gs.Multiplier("A2", &cfg); got != cfg.MemberMultiplier {
		t.Fatalf("member multiplier = %v", got)
	}
	if got := gs.Multiplier("A9", &cfg); got != 1.0 {
		t.Fatalf("solo multiplier = %v", got)
	}

	gs.Collapse(9, "L1")
	if g.Status != GangBroken {
		t.Fatalf("status = %s, want broken", g.Status)
	}
	if got := gs.Multiplier("A2", &cfg); got != 1.0 {
		t.Fatalf("multiplier after collapse = %v, want 1.0", got)
	}
}
