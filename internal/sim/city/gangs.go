package city

import (
	"fmt"
	"log"
	"sort"
)

var gangNames = []string{
	"The Night Ledger", "Ash Street Crew", "The Hollow Hand",
	"Vault Rats", "The Quiet Debt", "Lantern Breakers",
}

// GangSystem owns recruitment eligibility, formation, the criminal earn
// multiplier, exposure on arrest, and collapse on the leader's conviction.
type GangSystem struct {
	gangs  map[uint64]*Gang
	nextID uint64
	log    *log.Logger
}

func NewGangSystem(logger *log.Logger) *GangSystem {
	return &GangSystem{gangs: map[uint64]*Gang{}, log: logger}
}

// Recruitable reports whether an agent may be recruited, and whether their
// desperation doubles the weight (near-starvation balance).
func Recruitable(a *Agent, balance int, cfg *CityConfig) (ok, desperate bool) {
	if a == nil || !a.Alive() || a.Role == RolePolice {
		return false, false
	}
	if a.Mood >= cfg.RecruitMoodThreshold {
		return false, false
	}
	return true, balance < 2*cfg.DailyBurn
}

// GangOf returns the active gang the agent belongs to, if any.
func (gs *GangSystem) GangOf(agentID string) *Gang {
	for _, g := range gs.sorted() {
		if g.Status == GangActive && g.hasMember(agentID) {
			return g
		}
	}
	return nil
}

// LedBy returns the active gang led by the agent, if any.
func (gs *GangSystem) LedBy(leaderID string) *Gang {
	for _, g := range gs.sorted() {
		if g.Status == GangActive && g.Leader == leaderID {
			return g
		}
	}
	return nil
}

// Form creates a gang record for a leader and accepted recruits.
func (gs *GangSystem) Form(day int, leaderID string, recruits []string, pick func(n int) int) *Gang {
	gs.nextID++
	members := append([]string{leaderID}, recruits...)
	g := &Gang{
		ID:        gs.nextID,
		Name:      fmt.Sprintf("%s #%d", gangNames[pick(len(gangNames))], gs.nextID),
		Leader:    leaderID,
		Members:   members,
		DayFormed: day,
		Status:    GangActive,
	}
	gs.gangs[g.ID] = g
	gs.log.Printf("gangs: %s formed by %s with %d members", g.Name, leaderID, len(members))
	return g
}

// AddMember grows an active gang (meeting-driven expansion).
func (gs *GangSystem) AddMember(g *Gang, agentID string) {
	if g.Status != GangActive || g.hasMember(agentID) {
		return
	}
	g.Members = append(g.Members, agentID)
}

// Multiplier returns the criminal earn multiplier for an agent: leader,
// member, or solo.
func (gs *GangSystem) Multiplier(agentID string, cfg *CityConfig) float64 {
	g := gs.GangOf(agentID)
	if g == nil {
		return 1.0
	}
	if g.Leader == agentID {
		return cfg.LeaderMultiplier
	}
	return cfg.MemberMultiplier
}

// RecordCrime bumps the crime counter on the member's gang.
func (gs *GangSystem) RecordCrime(agentID string) {
	if g := gs.GangOf(agentID); g != nil {
		g.TotalCrimes++
	}
}

// Expose marks the arrested member's gang as known to police. The caller
// rolls the exposure probability and promotes the association event.
func (gs *GangSystem) Expose(g *Gang) bool {
	if g.KnownToPolice {
		return false
	}
	g.KnownToPolice = true
	gs.log.Printf("gangs: %s exposed to police", g.Name)
	return true
}

// Collapse breaks the gang on a guilty verdict against its leader; every
// member's criminal multiplier reverts to 1.0.
func (gs *GangSystem) Collapse(day int, leaderID string) *Gang {
	g := gs.LedBy(leaderID)
	if g == nil {
		return nil
	}
	g.Status = GangBroken
	gs.log.Printf("gangs: %s broken on day %d (leader %s convicted)", g.Name, day, leaderID)
	return g
}

func (gs *GangSystem) sorted() []*Gang {
	out := make([]*Gang, 0, len(gs.gangs))
	for _, g := range gs.gangs {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (gs *GangSystem) All() []*Gang { return gs.sorted() }

func (gs *GangSystem) Restore(gangs []*Gang, nextID uint64) {
	gs.gangs = map[uint64]*Gang{}
	for _, g := range gangs {
		gs.gangs[g.ID] = g
	}
	gs.nextID = nextID
}

func (gs *GangSystem) NextID() uint64 { return gs.nextID }
