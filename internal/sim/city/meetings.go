package city

import (
	"fmt"
	"strings"
)

// IntentPredicate decides whether a message body expresses intent to meet
// the named other agent. Pluggable: the default is a keyword heuristic, a
// model-backed classifier can be swapped in.
type IntentPredicate func(body, otherName string) bool

var meetingIntentWords = []string{
	"meet", "meet me", "let's meet", "lets meet", "come find me",
	"see you at", "join me", "talk in person", "face to face",
}

// KeywordIntent is the default predicate: a meeting keyword plus a mention
// of the other agent (or an open invitation).
func KeywordIntent(body, otherName string) bool {
	text := strings.ToLower(body)
	hasKeyword := false
	for _, w := range meetingIntentWords {
		if strings.Contains(text, w) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return false
	}
	if otherName == "" {
		return true
	}
	return strings.Contains(text, strings.ToLower(otherName)) || strings.Contains(text, "come find me")
}

// runMeetings scans recent traffic for meet intent in a message between
// pairs of free agents co-located today (one message in either direction
// is enough), and fires the matching outcome.
func (c *City) runMeetings() {
	order := c.AliveAgents()
	met := map[string]bool{}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			a, b := order[i], order[j]
			if met[a.ID] || met[b.ID] {
				continue
			}
			if !c.meetingIntentBetween(a, b) {
				continue
			}
			if !coLocated(a, b, c.cfg.CoLocationRadius) {
				continue
			}
			met[a.ID], met[b.ID] = true, true
			c.fireMeeting(a, b)
		}
	}
}

func (c *City) meetingIntentBetween(a, b *Agent) bool {
	for _, m := range c.messages.Between(a.ID, b.ID, c.day) {
		var other *Agent
		if m.From == a.ID {
			other = b
		} else {
			other = a
		}
		if c.intent(m.Body, other.Name) {
			return true
		}
	}
	return false
}

// fireMeeting picks the outcome by the pair's roles: criminal pairs
// coordinate, police debriefs, proposers recruit for projects, everyone
// else trades or socializes.
func (c *City) fireMeeting(a, b *Agent) {
	outcome := "social"
	switch {
	case a.Role == RoleGangLeader || b.Role == RoleGangLeader:
		leader, other := a, b
		if b.Role == RoleGangLeader {
			leader, other = b, a
		}
		if g := c.gangs.LedBy(leader.ID); g != nil {
			c.gangs.AddMember(g, other.ID)
			outcome = "gang_expansion"
		} else if ok, _ := Recruitable(other, c.ledger.Balance(other.ID), &c.cfg); ok {
			outcome = "criminal_alliance"
		}
		c.bonds.Adjust(c.day, a.ID, b.ID, BondCooperative)
	case a.Role == RolePolice || b.Role == RolePolice:
		// Debrief: an informant passes what they know; witnessed events
		// the informant holds are passed to the officer as rumors.
		officer, informant := a, b
		if b.Role == RolePolice {
			officer, informant = b, a
		}
		for _, e := range c.events.AgentScope(informant.ID, c.day-c.cfg.MessageTTLDays, 5) {
			if e.hasWitness(informant.ID) && e.Visibility < VisRumor {
				_ = c.events.SpreadRumor(e, c.day, informant.ID, officer.ID, "told police what they saw")
			}
		}
		outcome = "informant_debrief"
		c.bonds.Adjust(c.day, a.ID, b.ID, BondCooperative)
	case a.Role == RoleBlackmailer || b.Role == RoleBlackmailer:
		// Attempted compromise: mostly it fails and the mark reports the
		// pressure.
		bm, mark := a, b
		if b.Role == RoleBlackmailer {
			bm, mark = b, a
		}
		if c.roll(300) {
			paid := c.ledger.Transfer(c.day, mark.ID, bm.ID, 100, "hush_money")
			if paid > 0 {
				outcome = "compromise_paid"
			}
		} else {
			e := c.events.Append(c.day, EventBlackmail, bm.ID, mark.ID,
				fmt.Sprintf("%s pressured %s in person", bm.Name, mark.Name), VisPrivate)
			if err := c.events.FileReport(e, c.day, mark.ID); err == nil {
				c.cases.Open(c.day, e, mark.ID)
			}
			outcome = "compromise_reported"
			c.bonds.Adjust(c.day, a.ID, b.ID, BondAntagonistic)
		}
	case c.projects.ActiveForAgent(a.ID) != nil || c.projects.ActiveForAgent(b.ID) != nil:
		p := c.projects.ActiveForAgent(a.ID)
		if p == nil {
			p = c.projects.ActiveForAgent(b.ID)
		}
		c.noteProjectWork(p.ID, a)
		c.noteProjectWork(p.ID, b)
		outcome = "project_planning"
		c.bonds.Adjust(c.day, a.ID, b.ID, BondSharedProject)
	default:
		// Trade: the richer side buys.
		seller, buyer := a, b
		if c.ledger.Balance(a.ID) > c.ledger.Balance(b.ID) {
			seller, buyer = b, a
		}
		if moved := c.ledger.Transfer(c.day, buyer.ID, seller.ID, 40, "market_meeting"); moved > 0 {
			outcome = "trade"
		}
		c.bonds.Adjust(c.day, a.ID, b.ID, BondCooperative)
	}
	c.events.Append(c.day, EventMeeting, a.ID, b.ID,
		fmt.Sprintf("%s and %s met at %s (%s)", a.Name, b.Name, a.Zone, outcome), VisWitnessed)
	c.broadcastEvent("meeting", map[string]any{
		"agents":  []string{a.Name, b.Name},
		"zone":    a.Zone,
		"outcome": outcome,
	})
}

// runGangFormation is the daily formation sweep: each gang leader with
// enough recruitable contacts in their recent message history rolls the
// formation chance.
func (c *City) runGangFormation() {
	for _, leader := range c.AliveAgents() {
		if leader.Role != RoleGangLeader || c.gangs.LedBy(leader.ID) != nil {
			continue
		}
		var recruits []string
		seen := map[string]bool{}
		for _, m := range c.messages.SentBy(leader.ID, c.day) {
			if seen[m.To] {
				continue
			}
			seen[m.To] = true
			other := c.agents[m.To]
			if other == nil {
				continue
			}
			if ok, desperate := Recruitable(other, c.ledger.Balance(other.ID), &c.cfg); ok {
				recruits = append(recruits, other.ID)
				if desperate {
					// Near-starvation doubles the weight: count twice
					// toward the recruit target.
					recruits = append(recruits, other.ID)
				}
			}
		}
		if countDistinct(recruits) < c.cfg.RecruitTarget && len(recruits) < c.cfg.RecruitTarget {
			continue
		}
		if !c.roll(c.cfg.FormationPermille) {
			continue
		}
		distinct := distinctStrings(recruits)
		g := c.gangs.Form(c.day, leader.ID, distinct, c.pick)
		c.events.Append(c.day, EventGang, leader.ID, "",
			fmt.Sprintf("%s quietly brought %d people under their wing", leader.Name, len(distinct)), VisPrivate)
		c.broadcastEvent("gang_event", map[string]any{
			"gang":    g.Name,
			"status":  string(GangActive),
			"members": len(g.Members),
		})
	}
}

func countDistinct(ids []string) int {
	m := map[string]bool{}
	for _, id := range ids {
		m[id] = true
	}
	return len(m)
}

func distinctStrings(ids []string) []string {
	m := map[string]bool{}
	var out []string
	for _, id := range ids {
		if !m[id] {
			m[id] = true
			out = append(out, id)
		}
	}
	return out
}
