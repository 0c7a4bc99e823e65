package city

import (
	"context"
	"fmt"
	"strings"

	"aicity.ai/internal/protocol"
)

// applyDecision translates one parsed decision into mutations. Every money
// move goes through the ledger, every observable act through the event
// log.
func (c *City) applyDecision(ctx context.Context, a *Agent, d protocol.Decision) {
	switch d.Action {
	case ActWork:
		c.doWork(a, d)
	case ActExplore:
		c.doExplore(a)
	case ActTrade:
		c.doTrade(a)
	case ActPatrol:
		c.doPatrol(a)
	case ActTeach:
		c.doTeach(a)
	case ActHeal:
		c.doHeal(a)
	case ActDeliver:
		c.doDeliver(a)
	case ActDefend:
		c.doDefend(a)
	case ActSteal:
		c.doSteal(a)
	case ActLurk:
		// Lying low. No earnings, no events.
	case ActStudy:
		c.doStudy(ctx, a)
	case ActRecruit:
		c.doRecruit(a)
	case ActBlackmail:
		c.doBlackmail(a)
	case ActDestroyAsset:
		c.doDestroyAsset(a)
	case ActMessage:
		c.doMessage(a, d)
	case ActReport:
		c.doReport(a)
	case ActRest:
		// Deliberate idleness.
	case ActStartProject:
		c.doStartProject(a, d)
	case ActWorkProject:
		c.doWorkProject(a)
	case ActClaimHome:
		c.doClaimHome(a)
	case ActMove:
		c.doMove(a, d)
	default:
		c.doWork(a, protocol.Decision{Action: ActWork})
	}

	// Any in-day message or trade nudges bonds; the handlers above call
	// bond adjustments where the interaction is pairwise.
}

func (c *City) earnFor(a *Agent, gross int, reason string) int {
	net, _ := c.ledger.Earn(c.day, a.ID, gross, reason)
	a.earnedToday += net
	return net
}

// criminalEarn applies the gang multiplier to criminal income: the loot
// itself is credited by the caller through the ordinary taxed earn, the
// multiplier is realized here as extra fenced side income.
func (c *City) criminalEarn(a *Agent, loot int, reason string) {
	mult := c.gangs.Multiplier(a.ID, &c.cfg)
	if mult > 1.0 {
		bonus := int(float64(loot) * (mult - 1.0))
		if bonus > 0 {
			c.earnFor(a, bonus, reason+"_fence_bonus")
		}
	}
}

// --- Role handlers --------------------------------------------------------

func (c *City) doWork(a *Agent, d protocol.Decision) {
	caps := Capabilities(a.Role)
	base := c.randBetween(caps.EarnMin, caps.EarnMax)
	// Desperation raises the effort slightly.
	if strings.Contains(strings.ToLower(d.Details), "desperate") || a.Mood <= -0.7 {
		base += base / 10
	}
	c.earnFor(a, base, "daily_work")
	if a.Role == RoleBuilder {
		if p := c.projects.ActiveForAgent(a.ID); p != nil && strings.Contains(strings.ToLower(d.Details), "project") {
			c.noteProjectWork(p.ID, a)
		}
	}
}

func (c *City) doExplore(a *Agent) {
	roll := c.rng.Float64()
	switch {
	case roll < 0.15:
		gross := c.randBetween(300, 600)
		c.earnFor(a, gross, "expedition_find")
		c.events.Append(c.day, EventDiscovery, a.ID, "",
			fmt.Sprintf("%s found something valuable beyond the city edge", a.Name), VisPrivate)
		c.memory.Remember(a.ID, fmt.Sprintf("Day %d: I found something out there. Keeping it quiet for now.", c.day), "discovery", c.day)
	case roll < 0.30:
		c.earnFor(a, c.randBetween(0, 30), "lean_expedition")
	default:
		c.earnFor(a, c.randBetween(60, 200), "expedition")
	}
}

func (c *City) doTrade(a *Agent) {
	wealthy := 0
	for _, other := range c.AliveAgents() {
		if other.ID != a.ID && c.ledger.Balance(other.ID) >= 1000 {
			wealthy++
		}
	}
	base := c.randBetween(40, 160) + 10*wealthy
	if c.assets.Standing("market") != nil {
		base += 20
	}
	c.earnFor(a, base, "market_trade")
}

func (c *City) doPatrol(a *Agent) {
	c.earnFor(a, c.randBetween(60, 150), "patrol_duty")
	arrestChance := c.cfg.ArrestChancePermille
	if c.assets.Standing("watchtower") != nil {
		arrestChance = c.cfg.WatchtowerArrestPermille
	}
	if !c.roll(arrestChance) {
		return
	}
	// The scan works police-scope theft evidence only.
	for _, e := range c.events.PoliceScope(c.day-c.cfg.ColdCaseDays, "", EventTheft) {
		if e.Actor == "" {
			continue
		}
		suspect := c.agents[e.Actor]
		if suspect == nil || !suspect.Alive() {
			continue
		}
		pc := c.cases.ForEvent(e.ID)
		if pc == nil {
			pc = c.cases.Open(c.day, e, a.ID)
		}
		if pc.Status == CaseOpen {
			c.queueArrest(e.Actor, pc.ID, "patrol_scan")
			return
		}
	}
}

func (c *City) doTeach(a *Agent) {
	students := 0
	for _, other := range c.AliveAgents() {
		if other.Role == RoleNewborn {
			students++
			if other.AssignedTeacher == "" {
				other.AssignedTeacher = a.ID
			}
		}
	}
	c.earnFor(a, c.randBetween(40, 120)+20*students, "teaching")
}

func (c *City) doHeal(a *Agent) {
	var critical []*Agent
	for _, other := range c.AliveAgents() {
		if other.ID != a.ID && c.ledger.Balance(other.ID) < c.cfg.WelfareFloor {
			critical = append(critical, other)
		}
	}
	c.earnFor(a, c.randBetween(40, 120)+15*len(critical), "clinic")
	if len(critical) == 0 {
		return
	}
	patient := critical[0]
	c.events.Append(c.day, EventHeal, a.ID, patient.ID,
		fmt.Sprintf("%s treated %s", a.Name, patient.Name), VisWitnessed)
	patient.addMood(MoodHealed)
	c.bonds.Adjust(c.day, a.ID, patient.ID, BondCooperative)
}

func (c *City) doDeliver(a *Agent) {
	alive := len(c.AliveAgents())
	c.earnFor(a, c.randBetween(30, 100)+2*alive, "courier_rounds")
}

func (c *City) doDefend(a *Agent) {
	if len(c.cases.OpenCases()) > 0 {
		c.earnFor(a, c.randBetween(100, 300), "retainer")
	} else {
		c.earnFor(a, c.randBetween(0, 40), "paperwork")
	}
}

// doSteal picks a target by wealth rank and inverse bond, never a newborn.
// Success logs a private theft; failure leaves nothing observable.
func (c *City) doSteal(a *Agent) {
	var target *Agent
	bestScore := 0.0
	for _, other := range c.AliveAgents() {
		if other.ID == a.ID || other.Role == RoleNewborn {
			continue
		}
		bal := c.ledger.Balance(other.ID)
		if bal < 100 {
			continue
		}
		score := float64(bal) * (1.0 - c.bonds.Get(a.ID, other.ID))
		if target == nil || score > bestScore {
			target, bestScore = other, score
		}
	}
	if target == nil {
		return
	}
	if !c.roll(c.cfg.TheftSuccessPermille) {
		// Failed attempt: nothing observable is emitted.
		return
	}
	maxTake := c.ledger.Balance(target.ID) / 4
	if maxTake > 300 {
		maxTake = 300
	}
	if maxTake < 50 {
		maxTake = 50
	}
	intended := c.randBetween(50, maxTake)
	stolen := c.ledger.Deduct(c.day, target.ID, intended, "theft_loss")
	if stolen <= 0 {
		return
	}
	c.earnFor(a, stolen, "fenced_goods")
	c.criminalEarn(a, stolen, "theft")
	c.gangs.RecordCrime(a.ID)
	e := c.events.Append(c.day, EventTheft, a.ID, target.ID,
		fmt.Sprintf("%s stole %d tokens from %s", a.Name, stolen, target.Name), VisPrivate)
	c.detectWitnesses(e, a, target)
	target.addMood(MoodTheftVictim)
	c.bonds.Adjust(c.day, a.ID, target.ID, BondAntagonistic)
	c.memory.Remember(a.ID, fmt.Sprintf("Day %d: I took %d tokens from %s. Nobody saw. Probably.", c.day, stolen, target.Name), "crime", c.day)
	c.broadcastEvent("theft", map[string]any{"amount": stolen})
}

func (c *City) doStudy(ctx context.Context, a *Agent) {
	c.earnFor(a, c.randBetween(0, 50), "chores")
	teacher := c.agents[a.AssignedTeacher]
	if teacher == nil || !teacher.Free() {
		if t := c.firstAliveByRole(RoleTeacher); t != nil {
			a.AssignedTeacher = t.ID
			teacher = t
		}
	}
	var growth int
	if teacher != nil {
		bond := c.bonds.Get(a.ID, teacher.ID)
		if bond < 0 {
			bond = 0
		}
		growth = c.randBetween(6, 12)
		growth = int(float64(growth) * (0.7 + 0.3*bond))
		c.bonds.Adjust(c.day, a.ID, teacher.ID, BondCooperative)
	} else {
		growth = c.randBetween(2, 5)
	}
	if c.assets.Standing("school") != nil {
		growth *= 2
	}
	before := a.ComprehensionScore
	a.ComprehensionScore += growth
	if a.ComprehensionScore > 100 {
		a.ComprehensionScore = 100
	}
	if before < c.cfg.GraduationScore && a.ComprehensionScore >= c.cfg.GraduationScore {
		c.graduate(ctx, a)
	}
}

func (c *City) graduate(ctx context.Context, a *Agent) {
	allowed := GraduationRoles()
	names := make([]string, len(allowed))
	for i, r := range allowed {
		names[i] = string(r)
	}
	rctx, cancel := context.WithTimeout(ctx, c.decisionTimeout())
	choice, err := c.reasoner.ChooseGraduation(rctx, protocol.GraduationRequest{
		Day:           c.day,
		AgentName:     a.Name,
		Comprehension: a.ComprehensionScore,
		AllowedRoles:  names,
		Recalls:       c.memory.Recall(a.ID, "lesson", 5),
	})
	cancel()
	newRole := allowed[0]
	if err == nil {
		if r := Role(strings.ToLower(choice.Role)); ValidRole(r) && Capabilities(r).GraduationTarget {
			newRole = r
		}
	}
	a.Role = newRole
	a.AssignedTeacher = ""
	c.events.Append(c.day, EventGraduation, a.ID, "",
		fmt.Sprintf("%s graduated and became a %s", a.Name, newRole), VisPublic)
	c.broadcastEvent("graduation", map[string]any{"agent": a.Name, "role": string(newRole)})
}

// doRecruit messages the leader's most recruitable contacts; the daily
// formation roll happens in the gang phase.
func (c *City) doRecruit(a *Agent) {
	sent := 0
	for _, other := range c.AliveAgents() {
		if other.ID == a.ID {
			continue
		}
		if ok, _ := Recruitable(other, c.ledger.Balance(other.ID), &c.cfg); !ok {
			continue
		}
		c.messages.Send(c.day, a.ID, other.ID,
			"Times are hard. People like us should look after each other. Come find me.")
		sent++
		if sent >= 3 {
			break
		}
	}
	if sent == 0 {
		c.earnFor(a, c.randBetween(0, 40), "odd_jobs")
	}
}

// doBlackmail selects a compromising event known to the agent where the
// actor is someone else, then extorts the actor anonymously.
func (c *City) doBlackmail(a *Agent) {
	var mark *Event
	for _, e := range c.events.AgentScope(a.ID, c.day-14, 0) {
		if e.Actor == a.ID || e.Actor == "" || e.Visibility >= VisPublic {
			continue
		}
		if actor := c.agents[e.Actor]; actor == nil || !actor.Alive() {
			continue
		}
		mark = e
		break
	}
	if mark == nil {
		c.earnFor(a, c.randBetween(0, 40), "odd_jobs")
		return
	}
	victim := c.agents[mark.Actor]
	demand := c.ledger.Balance(victim.ID) / 5
	if demand < 50 {
		demand = 50
	}
	c.messages.Send(c.day, AnonSender, victim.ID,
		fmt.Sprintf("I know what happened on day %d. %d tokens buys my silence.", mark.Day, demand))
	be := c.events.Append(c.day, EventBlackmail, a.ID, victim.ID,
		fmt.Sprintf("%s is squeezing %s over what they know", a.Name, victim.Name), VisPrivate)
	c.detectWitnesses(be, a, victim)
	c.gangs.RecordCrime(a.ID)

	// Payment or exposure: desperate marks pay, defiant ones risk the
	// secret surfacing.
	if c.ledger.Balance(victim.ID) >= demand+c.cfg.MinBalanceFloor && c.roll(600) {
		paid := c.ledger.Transfer(c.day, victim.ID, a.ID, demand, "hush_money")
		if paid > 0 {
			c.criminalEarn(a, paid, "blackmail")
			victim.addMood(MoodDailyStress)
			c.bonds.Adjust(c.day, a.ID, victim.ID, BondAntagonistic)
			return
		}
	}
	if c.roll(300) {
		// Non-payment: the blackmailer makes good on the threat.
		if err := c.events.FileReport(mark, c.day, a.ID); err == nil {
			c.cases.Open(c.day, mark, a.ID)
		}
	}
}

func (c *City) doDestroyAsset(a *Agent) {
	var target *Asset
	for _, as := range c.assets.All() {
		if as.Status == AssetStanding {
			target = as
			break
		}
	}
	if target == nil {
		c.earnFor(a, c.randBetween(0, 40), "odd_jobs")
		return
	}
	c.assets.Destroy(c.day, target)
	e := c.events.Append(c.day, EventSabotage, a.ID, "",
		fmt.Sprintf("the %s was destroyed in the night", target.Name), VisPrivate)
	e.AssetID = target.ID
	// Scattered clues, not a confession.
	e.Evidence = append(e.Evidence,
		EvidenceRef{Day: c.day, Kind: "note", Text: "tool marks suggest someone who knew the structure"},
		EvidenceRef{Day: c.day, Kind: "note", Text: "whoever did it came and went unseen"},
	)
	c.detectWitnesses(e, a, nil)
	c.gangs.RecordCrime(a.ID)
	for _, other := range c.AliveAgents() {
		if other.ID != a.ID {
			other.addMood(MoodAssetDestroyed)
		}
	}
	if target.HasTile {
		delete(c.tiles, target.Tile)
		c.broadcastEvent("tile_removed", map[string]any{"pos": target.Tile, "type": target.Type})
	}
}

// --- Common actions -------------------------------------------------------

func (c *City) doMessage(a *Agent, d protocol.Decision) {
	to := c.AgentByName(d.MessageTo)
	if to == nil || to.ID == a.ID || d.MessageBody == "" {
		return
	}
	c.messages.Send(c.day, a.ID, to.ID, d.MessageBody)
	c.bonds.Adjust(c.day, a.ID, to.ID, BondCooperative)
	c.broadcastEvent("message", map[string]any{"from": a.Name, "to": to.Name})
}

// doReport is the victim/witness reporting action: unnoticed crimes
// against the agent, or events they witnessed, get filed with police.
func (c *City) doReport(a *Agent) {
	kinds := []EventKind{EventTheft, EventArson, EventAssault, EventBlackmail, EventSabotage}
	for _, k := range kinds {
		for _, e := range c.events.UnnoticedCrimesAgainst(a.ID, k, c.day-c.cfg.VictimNoticeDays) {
			if err := c.events.FileReport(e, c.day, a.ID); err == nil {
				c.cases.Open(c.day, e, a.ID)
				return
			}
		}
	}
	for _, e := range c.events.AgentScope(a.ID, c.day-c.cfg.VictimNoticeDays, 0) {
		if e.hasWitness(a.ID) && e.Visibility < VisReported {
			if err := c.events.FileReport(e, c.day, a.ID); err == nil {
				c.cases.Open(c.day, e, a.ID)
				return
			}
		}
	}
}

func (c *City) doStartProject(a *Agent, d protocol.Decision) {
	projectType := strings.ToLower(d.Target)
	if _, ok := ProjectSpecFor(projectType); !ok {
		// First type with neither a standing asset nor an active project.
		for _, t := range ProjectTypes() {
			if c.assets.Standing(t) == nil && c.projects.ActiveOfType(t) == nil {
				projectType = t
				break
			}
		}
	}
	tile := c.nextFreeTile()
	p, err := c.projects.Start(c.day, a.ID, projectType, tile, true)
	if err != nil {
		return
	}
	c.noteProjectWork(p.ID, a)
	// Invite likely collaborators.
	spec, _ := ProjectSpecFor(projectType)
	for _, other := range c.AliveAgents() {
		if other.ID == a.ID {
			continue
		}
		if other.Role == RoleBuilder || (spec.RequiredRole != "" && other.Role == spec.RequiredRole) {
			c.messages.Send(c.day, a.ID, other.ID,
				fmt.Sprintf("I'm starting a %s. The city needs it, and builders get their names on it. Join me.", projectType))
		}
	}
	c.broadcastEvent("construction_progress", map[string]any{
		"project": p.Name, "progress": p.Progress, "goal": p.GoalBuilderDays,
	})
}

func (c *City) doWorkProject(a *Agent) {
	p := c.projects.ActiveForAgent(a.ID)
	if p == nil {
		c.doWork(a, protocol.Decision{Action: ActWork})
		return
	}
	c.noteProjectWork(p.ID, a)
	caps := Capabilities(a.Role)
	c.earnFor(a, (caps.EarnMin+caps.EarnMax)/3, "site_wages")
	c.bonds.Adjust(c.day, a.ID, p.Proposer, BondSharedProject)
}

func (c *City) doClaimHome(a *Agent) {
	if a.HasHome {
		return
	}
	tile := c.nextFreeTile()
	a.HomeLot = tile
	a.HasHome = true
	a.Tile = tile
	a.HasTile = true
	c.homeLots[a.ID] = &HomeLot{AgentID: a.ID, Tile: tile, DayClaimed: c.day}
	c.tiles[tile] = &WorldTile{Pos: tile, Type: "home"}
	c.events.Append(c.day, EventHomeClaimed, a.ID, "",
		fmt.Sprintf("%s claimed a home lot", a.Name), VisPublic)
	c.broadcastEvent("home_claimed", map[string]any{"agent": a.Name, "pos": tile})
	c.broadcastEvent("tile_placed", map[string]any{"pos": tile, "type": "home"})
}

func (c *City) doMove(a *Agent, d protocol.Decision) {
	zone := strings.ToUpper(strings.TrimSpace(d.Target))
	switch zone {
	case ZoneTownSquare, ZoneMarket, ZoneOutskirts, ZoneHarbor:
		a.Zone = zone
	}
}

// nextFreeTile walks a deterministic spiral of lot positions.
func (c *City) nextFreeTile() [2]int {
	for i := 0; ; i++ {
		tile := [2]int{i % 16, i / 16}
		if _, taken := c.tiles[tile]; !taken {
			return tile
		}
	}
}

// noteProjectWork registers a day's contribution, consumed by the project
// step at the end of the turn phase.
func (c *City) noteProjectWork(projectID uint64, a *Agent) {
	if c.dayWorkers == nil {
		c.dayWorkers = map[uint64]map[string]Role{}
	}
	crew := c.dayWorkers[projectID]
	if crew == nil {
		crew = map[string]Role{}
		c.dayWorkers[projectID] = crew
	}
	crew[a.ID] = a.Role
}

// detectWitnesses rolls each alive bystander for the witness chance; hits
// promote the event and plant vague memory fragments.
func (c *City) detectWitnesses(e *Event, actor *Agent, target *Agent) {
	chance := c.cfg.WitnessChance
	if busyZones[actor.Zone] {
		chance = c.cfg.BusyWitnessChance
	}
	var found []string
	for _, other := range c.AliveAgents() {
		if other.ID == e.Actor || (target != nil && other.ID == target.ID) {
			continue
		}
		if !coLocated(other, actor, c.cfg.CoLocationRadius) {
			continue
		}
		if c.roll(chance) {
			found = append(found, other.ID)
		}
	}
	if len(found) == 0 {
		return
	}
	fragment, err := c.events.MarkWitnessed(e, found, c.pick)
	if err != nil {
		return
	}
	for _, w := range found {
		c.memory.Remember(w, fmt.Sprintf("Day %d: %s", c.day, fragment), "observation", c.day)
	}
}
