package city

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"aicity.ai/internal/protocol"
)

// SimulateDay advances the simulation exactly one day through the nine
// phases, strictly ordered. The day fails atomically from the caller's
// perspective: either the checkpoint commits and the day broadcasts, or no
// persisted change is observable at the next resume.
func (c *City) SimulateDay(ctx context.Context) error {
	// Phase 1: day-open. The scheduler is the sole writer of the day
	// counter and the sole clearer of day-scoped caches.
	c.day++
	// The RNG reseeds per day from the persisted seed, so a resumed
	// engine draws the same stream as a continuous run.
	c.rng = rand.New(rand.NewSource(c.cfg.Seed + int64(c.day)*1_000_003))
	c.dayBroadcasts = nil
	c.dayWorkers = map[uint64]map[string]Role{}
	txWatermark := c.ledger.lastTxID()
	for _, a := range c.agentsSorted() {
		if a.Alive() {
			a.AgeDays++
		}
		a.earnedToday = 0
	}
	c.releasePrisoners()
	c.writeNewspaper(ctx)

	if err := ctx.Err(); err != nil {
		return err
	}

	// Phase 2: asset benefits, before any agent acts.
	c.applyAssetBenefits()

	// Phase 3: per-agent turns in stable order (descending balance, ties
	// by id), frozen at phase start.
	order := c.AliveAgents()
	if c.cfg.ParallelDecisions {
		decisions := c.collectDecisions(ctx, order)
		for i, a := range order {
			c.runAgentTurn(ctx, a, &decisions[i])
		}
	} else {
		for _, a := range order {
			c.runAgentTurn(ctx, a, nil)
		}
	}

	// Projects step on the day's contributions; completions raise assets.
	c.stepProjects()

	if err := ctx.Err(); err != nil {
		return err
	}

	// Phase 4: meetings, then the gang formation sweep over the day's
	// message history, then police work on the day's reports.
	c.runMeetings()
	c.runGangFormation()
	c.runDailyInvestigations(ctx)
	c.processArrests(ctx)

	// Phase 5: vault policy.
	c.runVaultPolicy()

	// Phase 6: event-log promotions for this day's events.
	c.runPromotions()

	// Phase 7: mood and bond updates.
	c.runMoodAndBonds()
	c.broadcastPositions()

	c.checkBirths()

	// Invariant gate: a broken ledger halts the tick before persistence.
	if err := c.ledger.CheckConservation(); err != nil {
		return fmt.Errorf("day %d halted: %w", c.day, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Phase 8: persistence checkpoint, one logical unit of work. The next
	// day does not begin until the flush acknowledges.
	if c.checkpoint != nil {
		chk := DayCheckpoint{
			Day:             c.day,
			Snapshot:        c.ExportSnapshot(),
			NewTransactions: c.ledger.TransactionsSince(txWatermark),
		}
		if err := c.checkpoint.CommitDay(chk); err != nil {
			return fmt.Errorf("day %d checkpoint: %w", c.day, err)
		}
	}

	// Phase 9: broadcast in commit order.
	c.flushBroadcasts()

	c.messages.Expire(c.day)
	return nil
}

// runAgentTurn runs one agent's turn: decision, dispatch, daily burn,
// stochastic events, starvation check. A pre-collected decision is used in
// parallel mode; otherwise the facade is called inline.
func (c *City) runAgentTurn(ctx context.Context, a *Agent, pre *protocol.Decision) {
	if !a.Free() {
		return
	}
	var d protocol.Decision
	if pre != nil {
		d = *pre
	} else {
		d = c.decideFor(ctx, a, c.buildDecisionRequest(a))
	}
	c.applyDecision(ctx, a, d)
	if !a.Alive() {
		return
	}

	if _, starved := c.ledger.BurnDaily(c.day, a.ID); starved {
		c.killAgent(a, "starvation")
		return
	}

	c.rollStochastic(a)
	if c.ledger.Balance(a.ID) <= 0 {
		c.killAgent(a, "starvation")
	}
}

// rollStochastic fires the independent small-probability events: a heart
// attack that removes a bounded random token quantity, and a windfall that
// credits one.
func (c *City) rollStochastic(a *Agent) {
	if c.roll(c.cfg.HeartAttackPermille) {
		loss := c.ledger.Deduct(c.day, a.ID, c.randBetween(50, 200), "heart_attack")
		c.events.Append(c.day, EventHeartAttack, a.ID, "",
			fmt.Sprintf("%s collapsed clutching their chest; %d tokens went to the apothecary", a.Name, loss), VisPublic)
		c.memory.Remember(a.ID, fmt.Sprintf("Day %d: Had a heart attack. Lost %d tokens. Terrifying.", c.day, loss), "trauma", c.day)
		c.broadcastEvent("heart_attack", map[string]any{"agent": a.Name, "amount": loss})
		return
	}
	if c.roll(c.cfg.WindfallPermille) {
		gain := c.randBetween(100, 300)
		net, _ := c.ledger.Earn(c.day, a.ID, gain, "windfall")
		c.events.Append(c.day, EventWindfall, a.ID, "",
			fmt.Sprintf("%s came into %d tokens of unexpected luck", a.Name, net), VisPublic)
		c.broadcastEvent("windfall", map[string]any{"agent": a.Name, "amount": net})
	}
}

// killAgent finalizes a death: terminal status, zero balance, public death
// record. Deaths publish immediately (the verdict exception).
func (c *City) killAgent(a *Agent, cause string) {
	if leftover := c.ledger.Balance(a.ID); leftover > 0 {
		// A dead agent holds nothing; the estate burns.
		c.ledger.Deduct(c.day, a.ID, leftover, "estate_settlement")
	}
	a.Status = StatusDead
	a.CauseOfDeath = cause
	e := c.events.Append(c.day, EventDeath, a.ID, "",
		fmt.Sprintf("%s died of %s on day %d", a.Name, cause, c.day), VisPrivate)
	_ = c.events.MakePublic(e, c.day, "death")
	c.broadcastEvent("death", map[string]any{"agent": a.Name, "cause": cause})
	c.log.Printf("city: %s died (%s), graveyard=%d", a.Name, cause, c.GraveyardCount())
}

// applyAssetBenefits applies standing-asset effects to eligible agents.
func (c *City) applyAssetBenefits() {
	alive := c.AliveAgents()
	if c.assets.Standing("watchtower") != nil {
		for _, a := range alive {
			if a.Role == RolePolice {
				c.earnFor(a, BenefitWatchtowerPolice, "watchtower_duty")
			}
		}
	}
	if c.assets.Standing("hospital") != nil {
		for _, a := range alive {
			if a.Role == RoleHealer {
				c.earnFor(a, BenefitHospitalHealer, "hospital_practice")
			}
		}
	}
	if c.assets.Standing("school") != nil {
		for _, a := range alive {
			if a.Role == RoleTeacher {
				c.earnFor(a, BenefitSchoolTeacher, "school_salary")
			}
		}
	}
	if c.assets.Standing("road") != nil {
		for _, a := range alive {
			if a.Role == RoleExplorer {
				c.earnFor(a, BenefitRoadExplorer, "road_access")
			}
		}
	}
	if c.assets.Standing("market") != nil {
		var merchants []*Agent
		for _, a := range alive {
			if a.Role == RoleMerchant {
				merchants = append(merchants, a)
			}
		}
		if n := len(merchants); n > 0 {
			share := BenefitMarketSplit / n
			for _, m := range merchants {
				c.earnFor(m, share, "market_stall_income")
			}
		}
	}
}

// stepProjects advances builds on the day's contributions and raises
// completed assets.
func (c *City) stepProjects() {
	completed, abandoned := c.projects.StepDay(c.day, c.cfg.AbandonDays, c.dayWorkers)
	for _, p := range completed {
		asset := c.assets.Raise(c.day, p)
		names := c.namesOf(asset.Builders)
		c.events.Append(c.day, EventBuild, p.Proposer, "",
			fmt.Sprintf("the %s is finished, built by %v", p.Name, names), VisPublic)
		c.broadcastEvent("construction_complete", map[string]any{"project": p.Name, "type": p.Type})
		c.broadcastEvent("asset_built", map[string]any{"asset": asset.Name, "type": asset.Type, "builders": names})
		if p.HasTile {
			c.tiles[p.TargetTile] = &WorldTile{Pos: p.TargetTile, Type: p.TileType, AssetID: asset.ID}
			c.broadcastEvent("tile_placed", map[string]any{"pos": p.TargetTile, "type": p.TileType})
		}
	}
	for _, p := range abandoned {
		c.broadcastEvent("construction_progress", map[string]any{"project": p.Name, "status": string(ProjectAbandoned)})
	}
	for _, p := range c.projects.All() {
		if p.Status == ProjectActive && p.LastProgressDay == c.day {
			c.broadcastEvent("construction_progress", map[string]any{
				"project": p.Name, "progress": p.Progress, "goal": p.GoalBuilderDays,
			})
		}
	}
}

// runVaultPolicy applies welfare to everyone under the floor, then the
// public-goods rule: a surplus vault funds a day of progress on the most
// advanced project, otherwise a community bonus goes out.
func (c *City) runVaultPolicy() {
	for _, a := range c.AliveAgents() {
		if bal := c.ledger.Balance(a.ID); bal < c.cfg.WelfareFloor {
			grant := c.cfg.WelfareGrant
			if err := c.ledger.Welfare(c.day, a.ID, grant); err == nil {
				a.addMood(MoodWelfare)
				c.broadcastEvent("agent_update", map[string]any{
					"agent": a.Name, "welfare": grant,
				})
			}
		}
	}
	if c.ledger.Vault().VaultBalance >= c.cfg.SurplusThreshold {
		if p := c.projects.HighestPriorityActive(); p != nil {
			p.Progress += 1.0
			p.LastProgressDay = c.day
			c.ledger.VaultSpend(c.day, p.Proposer, 100, "public_works_funding")
			c.broadcastEvent("construction_progress", map[string]any{
				"project": p.Name, "progress": p.Progress, "goal": p.GoalBuilderDays, "funded": true,
			})
			return
		}
	}
	for _, a := range c.AliveAgents() {
		c.ledger.VaultSpend(c.day, a.ID, c.cfg.CommunityBonus, "community_bonus")
	}
}

// runPromotions walks this day's private events through the promotion
// rules, fires victim self-discovery, and enforces the independent-knower
// threshold.
func (c *City) runPromotions() {
	// Rumor spread: witnesses who messaged someone today about what they
	// saw promote witnessed -> rumor.
	for _, e := range c.events.All() {
		if e.Visibility != VisWitnessed {
			continue
		}
		for _, w := range e.Witnesses {
			for _, m := range c.messages.SentBy(w, c.day) {
				if m.Day != c.day {
					continue
				}
				if referencesEvent(m.Body, c.agents[e.Actor], c.agents[e.Target], e.Kind) {
					_ = c.events.SpreadRumor(e, c.day, w, m.To, m.Body)
					break
				}
			}
			if e.Visibility != VisWitnessed {
				break
			}
		}
	}

	// Victim self-discovery: victims notice recent crimes against them and
	// may report, opening or joining a case.
	for _, a := range c.AliveAgents() {
		kinds := []EventKind{EventTheft, EventArson, EventAssault, EventSabotage}
		for _, k := range kinds {
			for _, e := range c.events.UnnoticedCrimesAgainst(a.ID, k, c.day-c.cfg.VictimNoticeDays) {
				c.events.NoteVictimKnows(e)
				if c.roll(c.cfg.VictimReportChance) {
					if err := c.events.FileReport(e, c.day, a.ID); err == nil {
						c.cases.Open(c.day, e, a.ID)
					}
				}
			}
		}
	}

	// Knower threshold: enough independent personal memories make an
	// event public on their own.
	for _, e := range c.events.All() {
		if e.Visibility < VisPublic && c.events.KnowerCount(e.ID) >= c.cfg.PublicKnowerThreshold {
			_ = c.events.MakePublic(e, c.day, "common_knowledge")
		}
	}
}

// referencesEvent is the loose inbox-mention check: the message names the
// event's actor or target, or its kind.
func referencesEvent(body string, actor, target *Agent, kind EventKind) bool {
	text := strings.ToLower(body)
	if actor != nil && strings.Contains(text, strings.ToLower(actor.Name)) {
		return true
	}
	if target != nil && strings.Contains(text, strings.ToLower(target.Name)) {
		return true
	}
	return strings.Contains(text, string(kind))
}

// runMoodAndBonds applies the day's accumulated mood deltas plus the daily
// stress rule, then decays bonds.
func (c *City) runMoodAndBonds() {
	for _, a := range c.agentsSorted() {
		if !a.Alive() {
			continue
		}
		if c.ledger.Balance(a.ID) < c.cfg.WelfareFloor {
			a.addMood(MoodDailyStress)
		}
		if a.earnedToday >= c.cfg.StrongEarningsThreshold {
			a.addMood(MoodStrongEarnings)
		}
		a.applyMoodDelta()
		c.broadcastEvent("agent_update", map[string]any{
			"agent":  a.Name,
			"tokens": c.ledger.Balance(a.ID),
			"mood":   a.Mood,
			"status": string(a.Status),
		})
	}
	c.bonds.Decay(c.day)
}

// checkBirths spawns a newborn when the population drops below the floor.
func (c *City) checkBirths() {
	alive := len(c.AliveAgents())
	if alive == 0 || alive >= c.cfg.PopulationFloor {
		return
	}
	name := fmt.Sprintf("newborn-%03d", c.nextAgentNum+1)
	a, err := c.SpawnAgent(name, RoleNewborn)
	if err != nil {
		c.log.Printf("city: birth failed: %v", err)
		return
	}
	if t := c.firstAliveByRole(RoleTeacher); t != nil {
		a.AssignedTeacher = t.ID
	}
	c.events.Append(c.day, EventBirth, a.ID, "",
		fmt.Sprintf("%s was born into the city", a.Name), VisPublic)
	c.broadcastEvent("birth", map[string]any{"agent": a.Name})
}

// writeNewspaper has the messenger produce the day's narrative input from
// yesterday's PUBLIC events only, plus the weekly and monthly roll-ups.
func (c *City) writeNewspaper(ctx context.Context) {
	writer := c.firstAliveByRole(RoleMessenger)
	if writer == nil || c.day <= 1 {
		return
	}
	var lines []string
	for _, e := range c.events.NarratorScope(c.day - 1) {
		if e.Day == c.day-1 {
			lines = append(lines, e.Description+".")
		}
	}
	archive := c.assets.Standing("archive") != nil

	rctx, cancel := context.WithTimeout(ctx, c.decisionTimeout())
	body, err := c.reasoner.WriteNarrative(rctx, protocol.NarrativeRequest{
		Kind:             protocol.NarrativeDaily,
		Day:              c.day,
		WriterName:       writer.Name,
		PublicEvents:     lines,
		ArchivePrecision: archive,
	})
	cancel()
	if err != nil {
		c.log.Printf("city: newspaper failed, reusing yesterday's: %v", err)
		return
	}
	c.newspaper = body
	c.addStory(StoryDaily, fmt.Sprintf("The City Ledger, day %d", c.day), body, writer.ID)
	c.memory.PublishCity(body, "newspaper", c.day)
	c.broadcastEvent("newspaper", map[string]any{"title": fmt.Sprintf("Day %d", c.day), "body": body})

	if c.day%7 == 0 {
		c.writeRollup(ctx, writer, protocol.NarrativeWeekly, StoryWeekly, "weekly_report")
	}
	if c.day%30 == 0 {
		c.writeRollup(ctx, writer, protocol.NarrativeMonthly, StoryMonthly, "monthly_chronicle")
	}
}

func (c *City) writeRollup(ctx context.Context, writer *Agent, kind protocol.NarrativeKind, storyKind StoryKind, broadcastType string) {
	var prior []string
	for _, s := range c.stories {
		if s.Kind == StoryDaily && c.day-s.Day < 30 {
			prior = append(prior, s.Body)
		}
	}
	rctx, cancel := context.WithTimeout(ctx, c.decisionTimeout())
	body, err := c.reasoner.WriteNarrative(rctx, protocol.NarrativeRequest{
		Kind:         kind,
		Day:          c.day,
		WriterName:   writer.Name,
		PriorStories: prior,
	})
	cancel()
	if err != nil {
		return
	}
	c.addStory(storyKind, fmt.Sprintf("%s, day %d", storyKind, c.day), body, writer.ID)
	c.broadcastEvent(broadcastType, map[string]any{"body": body})
}

func (c *City) addStory(kind StoryKind, title, body, writerID string) {
	c.nextStoryID++
	c.stories = append(c.stories, &Story{
		ID: c.nextStoryID, Kind: kind, Day: c.day, Title: title, Body: body, WrittenBy: writerID,
	})
}
