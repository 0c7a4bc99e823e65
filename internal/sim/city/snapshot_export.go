package city

import (
	snap "aicity.ai/internal/persistence/snapshot"
)

// Snapshot is the whole-state checkpoint record.
type Snapshot = snap.CityV1

// ExportSnapshot captures the complete simulation state at the current day
// boundary. The export plus the configured seed is sufficient to resume an
// engine behaviorally identical to a continuous run.
func (c *City) ExportSnapshot() Snapshot {
	s := Snapshot{
		Header: snap.Header{Version: 1, CityID: c.cfg.ID, Day: c.day},
		Seed:   c.cfg.Seed,
		Knowers: map[uint64][]string{},
		Newspaper: c.newspaper,
	}

	for _, a := range c.agentsSorted() {
		s.Agents = append(s.Agents, snap.AgentV1{
			ID:                  a.ID,
			Name:                a.Name,
			Role:                string(a.Role),
			Status:              string(a.Status),
			AgeDays:             a.AgeDays,
			Mood:                a.Mood,
			CauseOfDeath:        a.CauseOfDeath,
			BribeSusceptibility: a.BribeSusceptibility,
			ComprehensionScore:  a.ComprehensionScore,
			AssignedTeacher:     a.AssignedTeacher,
			ReleaseDay:          a.ReleaseDay,
			HomeLot:             a.HomeLot,
			HasHome:             a.HasHome,
			Tile:                a.Tile,
			HasTile:             a.HasTile,
			Zone:                a.Zone,
		})
	}

	ls := c.ledger.ExportState()
	s.Ledger = snap.LedgerV1{
		Balances:         ls.Balances,
		Vault:            ls.Vault,
		TotalSupply:      ls.TotalSupply,
		InitialSupply:    c.cfg.TotalSupply,
		NextTx:           ls.NextTx,
		MintPeriodStart:  ls.MintPeriodStart,
		MintedThisPeriod: ls.MintedThisPeriod,
	}
	for _, tx := range ls.Transactions {
		s.Ledger.Transactions = append(s.Ledger.Transactions, snap.TransactionV1{
			ID: tx.ID, Day: tx.Day, From: tx.From, To: tx.To,
			Amount: tx.Amount, TaxWithheld: tx.TaxWithheld, Reason: tx.Reason, Kind: string(tx.Kind),
		})
	}

	for _, e := range c.events.All() {
		ev := snap.EventV1{
			ID: e.ID, Day: e.Day, Kind: string(e.Kind), Actor: e.Actor, Target: e.Target,
			AssetID: e.AssetID, Description: e.Description, Visibility: e.Visibility.String(),
			Witnesses: append([]string(nil), e.Witnesses...), CaseID: e.CaseID,
		}
		for _, ref := range e.Evidence {
			ev.Evidence = append(ev.Evidence, snap.EvidenceRefV1{Day: ref.Day, Kind: ref.Kind, By: ref.By, To: ref.To, Text: ref.Text})
		}
		s.Events = append(s.Events, ev)
		if ks := c.events.Knowers(e.ID); len(ks) > 0 {
			s.Knowers[e.ID] = ks
		}
	}

	for _, b := range c.bonds.Records() {
		s.Bonds = append(s.Bonds, snap.BondV1{A: b.A, B: b.B, Value: b.Value, LastUpdated: b.LastUpdated})
	}

	for _, m := range c.messages.All() {
		s.Messages = append(s.Messages, snap.MessageV1{ID: m.ID, Day: m.Day, From: m.From, To: m.To, Body: m.Body, ReadDay: m.ReadDay})
	}

	for _, pc := range c.cases.All() {
		cv := snap.CaseV1{
			ID: pc.ID, DayOpened: pc.DayOpened, TriggerEvent: pc.TriggerEvent,
			Complainant: pc.Complainant, Suspects: append([]string(nil), pc.Suspects...),
			EvidenceRefs: append([]uint64(nil), pc.EvidenceRefs...), Status: string(pc.Status),
			DayClosed: pc.DayClosed, ClosingReport: pc.ClosingReport, LastEvidence: pc.LastEvidence,
		}
		for _, n := range pc.Notes {
			cv.Notes = append(cv.Notes, snap.CaseNoteV1{Day: n.Day, Text: n.Text, Suspects: n.Suspects, Confidence: n.Confidence})
		}
		s.Cases = append(s.Cases, cv)
	}

	for _, p := range c.projects.All() {
		contrib := make(map[string]float64, len(p.Contributors))
		for k, v := range p.Contributors {
			contrib[k] = v
		}
		s.Projects = append(s.Projects, snap.ProjectV1{
			ID: p.ID, Name: p.Name, Type: p.Type, Proposer: p.Proposer,
			GoalBuilderDays: p.GoalBuilderDays, Contributors: contrib, Progress: p.Progress,
			Status: string(p.Status), DayStarted: p.DayStarted, DayCompleted: p.DayCompleted,
			LastProgressDay: p.LastProgressDay, TargetTile: p.TargetTile, HasTile: p.HasTile, TileType: p.TileType,
		})
	}

	for _, a := range c.assets.All() {
		s.Assets = append(s.Assets, snap.AssetV1{
			ID: a.ID, Name: a.Name, Type: a.Type, Builders: append([]string(nil), a.Builders...),
			DayBuilt: a.DayBuilt, Status: string(a.Status), DayDestroyed: a.DayDestroyed,
			Tile: a.Tile, HasTile: a.HasTile,
		})
	}

	for _, g := range c.gangs.All() {
		s.Gangs = append(s.Gangs, snap.GangV1{
			ID: g.ID, Name: g.Name, Leader: g.Leader, Members: append([]string(nil), g.Members...),
			DayFormed: g.DayFormed, Status: string(g.Status), TotalCrimes: g.TotalCrimes,
			KnownToPolice: g.KnownToPolice,
		})
	}

	for _, a := range c.agentsSorted() {
		if lot, ok := c.homeLots[a.ID]; ok {
			s.HomeLots = append(s.HomeLots, snap.HomeLotV1{AgentID: lot.AgentID, Tile: lot.Tile, DayClaimed: lot.DayClaimed})
		}
	}

	for _, t := range c.tilesSorted() {
		s.Tiles = append(s.Tiles, snap.TileV1{Pos: t.Pos, Type: t.Type, AssetID: t.AssetID})
	}

	for _, st := range c.stories {
		s.Stories = append(s.Stories, snap.StoryV1{
			ID: st.ID, Kind: string(st.Kind), Day: st.Day, Title: st.Title, Body: st.Body, WrittenBy: st.WrittenBy,
		})
	}

	s.Counters = snap.CountersV1{
		NextAgent:   c.nextAgentNum,
		NextEvent:   c.events.NextID(),
		NextMessage: c.messages.NextID(),
		NextCase:    c.cases.NextID(),
		NextProject: c.projects.NextID(),
		NextAsset:   c.assets.NextID(),
		NextGang:    c.gangs.NextID(),
		NextStory:   c.nextStoryID,
	}
	return s
}
