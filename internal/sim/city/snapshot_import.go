package city

import (
	"fmt"
	"log"
)

// Restore builds a City from a snapshot. The returned engine continues
// from the checkpointed day boundary: day N end-state equals day N+1
// start-state.
func Restore(cfg CityConfig, s Snapshot, logger *log.Logger, opts ...Option) (*City, error) {
	if s.Header.Version != 1 {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	cfg.Seed = s.Seed
	c := New(cfg, logger, opts...)
	c.day = s.Header.Day
	c.newspaper = s.Newspaper

	for _, av := range s.Agents {
		a := &Agent{
			ID:                  av.ID,
			Name:                av.Name,
			Role:                Role(av.Role),
			Status:              Status(av.Status),
			AgeDays:             av.AgeDays,
			Mood:                av.Mood,
			CauseOfDeath:        av.CauseOfDeath,
			BribeSusceptibility: av.BribeSusceptibility,
			ComprehensionScore:  av.ComprehensionScore,
			AssignedTeacher:     av.AssignedTeacher,
			ReleaseDay:          av.ReleaseDay,
			HomeLot:             av.HomeLot,
			HasHome:             av.HasHome,
			Tile:                av.Tile,
			HasTile:             av.HasTile,
			Zone:                av.Zone,
		}
		a.initDefaults()
		a.Status = Status(av.Status)
		c.agents[a.ID] = a
	}

	ls := LedgerState{
		Balances:         s.Ledger.Balances,
		Vault:            s.Ledger.Vault,
		TotalSupply:      s.Ledger.TotalSupply,
		NextTx:           s.Ledger.NextTx,
		MintPeriodStart:  s.Ledger.MintPeriodStart,
		MintedThisPeriod: s.Ledger.MintedThisPeriod,
	}
	for _, tv := range s.Ledger.Transactions {
		ls.Transactions = append(ls.Transactions, Transaction{
			ID: tv.ID, Day: tv.Day, From: tv.From, To: tv.To,
			Amount: tv.Amount, TaxWithheld: tv.TaxWithheld, Reason: tv.Reason, Kind: TxKind(tv.Kind),
		})
	}
	c.ledger.RestoreState(ls)

	var events []*Event
	for _, ev := range s.Events {
		vis, ok := ParseVisibility(ev.Visibility)
		if !ok {
			return nil, fmt.Errorf("event #%d: bad visibility %q", ev.ID, ev.Visibility)
		}
		e := &Event{
			ID: ev.ID, Day: ev.Day, Kind: EventKind(ev.Kind), Actor: ev.Actor, Target: ev.Target,
			AssetID: ev.AssetID, Description: ev.Description, Visibility: vis,
			Witnesses: append([]string(nil), ev.Witnesses...), CaseID: ev.CaseID,
		}
		for _, ref := range ev.Evidence {
			e.Evidence = append(e.Evidence, EvidenceRef{Day: ref.Day, Kind: ref.Kind, By: ref.By, To: ref.To, Text: ref.Text})
		}
		events = append(events, e)
	}
	c.events.Restore(events, s.Knowers, s.Counters.NextEvent)

	var bonds []BondRecord
	for _, b := range s.Bonds {
		bonds = append(bonds, BondRecord{A: b.A, B: b.B, Value: b.Value, LastUpdated: b.LastUpdated})
	}
	c.bonds.Restore(bonds)

	var msgs []*Message
	for _, m := range s.Messages {
		msgs = append(msgs, &Message{ID: m.ID, Day: m.Day, From: m.From, To: m.To, Body: m.Body, ReadDay: m.ReadDay})
	}
	c.messages.Restore(msgs, s.Counters.NextMessage)

	var cases []*PoliceCase
	for _, cv := range s.Cases {
		pc := &PoliceCase{
			ID: cv.ID, DayOpened: cv.DayOpened, TriggerEvent: cv.TriggerEvent,
			Complainant: cv.Complainant, Suspects: append([]string(nil), cv.Suspects...),
			EvidenceRefs: append([]uint64(nil), cv.EvidenceRefs...), Status: CaseStatus(cv.Status),
			DayClosed: cv.DayClosed, ClosingReport: cv.ClosingReport, LastEvidence: cv.LastEvidence,
		}
		for _, n := range cv.Notes {
			pc.Notes = append(pc.Notes, CaseNote{Day: n.Day, Text: n.Text, Suspects: n.Suspects, Confidence: n.Confidence})
		}
		cases = append(cases, pc)
	}
	c.cases.Restore(cases, s.Counters.NextCase)

	var projects []*Project
	for _, pv := range s.Projects {
		contrib := map[string]float64{}
		for k, v := range pv.Contributors {
			contrib[k] = v
		}
		projects = append(projects, &Project{
			ID: pv.ID, Name: pv.Name, Type: pv.Type, Proposer: pv.Proposer,
			GoalBuilderDays: pv.GoalBuilderDays, Contributors: contrib, Progress: pv.Progress,
			Status: ProjectStatus(pv.Status), DayStarted: pv.DayStarted, DayCompleted: pv.DayCompleted,
			LastProgressDay: pv.LastProgressDay, TargetTile: pv.TargetTile, HasTile: pv.HasTile, TileType: pv.TileType,
		})
	}
	c.projects.Restore(projects, s.Counters.NextProject)

	var assets []*Asset
	for _, av := range s.Assets {
		assets = append(assets, &Asset{
			ID: av.ID, Name: av.Name, Type: av.Type, Builders: append([]string(nil), av.Builders...),
			DayBuilt: av.DayBuilt, Status: AssetStatus(av.Status), DayDestroyed: av.DayDestroyed,
			Tile: av.Tile, HasTile: av.HasTile,
		})
	}
	c.assets.Restore(assets, s.Counters.NextAsset)

	var gangs []*Gang
	for _, gv := range s.Gangs {
		gangs = append(gangs, &Gang{
			ID: gv.ID, Name: gv.Name, Leader: gv.Leader, Members: append([]string(nil), gv.Members...),
			DayFormed: gv.DayFormed, Status: GangStatus(gv.Status), TotalCrimes: gv.TotalCrimes,
			KnownToPolice: gv.KnownToPolice,
		})
	}
	c.gangs.Restore(gangs, s.Counters.NextGang)

	for _, lot := range s.HomeLots {
		c.homeLots[lot.AgentID] = &HomeLot{AgentID: lot.AgentID, Tile: lot.Tile, DayClaimed: lot.DayClaimed}
	}
	for _, t := range s.Tiles {
		c.tiles[t.Pos] = &WorldTile{Pos: t.Pos, Type: t.Type, AssetID: t.AssetID}
	}
	for _, sv := range s.Stories {
		c.stories = append(c.stories, &Story{
			ID: sv.ID, Kind: StoryKind(sv.Kind), Day: sv.Day, Title: sv.Title, Body: sv.Body, WrittenBy: sv.WrittenBy,
		})
	}
	c.nextStoryID = s.Counters.NextStory
	c.nextAgentNum = s.Counters.NextAgent

	if err := c.ledger.CheckConservation(); err != nil {
		return nil, fmt.Errorf("snapshot fails conservation: %w", err)
	}
	return c, nil
}
