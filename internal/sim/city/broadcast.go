package city

import (
	"encoding/json"
	"sort"
)

// observer is one attached push-channel consumer with a bounded queue.
// Slow observers are dropped from the live feed and must re-sync via the
// snapshot endpoint; they never block the tick.
type observer struct {
	id  string
	out chan []byte
}

type observerJoinReq struct {
	id   string
	resp chan ObserverSession
}

// ObserverSession is what an attached observer receives: the live feed and
// the connect-time state snapshot.
type ObserverSession struct {
	ID    string
	Feed  <-chan []byte
	State []byte // full `state` message, sent on connect
}

const observerQueueDepth = 256

// broadcastEvent buffers one observer message for this day. Payloads gain
// the mandatory type and day fields here. Buffered messages flush in the
// broadcast phase, after the checkpoint commits, in commit order.
func (c *City) broadcastEvent(msgType string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["type"] = msgType
	payload["day"] = c.day
	b, err := json.Marshal(payload)
	if err != nil {
		c.log.Printf("broadcast: marshal %s: %v", msgType, err)
		return
	}
	c.dayBroadcasts = append(c.dayBroadcasts, b)
}

// flushBroadcasts fans the day's buffer out to every observer. A full
// queue drops the observer from the live feed.
func (c *City) flushBroadcasts() {
	c.broadcastTimePhase()
	for _, b := range c.dayBroadcasts {
		for id, o := range c.observers {
			select {
			case o.out <- b:
			default:
				c.log.Printf("broadcast: observer %s overflowed, dropping from live feed", id)
				close(o.out)
				delete(c.observers, id)
			}
		}
	}
	c.dayBroadcasts = nil
}

// broadcastPositions emits the tile positions of every placed agent, for
// external visualizers.
func (c *City) broadcastPositions() {
	positions := []map[string]any{}
	for _, a := range c.agentsSorted() {
		if a.Alive() && a.HasTile {
			positions = append(positions, map[string]any{"agent": a.Name, "pos": a.Tile})
		}
	}
	if len(positions) > 0 {
		c.broadcastEvent("positions", map[string]any{"positions": positions})
	}
}

func (c *City) broadcastTimePhase() {
	b, _ := json.Marshal(map[string]any{"type": "time_phase", "day": c.day, "phase": PhaseMorning})
	head := [][]byte{b}
	c.dayBroadcasts = append(head, c.dayBroadcasts...)
}

// handleObserverJoin attaches an observer on the run-loop goroutine so the
// state message is consistent with a single day boundary.
func (c *City) handleObserverJoin(req observerJoinReq) {
	o := &observer{id: req.id, out: make(chan []byte, observerQueueDepth)}
	c.observers[req.id] = o
	req.resp <- ObserverSession{ID: req.id, Feed: o.out, State: c.stateMessage()}
}

func (c *City) handleObserverLeave(id string) {
	if o, ok := c.observers[id]; ok {
		close(o.out)
		delete(c.observers, id)
	}
}

// stateMessage builds the full `state` snapshot message.
func (c *City) stateMessage() []byte {
	vault := c.ledger.Vault()
	agents := []map[string]any{}
	for _, a := range c.agentsSorted() {
		rec := map[string]any{
			"id":     a.ID,
			"name":   a.Name,
			"role":   string(a.Role),
			"status": string(a.Status),
			"tokens": c.ledger.Balance(a.ID),
			"age":    a.AgeDays,
			"mood":   a.Mood,
			"zone":   a.Zone,
		}
		// Bribe susceptibility is deliberately absent: it never reaches
		// observers.
		if a.HasTile {
			rec["pos"] = a.Tile
		}
		agents = append(agents, rec)
	}
	tiles := []map[string]any{}
	for _, t := range c.tilesSorted() {
		tiles = append(tiles, map[string]any{"pos": t.Pos, "tile_type": t.Type})
	}
	assets := []map[string]any{}
	for _, as := range c.assets.All() {
		assets = append(assets, map[string]any{
			"name": as.Name, "asset_type": as.Type, "status": string(as.Status),
		})
	}
	b, _ := json.Marshal(map[string]any{
		"type":      "state",
		"day":       c.day,
		"agents":    agents,
		"vault":     map[string]any{"total_supply": vault.TotalSupply, "circulating": vault.Circulating, "vault_balance": vault.VaultBalance},
		"assets":    assets,
		"tiles":     tiles,
		"graveyard": c.GraveyardCount(),
		"newspaper": c.newspaper,
	})
	return b
}

func (c *City) tilesSorted() []*WorldTile {
	out := make([]*WorldTile, 0, len(c.tiles))
	for _, t := range c.tiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pos[0] != out[j].Pos[0] {
			return out[i].Pos[0] < out[j].Pos[0]
		}
		return out[i].Pos[1] < out[j].Pos[1]
	})
	return out
}
