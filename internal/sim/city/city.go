package city

import (
	"fmt"
	"log"
	"math/rand"
	"sort"

	"aicity.ai/internal/protocol"
)

// City is the single authoritative simulation state: one engine per city.
// All mutation happens on the run-loop goroutine; external surfaces talk to
// it through channels (runtime_loop.go) or read committed snapshots.
type City struct {
	cfg CityConfig
	rng *rand.Rand

	day int

	agents map[string]*Agent

	ledger   *Ledger
	events   *EventLog
	bonds    *BondTable
	messages *MessageBus
	memory   MemoryStore
	projects *ProjectSystem
	assets   *AssetSystem
	cases    *CaseEngine
	gangs    *GangSystem

	homeLots map[string]*HomeLot // by agent id
	tiles    map[[2]int]*WorldTile

	stories     []*Story
	nextStoryID uint64
	newspaper   string // yesterday's daily story, fed into decisions

	nextAgentNum uint64

	reasoner       protocol.Reasoner
	intent         IntentPredicate
	pendingMintKey string

	// Pending cross-phase work.
	arrestQueue []arrestRequest
	dayWorkers  map[uint64]map[string]Role // project id -> who acted on it today

	// Day-scoped broadcast buffer, flushed in the broadcast phase.
	dayBroadcasts [][]byte

	// Observer fan-out (broadcast.go).
	observers map[string]*observer

	// Persistence sink; nil in pure in-memory tests.
	checkpoint CheckpointSink

	// Control channels (runtime_loop.go).
	stop        chan struct{}
	obsJoin     chan observerJoinReq
	obsLeave    chan string
	snapshotReq chan chan Snapshot
	mintReq     chan mintReq

	log *log.Logger
}

type arrestRequest struct {
	Suspect string
	CaseID  uint64
	Reason  string
}

// CheckpointSink receives the end-of-day checkpoint as one logical unit of
// work. CommitDay must not return until the flush is durable; the next day
// does not begin before it acknowledges.
type CheckpointSink interface {
	CommitDay(chk DayCheckpoint) error
}

// Option wires optional collaborators into a new City.
type Option func(*City)

func WithReasoner(r protocol.Reasoner) Option   { return func(c *City) { c.reasoner = r } }
func WithMemory(m MemoryStore) Option           { return func(c *City) { c.memory = m } }
func WithCheckpoint(s CheckpointSink) Option    { return func(c *City) { c.checkpoint = s } }
func WithIntentPredicate(p IntentPredicate) Option { return func(c *City) { c.intent = p } }
func WithMintKey(key string) Option             { return func(c *City) { c.pendingMintKey = key } }

func New(cfg CityConfig, logger *log.Logger, opts ...Option) *City {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.Default()
	}
	c := &City{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		agents:      map[string]*Agent{},
		bonds:       NewBondTable(),
		messages:    NewMessageBus(cfg.MessageTTLDays),
		memory:      NewInProcessMemory(),
		projects:    NewProjectSystem(logger),
		assets:      NewAssetSystem(logger),
		gangs:       NewGangSystem(logger),
		homeLots:    map[string]*HomeLot{},
		tiles:       map[[2]int]*WorldTile{},
		observers:   map[string]*observer{},
		stop:        make(chan struct{}),
		obsJoin:     make(chan observerJoinReq, 16),
		obsLeave:    make(chan string, 16),
		snapshotReq: make(chan chan Snapshot, 4),
		mintReq:     make(chan mintReq, 4),
		intent:      KeywordIntent,
		log:         logger,
	}
	c.events = NewEventLog(logger)
	c.cases = NewCaseEngine(&c.cfg, logger)
	for _, o := range opts {
		o(c)
	}
	c.ledger = NewLedger(&c.cfg, c.pendingMintKey, logger)
	if c.reasoner == nil {
		c.reasoner = fallbackReasoner{}
	}
	return c
}

func (c *City) Config() CityConfig { return c.cfg }
func (c *City) Day() int           { return c.day }
func (c *City) Ledger() *Ledger    { return c.ledger }
func (c *City) Events() *EventLog  { return c.events }
func (c *City) Bonds() *BondTable  { return c.bonds }
func (c *City) Messages() *MessageBus { return c.messages }
func (c *City) Projects() *ProjectSystem { return c.projects }
func (c *City) Assets() *AssetSystem { return c.assets }
func (c *City) Cases() *CaseEngine { return c.cases }
func (c *City) Gangs() *GangSystem { return c.gangs }
func (c *City) Memory() MemoryStore { return c.memory }

func (c *City) Agent(id string) *Agent { return c.agents[id] }

// AgentByName resolves a display name to the agent record.
func (c *City) AgentByName(name string) *Agent {
	for _, a := range c.agents {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// AliveAgents returns living agents sorted by descending balance, ties by
// id — the per-agent turn order.
func (c *City) AliveAgents() []*Agent {
	var out []*Agent
	for _, a := range c.agents {
		if a.Alive() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		bi, bj := c.ledger.Balance(out[i].ID), c.ledger.Balance(out[j].ID)
		if bi != bj {
			return bi > bj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// agentsSorted returns every agent (any status) in id order.
func (c *City) agentsSorted() []*Agent {
	out := make([]*Agent, 0, len(c.agents))
	for _, a := range c.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GraveyardCount is the persistent count of dead agents.
func (c *City) GraveyardCount() int {
	n := 0
	for _, a := range c.agents {
		if a.Status == StatusDead {
			n++
		}
	}
	return n
}

func (c *City) newAgentID() string {
	c.nextAgentNum++
	return fmt.Sprintf("A%04d", c.nextAgentNum)
}

// SpawnAgent creates and registers a new agent.
func (c *City) SpawnAgent(name string, role Role) (*Agent, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	a := &Agent{
		ID:   c.newAgentID(),
		Name: name,
		Role: role,
	}
	a.initDefaults()
	if role == RolePolice {
		a.BribeSusceptibility = c.rng.Float64() * 0.5
	}
	c.agents[a.ID] = a
	if err := c.ledger.Register(c.day, a.ID); err != nil {
		return nil, err
	}
	return a, nil
}

// BigBang seeds the starting population with one agent per core role, then
// fills with builders.
func (c *City) BigBang(names []string) error {
	coreRoles := []Role{
		RoleBuilder, RoleExplorer, RoleMerchant, RolePolice, RoleTeacher,
		RoleHealer, RoleMessenger, RoleLawyer, RoleThief, RoleGangLeader,
		RoleBlackmailer, RoleSaboteur,
	}
	n := c.cfg.StartingAgents
	for i := 0; i < n; i++ {
		role := RoleBuilder
		if i < len(coreRoles) {
			role = coreRoles[i]
		}
		name := fmt.Sprintf("citizen-%02d", i+1)
		if i < len(names) {
			name = names[i]
		}
		if _, err := c.SpawnAgent(name, role); err != nil {
			return err
		}
	}
	c.seedConstitution()
	return nil
}

// seedConstitution publishes the founding rules into shared city knowledge.
func (c *City) seedConstitution() {
	rules := []string{
		"Every citizen pays a daily existence cost; run out of tokens and you starve.",
		fmt.Sprintf("Earnings are taxed at %d%% into the city vault; the vault funds welfare and public works.", c.cfg.TaxRatePercent),
		fmt.Sprintf("No citizen may hold more than %d%% of the city's total supply.", c.cfg.WealthCapPercent),
		"Crimes seen by nobody stay secret; reported crimes open police cases.",
		"A court verdict is public record.",
	}
	for _, r := range rules {
		c.memory.PublishCity(r, "constitution", 0)
	}
}

// pick returns a uniform index from the city RNG. Handed to subsystems so
// all stochastic draws flow from the persisted seed.
func (c *City) pick(n int) int {
	if n <= 1 {
		return 0
	}
	return c.rng.Intn(n)
}

// roll returns true with probability permille/1000.
func (c *City) roll(permille int) bool {
	return c.rng.Intn(1000) < permille
}

// randBetween returns a uniform int in [lo, hi].
func (c *City) randBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + c.rng.Intn(hi-lo+1)
}
