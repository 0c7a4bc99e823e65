package city

type Agent struct {
	ID   string
	Name string
	Role Role

	Status       Status
	AgeDays      int
	Mood         float64 // [-1, +1]
	CauseOfDeath string

	// Police only. Never exported to observers, events, or persisted
	// exports; it conditions the investigation prompt framing only.
	BribeSusceptibility float64 // [0, 1]

	// Newborn only.
	ComprehensionScore int // 0..100
	AssignedTeacher    string

	// Imprisonment.
	ReleaseDay int // day the sentence ends, while imprisoned

	HomeLot [2]int
	HasHome bool
	Tile    [2]int
	HasTile bool
	Zone    string

	// Day-scoped accumulators, cleared by the scheduler.
	moodDelta   float64
	earnedToday int
}

func (a *Agent) initDefaults() {
	if a.Status == "" {
		a.Status = StatusAlive
	}
	if a.Zone == "" {
		a.Zone = ZoneTownSquare
	}
}

func (a *Agent) Alive() bool { return a.Status == StatusAlive }

// Free reports whether the agent takes a turn this day (imprisoned agents
// sit out; dead agents are terminal).
func (a *Agent) Free() bool { return a.Status == StatusAlive }

// Location zones. Tile positions refine these for co-location checks when
// both agents carry one.
const (
	ZoneTownSquare = "LOC_TOWN_SQUARE"
	ZoneMarket     = "LOC_MARKET"
	ZoneOutskirts  = "LOC_OUTSKIRTS"
	ZoneHarbor     = "LOC_HARBOR"
)

var busyZones = map[string]bool{
	ZoneTownSquare: true,
	ZoneMarket:     true,
}

func manhattan(a, b [2]int) int {
	dx := a[0] - b[0]
	if dx < 0 {
		dx = -dx
	}
	dy := a[1] - b[1]
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// coLocated reports whether two agents count as being at the same place for
// witnessing and meetings. When both agents have a tile position, only the
// Manhattan distance against radius counts; otherwise they must share a zone.
func coLocated(a, b *Agent, radius int) bool {
	if a == nil || b == nil {
		return false
	}
	if a.HasTile && b.HasTile {
		return manhattan(a.Tile, b.Tile) <= radius
	}
	return a.Zone == b.Zone
}
