package city

import (
	"errors"
	"fmt"
	"log"
	"sort"
)

var ErrPermissionDenied = errors.New("permission denied")

// Vague witness memory fragments, keyed by event kind. Witnesses see
// fragments, not the full truth.
var witnessTemplates = map[EventKind][]string{
	EventTheft: {
		"I noticed %s acting suspiciously near %s's area. Something felt off.",
		"I saw someone moving quickly away from where %s usually is. Couldn't make out who.",
		"There was a commotion near %s's area. I didn't see exactly what happened.",
	},
	EventArson: {
		"I saw smoke rising from that direction. Someone was near %s's place earlier.",
		"I smelled smoke and saw a figure leaving %s's area quickly.",
	},
	EventAssault: {
		"I heard raised voices near %s's area but didn't want to get involved.",
		"There was a scuffle involving %s. I only caught the tail end of it.",
	},
	EventBribe: {
		"I saw %s meeting with someone privately. They exchanged something.",
		"I saw tokens change hands between %s and someone I couldn't identify.",
	},
	EventBlackmail: {
		"I overheard %s talking in low tones. The other person looked scared.",
		"I saw a message being passed near %s. The recipient looked pale afterward.",
	},
	EventSabotage: {
		"I noticed %s lingering near the site before it happened.",
		"Something broke in the night. I saw a shadow leaving %s's direction.",
	},
}

var fallbackWitnessTemplates = []string{
	"Something happened near %s's area. I'm not sure what.",
	"I noticed unusual activity around %s but couldn't make sense of it.",
}

// EventLog is the city's hidden ledger of actions. Every significant action
// is recorded with the visibility level appropriate to how secret it was,
// and visibility only ever moves forward.
type EventLog struct {
	events []*Event
	byID   map[uint64]*Event
	nextID uint64

	// knowers tracks which agents hold a personal memory of each event
	// (witnesses, rumor recipients, victims who noticed). It feeds the
	// independent-knower promotion threshold.
	knowers map[uint64]map[string]bool

	log *log.Logger
}

func NewEventLog(logger *log.Logger) *EventLog {
	return &EventLog{
		byID:    map[uint64]*Event{},
		knowers: map[uint64]map[string]bool{},
		log:     logger,
	}
}

// Append records a new event. Crimes start PRIVATE; inherently public acts
// (births, deaths, verdicts) pass their visibility explicitly, as do
// arrests (REPORTED).
func (el *EventLog) Append(day int, kind EventKind, actor, target, description string, vis Visibility) *Event {
	el.nextID++
	e := &Event{
		ID:          el.nextID,
		Day:         day,
		Kind:        kind,
		Actor:       actor,
		Target:      target,
		Description: description,
		Visibility:  vis,
	}
	el.events = append(el.events, e)
	el.byID[e.ID] = e
	if actor != "" {
		el.addKnower(e.ID, actor)
	}
	return e
}

func (el *EventLog) Get(id uint64) *Event { return el.byID[id] }

func (el *EventLog) addKnower(eventID uint64, agentID string) {
	m := el.knowers[eventID]
	if m == nil {
		m = map[string]bool{}
		el.knowers[eventID] = m
	}
	m[agentID] = true
}

// KnowerCount returns how many agents other than the actor hold a personal
// memory of the event.
func (el *EventLog) KnowerCount(eventID uint64) int {
	e := el.byID[eventID]
	if e == nil {
		return 0
	}
	n := 0
	for id := range el.knowers[eventID] {
		if id != e.Actor {
			n++
		}
	}
	return n
}

// promote moves an event forward in the visibility order. Backward moves
// are a caller bug and are rejected.
func (el *EventLog) promote(e *Event, to Visibility) error {
	if to < e.Visibility {
		el.log.Printf("eventlog: rejected backward visibility move on #%d: %s -> %s", e.ID, e.Visibility, to)
		return fmt.Errorf("%w: visibility %s -> %s", ErrPermissionDenied, e.Visibility, to)
	}
	e.Visibility = to
	return nil
}

// MarkWitnessed promotes PRIVATE -> WITNESSED, appends the witness ids and
// returns the vague memory fragment each witness should remember.
// Promoting an already-promoted event just adds witnesses (idempotent on
// visibility).
func (el *EventLog) MarkWitnessed(e *Event, witnessIDs []string, pick func(n int) int) (fragment string, err error) {
	if len(witnessIDs) == 0 {
		return "", nil
	}
	if e.Visibility == VisPrivate {
		if err := el.promote(e, VisWitnessed); err != nil {
			return "", err
		}
	}
	for _, w := range witnessIDs {
		if !e.hasWitness(w) {
			e.Witnesses = append(e.Witnesses, w)
		}
		el.addKnower(e.ID, w)
		e.Evidence = append(e.Evidence, EvidenceRef{Day: e.Day, Kind: "witness", By: w})
	}
	tmpls, ok := witnessTemplates[e.Kind]
	if !ok {
		tmpls = fallbackWitnessTemplates
	}
	subject := e.Target
	if subject == "" {
		subject = e.Actor
	}
	t := tmpls[pick(len(tmpls))]
	return fmt.Sprintf(t, subjectArgs(t, e.Actor, subject)...), nil
}

// subjectArgs fills however many %s verbs a template carries, actor first.
func subjectArgs(tmpl, actor, subject string) []any {
	n := 0
	for i := 0; i+1 < len(tmpl); i++ {
		if tmpl[i] == '%' && tmpl[i+1] == 's' {
			n++
		}
	}
	args := make([]any, 0, n)
	pool := []string{actor, subject}
	for i := 0; i < n; i++ {
		args = append(args, pool[i%len(pool)])
	}
	return args
}

// SpreadRumor promotes to RUMOR when a witnessing agent references the
// event in an inbox message; the message body lands in the evidence trail.
func (el *EventLog) SpreadRumor(e *Event, day int, from, to, body string) error {
	if e.Visibility <= VisWitnessed {
		if err := el.promote(e, VisRumor); err != nil {
			return err
		}
	}
	if to != "" {
		el.addKnower(e.ID, to)
	}
	e.Evidence = append(e.Evidence, EvidenceRef{Day: day, Kind: "rumor", By: from, To: to, Text: body})
	return nil
}

// FileReport promotes to REPORTED on a victim/witness reporting action.
func (el *EventLog) FileReport(e *Event, day int, reporter string) error {
	if e.Visibility < VisReported {
		if err := el.promote(e, VisReported); err != nil {
			return err
		}
	}
	el.addKnower(e.ID, reporter)
	e.Evidence = append(e.Evidence, EvidenceRef{Day: day, Kind: "report", By: reporter})
	el.log.Printf("eventlog: %s filed report on #%d -> REPORTED", reporter, e.ID)
	return nil
}

// MakePublic is the explicit publication path (court verdicts, deaths) and
// the knower-threshold promotion.
func (el *EventLog) MakePublic(e *Event, day int, reason string) error {
	if e.Visibility == VisPublic {
		return nil
	}
	if err := el.promote(e, VisPublic); err != nil {
		return err
	}
	e.Evidence = append(e.Evidence, EvidenceRef{Day: day, Kind: "note", Text: "made_public: " + reason})
	el.log.Printf("eventlog: #%d -> PUBLIC (%s)", e.ID, reason)
	return nil
}

// NoteVictimKnows records that the victim has personally discovered the
// crime (balance check, burned-down home). It does not move visibility.
func (el *EventLog) NoteVictimKnows(e *Event) {
	if e.Target != "" {
		el.addKnower(e.ID, e.Target)
	}
}

// --- Scoped queries -------------------------------------------------------

// NarratorScope returns PUBLIC events only. This is the one scope the
// narrator sees; no exception may be introduced.
func (el *EventLog) NarratorScope(sinceDay int) []*Event {
	var out []*Event
	for _, e := range el.events {
		if e.Visibility == VisPublic && e.Day >= sinceDay {
			out = append(out, e)
		}
	}
	return out
}

// PoliceScope returns WITNESSED, REPORTED and PUBLIC events — never PRIVATE
// or RUMOR. Rumor is not yet in the book.
func (el *EventLog) PoliceScope(sinceDay int, suspect string, kind EventKind) []*Event {
	var out []*Event
	for _, e := range el.events {
		if e.Day < sinceDay {
			continue
		}
		switch e.Visibility {
		case VisWitnessed, VisReported, VisPublic:
		default:
			continue
		}
		if suspect != "" && e.Actor != suspect && e.Target != suspect {
			continue
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, e)
	}
	return out
}

// AgentScope returns what one agent can know: events where they are actor,
// target or witness, plus everything PUBLIC.
func (el *EventLog) AgentScope(agentID string, sinceDay, limit int) []*Event {
	var out []*Event
	for _, e := range el.events {
		if e.Day < sinceDay {
			continue
		}
		if e.Actor == agentID || e.Target == agentID || e.hasWitness(agentID) || e.Visibility == VisPublic {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UnnoticedCrimesAgainst returns recent crimes of the given kind against a
// victim that have not yet been reported — the victim self-discovery path.
func (el *EventLog) UnnoticedCrimesAgainst(victim string, kind EventKind, sinceDay int) []*Event {
	var out []*Event
	for _, e := range el.events {
		if e.Target != victim || e.Kind != kind || e.Day < sinceDay {
			continue
		}
		if e.Visibility <= VisRumor {
			out = append(out, e)
		}
	}
	return out
}

// CreatedOn returns events created on the given day, in creation order.
func (el *EventLog) CreatedOn(day int) []*Event {
	var out []*Event
	for _, e := range el.events {
		if e.Day == day {
			out = append(out, e)
		}
	}
	return out
}

// All returns the full log in creation order (snapshot export).
func (el *EventLog) All() []*Event { return el.events }

// Knowers returns a sorted copy of an event's knower set (snapshot export).
func (el *EventLog) Knowers(eventID uint64) []string {
	m := el.knowers[eventID]
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Restore rebuilds the log from persisted records (snapshot import).
func (el *EventLog) Restore(events []*Event, knowers map[uint64][]string, nextID uint64) {
	el.events = events
	el.byID = map[uint64]*Event{}
	el.knowers = map[uint64]map[string]bool{}
	for _, e := range events {
		el.byID[e.ID] = e
	}
	for id, ks := range knowers {
		m := map[string]bool{}
		for _, k := range ks {
			m[k] = true
		}
		el.knowers[id] = m
	}
	el.nextID = nextID
}

func (el *EventLog) NextID() uint64 { return el.nextID }
