package city

import "sort"

// MessageBus is the per-agent inbox with bounded retention. Messages expire
// after the configured TTL; reads are bounded to the most recent N.
type MessageBus struct {
	msgs   []*Message
	nextID uint64
	ttl    int
}

func NewMessageBus(ttlDays int) *MessageBus {
	return &MessageBus{ttl: ttlDays}
}

func (mb *MessageBus) Send(day int, from, to, body string) *Message {
	mb.nextID++
	m := &Message{ID: mb.nextID, Day: day, From: from, To: to, Body: body}
	mb.msgs = append(mb.msgs, m)
	return m
}

// Inbox returns the agent's unexpired messages, newest first, bounded.
func (mb *MessageBus) Inbox(agentID string, today, limit int) []*Message {
	var out []*Message
	for _, m := range mb.msgs {
		if m.To != agentID {
			continue
		}
		if today-m.Day > mb.ttl {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Between returns unexpired traffic in either direction between two agents.
// The meeting matcher scans this for meet intent.
func (mb *MessageBus) Between(a, b string, today int) []*Message {
	var out []*Message
	for _, m := range mb.msgs {
		if today-m.Day > mb.ttl {
			continue
		}
		if (m.From == a && m.To == b) || (m.From == b && m.To == a) {
			out = append(out, m)
		}
	}
	return out
}

// SentBy returns unexpired messages sent by one agent.
func (mb *MessageBus) SentBy(agentID string, today int) []*Message {
	var out []*Message
	for _, m := range mb.msgs {
		if m.From == agentID && today-m.Day <= mb.ttl {
			out = append(out, m)
		}
	}
	return out
}

func (mb *MessageBus) MarkRead(m *Message, day int) {
	if m.ReadDay == 0 {
		m.ReadDay = day
	}
}

// Expire drops messages past the TTL. Called once per day by the scheduler.
func (mb *MessageBus) Expire(today int) {
	kept := mb.msgs[:0]
	for _, m := range mb.msgs {
		if today-m.Day <= mb.ttl {
			kept = append(kept, m)
		}
	}
	mb.msgs = kept
}

func (mb *MessageBus) All() []*Message { return mb.msgs }

func (mb *MessageBus) Restore(msgs []*Message, nextID uint64) {
	mb.msgs = msgs
	mb.nextID = nextID
}

func (mb *MessageBus) NextID() uint64 { return mb.nextID }
