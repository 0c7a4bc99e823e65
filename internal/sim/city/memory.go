package city

import "strings"

// MemoryStore is the external recall surface: per-agent private memories
// plus shared city knowledge. The engine treats it as opaque; only the
// decision layer consumes recall results. No cross-operation ordering is
// required of implementations.
type MemoryStore interface {
	Remember(agentID, content, kind string, day int)
	Recall(agentID, query string, k int) []string
	PublishCity(content, kind string, day int)
	QueryCity(query string, k int) []string
}

type memoryItem struct {
	Content string
	Kind    string
	Day     int
}

// InProcessMemory is the default MemoryStore: newest-first substring recall
// over in-process slices. A vector store can be swapped in behind the same
// interface.
type InProcessMemory struct {
	perAgent map[string][]memoryItem
	city     []memoryItem
}

func NewInProcessMemory() *InProcessMemory {
	return &InProcessMemory{perAgent: map[string][]memoryItem{}}
}

func (m *InProcessMemory) Remember(agentID, content, kind string, day int) {
	m.perAgent[agentID] = append(m.perAgent[agentID], memoryItem{Content: content, Kind: kind, Day: day})
}

func (m *InProcessMemory) Recall(agentID, query string, k int) []string {
	return recallFrom(m.perAgent[agentID], query, k)
}

func (m *InProcessMemory) PublishCity(content, kind string, day int) {
	m.city = append(m.city, memoryItem{Content: content, Kind: kind, Day: day})
}

func (m *InProcessMemory) QueryCity(query string, k int) []string {
	return recallFrom(m.city, query, k)
}

func recallFrom(items []memoryItem, query string, k int) []string {
	if k <= 0 {
		k = 5
	}
	q := strings.ToLower(query)
	var hits, recent []string
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if q != "" && strings.Contains(strings.ToLower(it.Content), q) {
			if len(hits) < k {
				hits = append(hits, it.Content)
			}
		} else if len(recent) < k {
			recent = append(recent, it.Content)
		}
	}
	// Fill with recent items when the query matched too little.
	for _, r := range recent {
		if len(hits) >= k {
			break
		}
		hits = append(hits, r)
	}
	return hits
}
