package city

import "sort"

// Signed bond deltas per in-day interaction.
const (
	BondCooperative   = 0.10
	BondAntagonistic  = -0.15
	BondSharedProject = 0.05
	BondConviction    = -0.20 // guilty verdict, defendant vs victim
	BondDailyDecay    = 0.005
)

type bondKey struct{ a, b string }

func makeBondKey(a, b string) bondKey {
	if a > b {
		a, b = b, a
	}
	return bondKey{a, b}
}

type bondEntry struct {
	value       float64
	lastUpdated int
}

// BondTable stores symmetric pairwise bonds in [-1, +1] with slow decay
// toward zero.
type BondTable struct {
	bonds map[bondKey]*bondEntry
}

func NewBondTable() *BondTable {
	return &BondTable{bonds: map[bondKey]*bondEntry{}}
}

func (bt *BondTable) Get(a, b string) float64 {
	if e, ok := bt.bonds[makeBondKey(a, b)]; ok {
		return e.value
	}
	return 0
}

func (bt *BondTable) Adjust(day int, a, b string, delta float64) float64 {
	if a == b || a == "" || b == "" {
		return 0
	}
	k := makeBondKey(a, b)
	e := bt.bonds[k]
	if e == nil {
		e = &bondEntry{}
		bt.bonds[k] = e
	}
	e.value = clamp1(e.value + delta)
	e.lastUpdated = day
	return e.value
}

// Decay moves every non-zero bond toward zero by the daily decay step.
// Bonds touched today keep their fresh value.
func (bt *BondTable) Decay(day int) {
	for k, e := range bt.bonds {
		if e.lastUpdated == day || e.value == 0 {
			continue
		}
		switch {
		case e.value > BondDailyDecay:
			e.value -= BondDailyDecay
		case e.value < -BondDailyDecay:
			e.value += BondDailyDecay
		default:
			e.value = 0
		}
		if e.value == 0 {
			delete(bt.bonds, k)
		}
	}
}

type BondView struct {
	Other string
	Value float64
}

// Top returns the k strongest positive and k strongest negative bonds for
// one agent, each list sorted by magnitude.
func (bt *BondTable) Top(agentID string, k int) (positive, negative []BondView) {
	for key, e := range bt.bonds {
		var other string
		switch agentID {
		case key.a:
			other = key.b
		case key.b:
			other = key.a
		default:
			continue
		}
		v := BondView{Other: other, Value: e.value}
		if e.value > 0 {
			positive = append(positive, v)
		} else if e.value < 0 {
			negative = append(negative, v)
		}
	}
	sort.Slice(positive, func(i, j int) bool {
		if positive[i].Value != positive[j].Value {
			return positive[i].Value > positive[j].Value
		}
		return positive[i].Other < positive[j].Other
	})
	sort.Slice(negative, func(i, j int) bool {
		if negative[i].Value != negative[j].Value {
			return negative[i].Value < negative[j].Value
		}
		return negative[i].Other < negative[j].Other
	})
	if len(positive) > k {
		positive = positive[:k]
	}
	if len(negative) > k {
		negative = negative[:k]
	}
	return positive, negative
}

type BondRecord struct {
	A           string
	B           string
	Value       float64
	LastUpdated int
}

// Records returns every bond in a stable order (persistence, snapshots).
func (bt *BondTable) Records() []BondRecord {
	out := make([]BondRecord, 0, len(bt.bonds))
	for k, e := range bt.bonds {
		out = append(out, BondRecord{A: k.a, B: k.b, Value: e.value, LastUpdated: e.lastUpdated})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

func (bt *BondTable) Restore(records []BondRecord) {
	bt.bonds = map[bondKey]*bondEntry{}
	for _, r := range records {
		bt.bonds[makeBondKey(r.A, r.B)] = &bondEntry{value: clamp1(r.Value), lastUpdated: r.LastUpdated}
	}
}

func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
