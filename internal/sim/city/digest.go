package city

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// StateDigest is a deterministic hash of the full simulation state at the
// current day boundary. Two runs with the same seed and the same reasoner
// outputs produce identical digests; the determinism tests compare them
// day by day.
func (c *City) StateDigest() string {
	s := c.ExportSnapshot()
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DayCheckpoint is the end-of-day unit of work handed to the persistence
// adapter: the full state plus the day's transaction delta.
type DayCheckpoint struct {
	Day             int
	Snapshot        Snapshot
	NewTransactions []Transaction
}
