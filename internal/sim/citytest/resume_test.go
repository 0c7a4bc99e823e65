package citytest

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"aicity.ai/internal/persistence/citydb"
	"aicity.ai/internal/persistence/snapshot"
	"aicity.ai/internal/sim/city"
)

// Persistence round-trip: checkpoint at the end of day D, reload, continue
// to day D+1; the state matches a continuous run exactly.
func TestResume_RoundTripMatchesContinuousRun(t *testing.T) {
	cfg := city.CityConfig{Seed: 2024, StartingAgents: 10}
	logger := log.New(os.Stderr, "[resume] ", 0)

	continuous := city.New(cfg, logger)
	if err := continuous.BigBang(nil); err != nil {
		t.Fatalf("big bang: %v", err)
	}
	ctx := context.Background()
	for day := 1; day <= 5; day++ {
		if err := continuous.SimulateDay(ctx); err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
	}
	snap := continuous.ExportSnapshot()

	resumed, err := city.Restore(cfg, snap, logger)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if resumed.Day() != 5 {
		t.Fatalf("resumed day = %d, want 5", resumed.Day())
	}
	if got, want := resumed.StateDigest(), continuous.StateDigest(); got != want {
		t.Fatalf("digests differ immediately after restore:\n%s\n%s", got, want)
	}

	if err := continuous.SimulateDay(ctx); err != nil {
		t.Fatalf("continuous day 6: %v", err)
	}
	if err := resumed.SimulateDay(ctx); err != nil {
		t.Fatalf("resumed day 6: %v", err)
	}
	if got, want := resumed.StateDigest(), continuous.StateDigest(); got != want {
		t.Fatalf("day 6 digests differ after resume:\n%s\n%s", got, want)
	}
}

// Snapshot file codec round-trip.
func TestSnapshotFile_RoundTrip(t *testing.T) {
	cfg := city.CityConfig{Seed: 5, StartingAgents: 8}
	logger := log.New(os.Stderr, "[snap] ", 0)
	c := city.New(cfg, logger)
	if err := c.BigBang(nil); err != nil {
		t.Fatalf("big bang: %v", err)
	}
	ctx := context.Background()
	for day := 1; day <= 3; day++ {
		if err := c.SimulateDay(ctx); err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
	}

	path := filepath.Join(t.TempDir(), "day_000003.snap")
	if err := snapshot.Write(path, c.ExportSnapshot()); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := snapshot.Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Day != 3 || got.Header.CityID != c.Config().ID {
		t.Fatalf("header = %+v", got.Header)
	}
	restored, err := city.Restore(cfg, got, logger)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.StateDigest() != c.StateDigest() {
		t.Fatal("file round-trip changed the state digest")
	}
}

// The relational store commits a day and hands back the snapshot path for
// resume.
func TestCityDB_CommitAndResume(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(os.Stderr, "[db] ", 0)
	store, err := citydb.Open(filepath.Join(dir, "city.db"), filepath.Join(dir, "snapshots"), logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	cfg := city.CityConfig{Seed: 11, StartingAgents: 8}
	c := city.New(cfg, logger, city.WithCheckpoint(store))
	if err := c.BigBang(nil); err != nil {
		t.Fatalf("big bang: %v", err)
	}
	ctx := context.Background()
	for day := 1; day <= 4; day++ {
		if err := c.SimulateDay(ctx); err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
	}

	path, day, err := store.LatestSnapshotPath()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if day != 4 || path == "" {
		t.Fatalf("latest = (%q, %d), want day 4", path, day)
	}
	snap, err := citydb.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	resumed, err := city.Restore(cfg, snap, logger)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if resumed.StateDigest() != c.StateDigest() {
		t.Fatal("db-committed snapshot does not match live state")
	}
}

func TestKeywordIntent(t *testing.T) {
	cases := []struct {
		body  string
		other string
		want  bool
	}{
		{"Let's meet at the market, Marla.", "Marla", true},
		{"meet me behind the archive", "Finn", false},
		{"Come find me when the patrols thin out.", "Finn", true},
		{"The harvest was thin this year.", "Marla", false},
		{"MEET ME at the harbor, finn", "Finn", true},
	}
	for _, tc := range cases {
		if got := city.KeywordIntent(tc.body, tc.other); got != tc.want {
			t.Errorf("KeywordIntent(%q, %q) = %v, want %v", tc.body, tc.other, got, tc.want)
		}
	}
}
