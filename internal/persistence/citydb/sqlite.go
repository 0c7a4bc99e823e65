// Package citydb is the relational persistence surface: durable-first
// writes at each day checkpoint, queryable tables for dashboards and
// tooling. The authoritative resume path is the snapshot file; these
// tables mirror it row by row.
package citydb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"aicity.ai/internal/sim/city"
)

type Store struct {
	db  *sql.DB
	log *log.Logger

	// Snapshot files live next to the database; the meta table points at
	// the newest one.
	snapshotDir string
}

func Open(path, snapshotDir string, logger *log.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, log: logger, snapshotDir: snapshotDir}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func initPragmas(db *sql.DB) error {
	// WAL suits the append-heavy checkpoint workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL,
			tokens INTEGER NOT NULL,
			age_days INTEGER NOT NULL,
			mood REAL NOT NULL,
			comprehension INTEGER NOT NULL DEFAULT 0,
			assigned_teacher TEXT,
			cause_of_death TEXT,
			zone TEXT,
			updated_day INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY,
			day INTEGER NOT NULL,
			from_agent TEXT,
			to_agent TEXT,
			amount INTEGER NOT NULL CHECK (amount > 0),
			tax_withheld INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL,
			kind TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS vault (
			day INTEGER PRIMARY KEY,
			total_supply INTEGER NOT NULL,
			circulating INTEGER NOT NULL,
			vault_balance INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS event_log (
			id INTEGER PRIMARY KEY,
			day INTEGER NOT NULL,
			kind TEXT NOT NULL,
			actor TEXT,
			target TEXT,
			asset_id INTEGER,
			description TEXT NOT NULL,
			visibility TEXT NOT NULL CHECK (visibility IN ('PRIVATE','WITNESSED','RUMOR','REPORTED','PUBLIC')),
			witnesses TEXT,
			evidence_trail TEXT,
			case_id INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS police_cases (
			id INTEGER PRIMARY KEY,
			day_opened INTEGER NOT NULL,
			trigger_event INTEGER NOT NULL,
			complainant TEXT,
			suspects TEXT,
			evidence_refs TEXT,
			status TEXT NOT NULL,
			notes TEXT,
			day_closed INTEGER,
			closing_report TEXT,
			last_evidence INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS gangs (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			leader TEXT NOT NULL,
			members TEXT NOT NULL,
			day_formed INTEGER NOT NULL,
			status TEXT NOT NULL,
			total_crimes INTEGER NOT NULL,
			known_to_police INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS city_assets (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			builders TEXT,
			day_built INTEGER NOT NULL,
			status TEXT NOT NULL,
			day_destroyed INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS shared_projects (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			proposer TEXT NOT NULL,
			goal_builder_days REAL NOT NULL,
			contributors TEXT,
			progress REAL NOT NULL,
			status TEXT NOT NULL,
			day_started INTEGER NOT NULL,
			day_completed INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			day INTEGER NOT NULL,
			from_agent TEXT NOT NULL,
			to_agent TEXT NOT NULL,
			body TEXT NOT NULL,
			read_day INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS relationships (
			agent_a TEXT NOT NULL,
			agent_b TEXT NOT NULL,
			bond REAL NOT NULL,
			last_updated_day INTEGER NOT NULL,
			PRIMARY KEY (agent_a, agent_b)
		);`,
		`CREATE TABLE IF NOT EXISTS stories (
			id INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			day INTEGER NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			written_by TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS graduations (
			agent_id TEXT NOT NULL,
			day INTEGER NOT NULL,
			new_role TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS home_lots (
			agent_id TEXT PRIMARY KEY,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			day_claimed INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS world_tiles (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			tile_type TEXT NOT NULL,
			asset_id INTEGER,
			PRIMARY KEY (x, y)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_event_log_day ON event_log(day);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_day ON transactions(day);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

const commitRetries = 3

// CommitDay is the end-of-day checkpoint: the snapshot file plus every
// table, in one transaction. It retries transient failures with bounded
// backoff and does not return until the write is durable — the engine
// blocks the next day on it.
func (s *Store) CommitDay(chk city.DayCheckpoint) error {
	var err error
	for attempt := 0; attempt < commitRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
		}
		if err = s.commitOnce(chk); err == nil {
			return nil
		}
		s.log.Printf("citydb: commit day %d attempt %d failed: %v", chk.Day, attempt+1, err)
	}
	return fmt.Errorf("citydb: day %d commit exhausted retries: %w", chk.Day, err)
}

func (s *Store) commitOnce(chk city.DayCheckpoint) error {
	snapPath := filepath.Join(s.snapshotDir, fmt.Sprintf("day_%06d.snap", chk.Day))
	if err := writeSnapshotFile(snapPath, chk.Snapshot); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	snap := chk.Snapshot
	for _, a := range snap.Agents {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO agents
			(id, name, role, status, tokens, age_days, mood, comprehension, assigned_teacher, cause_of_death, zone, updated_day)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			a.ID, a.Name, a.Role, a.Status, snap.Ledger.Balances[a.ID], a.AgeDays, a.Mood,
			a.ComprehensionScore, a.AssignedTeacher, a.CauseOfDeath, a.Zone, chk.Day); err != nil {
			return err
		}
	}
	for _, t := range chk.NewTransactions {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO transactions
			(id, day, from_agent, to_agent, amount, tax_withheld, reason, kind)
			VALUES (?,?,?,?,?,?,?,?)`,
			t.ID, t.Day, t.From, t.To, t.Amount, t.TaxWithheld, t.Reason, string(t.Kind)); err != nil {
			return err
		}
	}
	vault := snap.Ledger
	if _, err := tx.Exec(`INSERT OR REPLACE INTO vault (day, total_supply, circulating, vault_balance) VALUES (?,?,?,?)`,
		chk.Day, vault.TotalSupply, vault.TotalSupply-vault.Vault, vault.Vault); err != nil {
		return err
	}
	for _, e := range snap.Events {
		witnesses, _ := json.Marshal(e.Witnesses)
		evidence, _ := json.Marshal(e.Evidence)
		if _, err := tx.Exec(`INSERT OR REPLACE INTO event_log
			(id, day, kind, actor, target, asset_id, description, visibility, witnesses, evidence_trail, case_id)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			e.ID, e.Day, e.Kind, e.Actor, e.Target, e.AssetID, e.Description, e.Visibility,
			string(witnesses), string(evidence), e.CaseID); err != nil {
			return err
		}
	}
	for _, pc := range snap.Cases {
		suspects, _ := json.Marshal(pc.Suspects)
		refs, _ := json.Marshal(pc.EvidenceRefs)
		notes, _ := json.Marshal(pc.Notes)
		if _, err := tx.Exec(`INSERT OR REPLACE INTO police_cases
			(id, day_opened, trigger_event, complainant, suspects, evidence_refs, status, notes, day_closed, closing_report, last_evidence)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			pc.ID, pc.DayOpened, pc.TriggerEvent, pc.Complainant, string(suspects), string(refs),
			pc.Status, string(notes), pc.DayClosed, pc.ClosingReport, pc.LastEvidence); err != nil {
			return err
		}
	}
	for _, g := range snap.Gangs {
		members, _ := json.Marshal(g.Members)
		if _, err := tx.Exec(`INSERT OR REPLACE INTO gangs
			(id, name, leader, members, day_formed, status, total_crimes, known_to_police)
			VALUES (?,?,?,?,?,?,?,?)`,
			g.ID, g.Name, g.Leader, string(members), g.DayFormed, g.Status, g.TotalCrimes, boolInt(g.KnownToPolice)); err != nil {
			return err
		}
	}
	for _, a := range snap.Assets {
		builders, _ := json.Marshal(a.Builders)
		if _, err := tx.Exec(`INSERT OR REPLACE INTO city_assets
			(id, name, type, builders, day_built, status, day_destroyed)
			VALUES (?,?,?,?,?,?,?)`,
			a.ID, a.Name, a.Type, string(builders), a.DayBuilt, a.Status, a.DayDestroyed); err != nil {
			return err
		}
	}
	for _, p := range snap.Projects {
		contrib, _ := json.Marshal(p.Contributors)
		if _, err := tx.Exec(`INSERT OR REPLACE INTO shared_projects
			(id, name, type, proposer, goal_builder_days, contributors, progress, status, day_started, day_completed)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			p.ID, p.Name, p.Type, p.Proposer, p.GoalBuilderDays, string(contrib), p.Progress,
			p.Status, p.DayStarted, p.DayCompleted); err != nil {
			return err
		}
	}
	for _, m := range snap.Messages {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO messages (id, day, from_agent, to_agent, body, read_day)
			VALUES (?,?,?,?,?,?)`,
			m.ID, m.Day, m.From, m.To, m.Body, m.ReadDay); err != nil {
			return err
		}
	}
	for _, b := range snap.Bonds {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO relationships (agent_a, agent_b, bond, last_updated_day)
			VALUES (?,?,?,?)`, b.A, b.B, b.Value, b.LastUpdated); err != nil {
			return err
		}
	}
	for _, st := range snap.Stories {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO stories (id, kind, day, title, body, written_by)
			VALUES (?,?,?,?,?,?)`, st.ID, st.Kind, st.Day, st.Title, st.Body, st.WrittenBy); err != nil {
			return err
		}
	}
	for _, h := range snap.HomeLots {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO home_lots (agent_id, x, y, day_claimed)
			VALUES (?,?,?,?)`, h.AgentID, h.Tile[0], h.Tile[1], h.DayClaimed); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM world_tiles`); err != nil {
		return err
	}
	for _, t := range snap.Tiles {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO world_tiles (x, y, tile_type, asset_id)
			VALUES (?,?,?,?)`, t.Pos[0], t.Pos[1], t.Type, t.AssetID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('day', ?)`, fmt.Sprint(chk.Day)); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('snapshot_path', ?)`, snapPath); err != nil {
		return err
	}
	return tx.Commit()
}

// LatestSnapshotPath returns the newest committed snapshot file and its
// day, or ("", 0) on a fresh store.
func (s *Store) LatestSnapshotPath() (string, int, error) {
	var path string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'snapshot_path'`).Scan(&path); err != nil {
		if err == sql.ErrNoRows {
			return "", 0, nil
		}
		return "", 0, err
	}
	var dayStr string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'day'`).Scan(&dayStr); err != nil {
		return "", 0, err
	}
	var day int
	_, _ = fmt.Sscanf(dayStr, "%d", &day)
	return path, day, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
