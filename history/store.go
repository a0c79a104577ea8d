// Package history persists the agent's episodic action record: one episode
// per cycle, opened by the proposal and closed by its result. The store is
// append-only; episodes are replayed into later prompts so the model can see
// what it already did.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/calref/forgeloop/agent"
)

// Episode is one completed (or pending) proposal/result pair.
type Episode struct {
	ID        string               `json:"id"`
	Cycle     int                  `json:"cycle"`
	Proposal  agent.ActionProposal `json:"proposal"`
	Result    *agent.ActionResult  `json:"result,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	ClosedAt  *time.Time           `json:"closed_at,omitempty"`
}

// Store manages episode persistence.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the episode database at dbPath. The schema is
// created automatically on first use. Use ":memory:" for an ephemeral store.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate episodes: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			cycle INTEGER NOT NULL,
			proposal_json TEXT NOT NULL,
			result_json TEXT,
			created_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_episodes_cycle ON episodes(cycle);
	`)
	return err
}

// RegisterProposal opens a new pending episode and returns it.
func (s *Store) RegisterProposal(cycle int, proposal *agent.ActionProposal) (*Episode, error) {
	e := &Episode{
		ID:        uuid.New().String(),
		Cycle:     cycle,
		Proposal:  *proposal,
		CreatedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(e.Proposal)
	if err != nil {
		return nil, fmt.Errorf("encode proposal: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO episodes (id, cycle, proposal_json, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Cycle, string(body), e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert episode: %w", err)
	}
	return e, nil
}

// RegisterResult closes the most recent pending episode with result.
func (s *Store) RegisterResult(result *agent.ActionResult) error {
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM episodes WHERE closed_at IS NULL ORDER BY created_at DESC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("no pending episode to close")
	}
	if err != nil {
		return fmt.Errorf("find pending episode: %w", err)
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE episodes SET result_json = ?, closed_at = ? WHERE id = ?`,
		string(body), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("close episode: %w", err)
	}
	return nil
}

// Episodes returns all episodes in chronological order.
func (s *Store) Episodes() ([]*Episode, error) {
	rows, err := s.db.Query(
		`SELECT id, cycle, proposal_json, result_json, created_at, closed_at
		 FROM episodes ORDER BY created_at, cycle`,
	)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		var (
			e          Episode
			proposal   string
			resultBody sql.NullString
			closedAt   sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Cycle, &proposal, &resultBody, &e.CreatedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if err := json.Unmarshal([]byte(proposal), &e.Proposal); err != nil {
			return nil, fmt.Errorf("decode proposal %s: %w", e.ID, err)
		}
		if resultBody.Valid {
			e.Result = &agent.ActionResult{}
			if err := json.Unmarshal([]byte(resultBody.String), e.Result); err != nil {
				return nil, fmt.Errorf("decode result %s: %w", e.ID, err)
			}
		}
		if closedAt.Valid {
			t := closedAt.Time
			e.ClosedAt = &t
		}
		episodes = append(episodes, &e)
	}
	return episodes, rows.Err()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
