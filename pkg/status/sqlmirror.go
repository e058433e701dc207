// Copyright 2025 MassGen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package status

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

// SQLMirror is an optional, append-only history of every status.json
// write for a log root, backed by a single pure-Go SQLite file. The
// Aggregator's status.json remains the authoritative current document;
// the mirror exists so an operator can ask "what did this turn's
// status look like over time" without replaying the JSON file's
// overwrites, which the atomic-rename write strategy destroys by
// design.
//
// Each call opens and closes its own connection, the same
// open-per-call convention the example memory backends use rather
// than holding a long-lived *sql.DB guarded by its own mutex.
type SQLMirror struct {
	dbPath string
}

// NewSQLMirror returns a mirror backed by the SQLite file at dbPath,
// creating its schema if absent.
func NewSQLMirror(ctx context.Context, dbPath string) (*SQLMirror, error) {
	m := &SQLMirror{dbPath: dbPath}
	if err := m.init(ctx); err != nil {
		return nil, fmt.Errorf("status: sqlmirror init: %w", err)
	}
	return m, nil
}

func (m *SQLMirror) open() (*sql.DB, error) {
	return sql.Open("sqlite", m.dbPath)
}

func (m *SQLMirror) init(ctx context.Context) error {
	db, err := m.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS status_snapshots (
		turn_id         TEXT NOT NULL,
		attempt_number  INTEGER NOT NULL,
		phase           TEXT NOT NULL,
		completion_pct  REAL NOT NULL,
		cost_usd        REAL NOT NULL,
		tokens_in       INTEGER NOT NULL,
		tokens_out      INTEGER NOT NULL,
		note            TEXT,
		recorded_at     INTEGER NOT NULL
	)`)
	return err
}

// RecordSnapshot appends one point-in-time copy of doc to the mirror.
// Errors are the caller's to decide on; Aggregator treats them as
// best-effort and never fails a status write because of them.
func (m *SQLMirror) RecordSnapshot(ctx context.Context, doc coordination.TurnStatus) error {
	db, err := m.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx,
		`INSERT INTO status_snapshots (turn_id, attempt_number, phase, completion_pct, cost_usd, tokens_in, tokens_out, note, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.TurnID, doc.AttemptNumber, string(doc.Phase), doc.CompletionPercentage,
		doc.CostUSD, doc.TokensIn, doc.TokensOut, doc.Note, time.Now().UnixNano())
	return err
}

// Snapshot is one row of mirrored history.
type Snapshot struct {
	AttemptNumber int
	Phase         coordination.Phase
	CompletionPct float64
	CostUSD       float64
	TokensIn      int64
	TokensOut     int64
	Note          string
	RecordedAt    time.Time
}

// History returns every mirrored snapshot for turnID, oldest first.
func (m *SQLMirror) History(ctx context.Context, turnID string) ([]Snapshot, error) {
	db, err := m.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT attempt_number, phase, completion_pct, cost_usd, tokens_in, tokens_out, note, recorded_at
		 FROM status_snapshots WHERE turn_id = ? ORDER BY recorded_at ASC`, turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var phase, note string
		var recordedAtNanos int64
		if err := rows.Scan(&s.AttemptNumber, &phase, &s.CompletionPct, &s.CostUSD, &s.TokensIn, &s.TokensOut, &note, &recordedAtNanos); err != nil {
			return nil, err
		}
		s.Phase = coordination.Phase(phase)
		s.Note = note
		s.RecordedAt = time.Unix(0, recordedAtNanos)
		out = append(out, s)
	}
	return out, rows.Err()
}
