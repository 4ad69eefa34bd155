// CLAUDE:SUMMARY Operation journal: append inside the caller's transaction, stream back in seq order for replay
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Journal kinds. The schema CHECK constraint mirrors this list.
const (
	KindMint                 = "mint"
	KindApprove              = "approve"
	KindGrantRole            = "grant_role"
	KindRevokeRole           = "revoke_role"
	KindCreateClaim          = "create_claim"
	KindUpdateClaim          = "update_claim"
	KindCreateDispute        = "create_dispute"
	KindCreateResolve        = "create_resolve"
	KindSubmitVote           = "submit_vote"
	KindUpdateBalance        = "update_balance"
	KindWithdraw             = "withdraw"
	KindUpdateFeeBasis       = "update_fee_basis"
	KindUpdateDurationBounds = "update_duration_bounds"
	KindUpdateOwner          = "update_owner"
)

// JournalEntry is one admitted operation.
type JournalEntry struct {
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Caller    string          `json:"caller"`
	At        time.Time       `json:"at"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at"`
}

// AppendJournal inserts e within tx and returns its sequence number.
func (db *DB) AppendJournal(ctx context.Context, tx *sql.Tx, e JournalEntry) (int64, error) {
	const q = `INSERT INTO journal (kind, caller, at, payload, created_at) VALUES (?, ?, ?, ?, ?)`
	payload := string(e.Payload)
	if payload == "" {
		payload = "{}"
	}
	start := time.Now()
	res, err := tx.ExecContext(ctx, q, e.Kind, e.Caller, e.At.UnixNano(), payload, time.Now().Unix())
	db.trace(ctx, "Exec", q, start, err)
	if err != nil {
		return 0, fmt.Errorf("appending %s to journal: %w", e.Kind, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal seq: %w", err)
	}
	return seq, nil
}

// ListJournal returns up to limit entries with seq greater than after.
func (db *DB) ListJournal(ctx context.Context, after int64, limit int) ([]JournalEntry, error) {
	const q = `SELECT seq, kind, caller, at, payload, created_at FROM journal WHERE seq > ? ORDER BY seq LIMIT ?`
	start := time.Now()
	rows, err := db.QueryContext(ctx, q, after, limit)
	db.trace(ctx, "Query", q, start, err)
	if err != nil {
		return nil, fmt.Errorf("listing journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var at int64
		var payload string
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Caller, &at, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning journal: %w", err)
		}
		e.At = time.Unix(0, at).UTC()
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EachJournal streams the whole journal in seq order, a page at a time.
// It stops at the first error fn returns.
func (db *DB) EachJournal(ctx context.Context, fn func(JournalEntry) error) error {
	const page = 500
	var after int64
	for {
		batch, err := db.ListJournal(ctx, after, page)
		if err != nil {
			return err
		}
		for _, e := range batch {
			if err := fn(e); err != nil {
				return fmt.Errorf("journal seq %d (%s): %w", e.Seq, e.Kind, err)
			}
			after = e.Seq
		}
		if len(batch) < page {
			return nil
		}
	}
}

// JournalHead returns the highest seq, or 0 for an empty journal.
func (db *DB) JournalHead(ctx context.Context) (int64, error) {
	const q = `SELECT COALESCE(MAX(seq), 0) FROM journal`
	var seq int64
	start := time.Now()
	err := db.QueryRowContext(ctx, q).Scan(&seq)
	db.trace(ctx, "Query", q, start, err)
	if err != nil {
		return 0, fmt.Errorf("journal head: %w", err)
	}
	return seq, nil
}
