package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

const addrA = "0x00000000000000000000000000000000000000a1"

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)

	acc, err := d.CreateAccount(ctx, CreateAccountInput{Handle: "alice", Address: addrA, PasswordHash: "h"})
	require.NoError(t, err)
	assert.Regexp(t, `^acc_`, acc.ID)

	got, hash, err := d.GetAccountByHandle(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, addrA, got.Address)
	assert.Equal(t, "h", hash)

	byAddr, err := d.GetAccountByAddress(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, "alice", byAddr.Handle)

	_, _, err = d.GetAccountByHandle(ctx, "nobody")
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	_, err = d.CreateAccount(ctx, CreateAccountInput{Handle: "alice", Address: "0x00000000000000000000000000000000000000b0", PasswordHash: "h"})
	assert.Error(t, err, "duplicate handle")

	_, err = d.CreateAccount(ctx, CreateAccountInput{Handle: "short", Address: "0x1", PasswordHash: "h"})
	assert.Error(t, err, "malformed address")
}

func appendCommitted(t *testing.T, d *DB, e JournalEntry) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := d.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	seq, err := d.AppendJournal(ctx, tx, e)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return seq
}

func TestJournal_AppendAndList(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)

	s1 := appendCommitted(t, d, JournalEntry{Kind: KindMint, Caller: addrA, At: at, Payload: json.RawMessage(`{"amount":5}`)})
	s2 := appendCommitted(t, d, JournalEntry{Kind: KindWithdraw, Caller: addrA, At: at.Add(time.Second)})
	assert.Less(t, s1, s2)

	entries, err := d.ListJournal(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindMint, entries[0].Kind)
	assert.True(t, at.Equal(entries[0].At), "at = %v, want %v", entries[0].At, at)
	assert.JSONEq(t, `{"amount":5}`, string(entries[0].Payload))
	assert.JSONEq(t, `{}`, string(entries[1].Payload))

	head, err := d.JournalHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, s2, head)

	after, err := d.ListJournal(ctx, s1, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, s2, after[0].Seq)
}

func TestJournal_RollbackLeavesNothing(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)

	tx, err := d.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = d.AppendJournal(ctx, tx, JournalEntry{Kind: KindCreateClaim, Caller: addrA, At: time.Now()})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	head, err := d.JournalHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), head)
}

func TestJournal_RejectsUnknownKindAndEdits(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)

	tx, err := d.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = d.AppendJournal(ctx, tx, JournalEntry{Kind: "teleport", Caller: addrA, At: time.Now()})
	assert.Error(t, err)
	tx.Rollback()

	appendCommitted(t, d, JournalEntry{Kind: KindMint, Caller: addrA, At: time.Now()})
	_, err = d.ExecContext(ctx, `UPDATE journal SET caller = 'x'`)
	assert.Error(t, err)
	_, err = d.ExecContext(ctx, `DELETE FROM journal`)
	assert.Error(t, err)
}

func TestEachJournal_StopsOnError(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)
	for i := 0; i < 3; i++ {
		appendCommitted(t, d, JournalEntry{Kind: KindApprove, Caller: addrA, At: time.Now()})
	}

	var seen []int64
	err := d.EachJournal(ctx, func(e JournalEntry) error {
		seen = append(seen, e.Seq)
		if len(seen) == 2 {
			return errors.New("boom")
		}
		return nil
	})
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, seen, 2)
}

type recordingTracer struct {
	mu  sync.Mutex
	ops []string
}

func (r *recordingTracer) Record(_ context.Context, op, _ string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func TestTracerSeesStatements(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)
	tr := &recordingTracer{}
	d.SetTracer(tr)

	_, err := d.JournalHead(ctx)
	require.NoError(t, err)
	appendCommitted(t, d, JournalEntry{Kind: KindMint, Caller: addrA, At: time.Now()})
	assert.Equal(t, []string{"Query", "Exec"}, tr.ops)
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
