package db

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id              TEXT PRIMARY KEY,
    handle          TEXT UNIQUE NOT NULL,
    address         TEXT UNIQUE NOT NULL CHECK(length(address) = 42),
    password_hash   TEXT NOT NULL,
    created_at      INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

-- Append-only operation journal. Replaying it in seq order rebuilds the engine.
CREATE TABLE IF NOT EXISTS journal (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    kind            TEXT NOT NULL CHECK(kind IN (
                        'mint','approve','grant_role','revoke_role',
                        'create_claim','update_claim','create_dispute',
                        'create_resolve','submit_vote','update_balance','withdraw',
                        'update_fee_basis','update_duration_bounds','update_owner')),
    caller          TEXT NOT NULL,
    at              INTEGER NOT NULL,
    payload         TEXT NOT NULL DEFAULT '{}',
    created_at      INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_journal_kind ON journal(kind);
CREATE INDEX IF NOT EXISTS idx_journal_caller ON journal(caller);

CREATE TRIGGER IF NOT EXISTS journal_no_update BEFORE UPDATE ON journal BEGIN
    SELECT RAISE(ABORT, 'journal is append-only');
END;
CREATE TRIGGER IF NOT EXISTS journal_no_delete BEFORE DELETE ON journal BEGIN
    SELECT RAISE(ABORT, 'journal is append-only');
END;
`
