package db

import (
	"context"
	"fmt"
	"time"
)

type Account struct {
	ID        string `json:"id"`
	Handle    string `json:"handle"`
	Address   string `json:"address"`
	CreatedAt int64  `json:"created_at"`
}

type CreateAccountInput struct {
	Handle       string
	Address      string
	PasswordHash string
}

func (db *DB) CreateAccount(ctx context.Context, input CreateAccountInput) (*Account, error) {
	const q = `INSERT INTO accounts (id, handle, address, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`
	id := "acc_" + NewID()
	now := time.Now().Unix()
	start := time.Now()
	_, err := db.ExecContext(ctx, q, id, input.Handle, input.Address, input.PasswordHash, now)
	db.trace(ctx, "Exec", q, start, err)
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	return &Account{ID: id, Handle: input.Handle, Address: input.Address, CreatedAt: now}, nil
}

// GetAccountByHandle returns the account and its password hash. A missing handle yields sql.ErrNoRows.
func (db *DB) GetAccountByHandle(ctx context.Context, handle string) (*Account, string, error) {
	const q = `SELECT id, handle, address, password_hash, created_at FROM accounts WHERE handle = ?`
	a := &Account{}
	var passwordHash string
	start := time.Now()
	err := db.QueryRowContext(ctx, q, handle).Scan(&a.ID, &a.Handle, &a.Address, &passwordHash, &a.CreatedAt)
	db.trace(ctx, "Query", q, start, err)
	if err != nil {
		return nil, "", err
	}
	return a, passwordHash, nil
}

func (db *DB) GetAccountByAddress(ctx context.Context, address string) (*Account, error) {
	const q = `SELECT id, handle, address, created_at FROM accounts WHERE address = ?`
	a := &Account{}
	start := time.Now()
	err := db.QueryRowContext(ctx, q, address).Scan(&a.ID, &a.Handle, &a.Address, &a.CreatedAt)
	db.trace(ctx, "Query", q, start, err)
	if err != nil {
		return nil, err
	}
	return a, nil
}
