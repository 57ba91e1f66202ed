// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package clocks

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chime-foundation/chime/lib/codec"
	"github.com/chime-foundation/chime/lib/ref"
	"github.com/chime-foundation/chime/lib/sqlitepool"
)

// SQLiteStore persists owner records in a single SQLite table: one row
// per owner, the collection encoded as deterministic CBOR. Per-owner
// replace is a single INSERT OR REPLACE, which gives the atomicity the
// Store contract asks for without any transaction bookkeeping.
type SQLiteStore struct {
	pool *sqlitepool.Pool
}

// Schema creates the clock table. Pass it as (or call it from) the
// pool's OnConnect callback.
func Schema(conn *sqlite.Conn) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS owners (
			owner  TEXT PRIMARY KEY,
			record BLOB NOT NULL
		)`
	if err := sqlitex.ExecuteTransient(conn, schema, nil); err != nil {
		return fmt.Errorf("clocks: creating owners table: %w", err)
	}
	return nil
}

// NewSQLiteStore wraps a pool whose connections have had Schema
// applied.
func NewSQLiteStore(pool *sqlitepool.Pool) *SQLiteStore {
	return &SQLiteStore{pool: pool}
}

// Load returns the owner's collection, empty if the owner has no row.
func (s *SQLiteStore) Load(ctx context.Context, owner ref.UserID) (*Collection, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var blob []byte
	err = sqlitex.Execute(conn, "SELECT record FROM owners WHERE owner = ?", &sqlitex.ExecOptions{
		Args: []any{owner.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			blob = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, blob)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clocks: loading record for %s: %w", owner, err)
	}
	if blob == nil {
		return NewCollection(), nil
	}

	var record ownerRecord
	if err := codec.Unmarshal(blob, &record); err != nil {
		return nil, fmt.Errorf("clocks: decoding record for %s: %w", owner, err)
	}
	return NewCollection(record.Clocks...), nil
}

// Save replaces the owner's record atomically. An empty collection
// deletes the row.
func (s *SQLiteStore) Save(ctx context.Context, owner ref.UserID, collection *Collection) error {
	if collection.Len() > MaxClocksPerOwner {
		return &CapacityError{Limit: MaxClocksPerOwner}
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if collection.Len() == 0 {
		err := sqlitex.Execute(conn, "DELETE FROM owners WHERE owner = ?", &sqlitex.ExecOptions{
			Args: []any{owner.String()},
		})
		if err != nil {
			return fmt.Errorf("clocks: deleting record for %s: %w", owner, err)
		}
		return nil
	}

	blob, err := codec.Marshal(ownerRecord{
		Version: recordVersion,
		Clocks:  collection.All(),
	})
	if err != nil {
		return fmt.Errorf("clocks: encoding record for %s: %w", owner, err)
	}
	err = sqlitex.Execute(conn, "INSERT OR REPLACE INTO owners (owner, record) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{owner.String(), blob},
	})
	if err != nil {
		return fmt.Errorf("clocks: saving record for %s: %w", owner, err)
	}
	return nil
}

// Owners returns every owner with a stored record, in primary-key
// order. Used by the inspect CLI.
func (s *SQLiteStore) Owners(ctx context.Context) ([]ref.UserID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var owners []ref.UserID
	err = sqlitex.Execute(conn, "SELECT owner FROM owners ORDER BY owner", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			owner, err := ref.ParseUserID(stmt.ColumnText(0))
			if err != nil {
				return fmt.Errorf("clocks: bad owner key %q: %w", stmt.ColumnText(0), err)
			}
			owners = append(owners, owner)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clocks: listing owners: %w", err)
	}
	return owners, nil
}
