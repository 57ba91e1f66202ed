// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

// chime-inspect is an operator tool for looking inside a Chime clock
// database while the bot is stopped (or against a copy). It lists
// owners, shows one owner's clocks as a table, and exports the whole
// database as a compressed snapshot for backups and migrations.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/pflag"

	"github.com/chime-foundation/chime/lib/clocks"
	"github.com/chime-foundation/chime/lib/codec"
	"github.com/chime-foundation/chime/lib/ref"
	"github.com/chime-foundation/chime/lib/sqlitepool"
	"github.com/chime-foundation/chime/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var databasePath string
	var owner string
	var exportPath string

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("chime-inspect")
		return nil
	}

	flagSet := pflag.NewFlagSet("chime-inspect", pflag.ContinueOnError)
	flagSet.StringVar(&databasePath, "database", "/var/lib/chime/clocks.db", "path to the clock database")
	flagSet.StringVar(&owner, "owner", "", "show this owner's clocks (Matrix user ID)")
	flagSet.StringVar(&exportPath, "export", "", "write a compressed snapshot of all owners to this path")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	if _, err := os.Stat(databasePath); err != nil {
		return fmt.Errorf("database %s: %w", databasePath, err)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      databasePath,
		PoolSize:  1,
		OnConnect: clocks.Schema,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	store := clocks.NewSQLiteStore(pool)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if exportPath != "" {
		return exportSnapshot(ctx, store, exportPath)
	}
	if owner != "" {
		ownerID, err := ref.ParseUserID(owner)
		if err != nil {
			return fmt.Errorf("owner: %w", err)
		}
		return showOwner(ctx, store, ownerID)
	}
	return listOwners(ctx, store)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	fullStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

func listOwners(ctx context.Context, store *clocks.SQLiteStore) error {
	owners, err := store.Owners(ctx)
	if err != nil {
		return err
	}
	if len(owners) == 0 {
		fmt.Println(dimStyle.Render("no owners"))
		return nil
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-40s %s", "OWNER", "CLOCKS")))
	for _, ownerID := range owners {
		collection, err := store.Load(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("loading %s: %w", ownerID, err)
		}
		fmt.Printf("%-40s %d\n", ownerID, collection.Len())
	}
	return nil
}

func showOwner(ctx context.Context, store *clocks.SQLiteStore, ownerID ref.UserID) error {
	collection, err := store.Load(ctx, ownerID)
	if err != nil {
		return err
	}
	all := collection.All()
	if len(all) == 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("%s has no clocks", ownerID)))
		return nil
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-20s %-30s %s", "TAG", "NAME", "POSITION")))
	for _, clk := range all {
		position := fmt.Sprintf("%d/%d", clk.Position, clk.Size)
		if clk.Full() {
			position = fullStyle.Render(position + " (full)")
		}
		fmt.Printf("%-20s %-30s %s\n", clk.Tag, clk.Name, position)
	}
	return nil
}

// snapshot is the export file payload: every owner's clocks, CBOR
// encoded and zstd compressed. The version gates future layout
// changes.
type snapshot struct {
	Version int                       `cbor:"version"`
	TakenAt time.Time                 `cbor:"taken_at"`
	Owners  map[string][]clocks.Clock `cbor:"owners"`
}

const snapshotVersion = 1

func exportSnapshot(ctx context.Context, store *clocks.SQLiteStore, path string) error {
	owners, err := store.Owners(ctx)
	if err != nil {
		return err
	}

	snap := snapshot{
		Version: snapshotVersion,
		TakenAt: time.Now().UTC(),
		Owners:  make(map[string][]clocks.Clock, len(owners)),
	}
	total := 0
	for _, ownerID := range owners {
		collection, err := store.Load(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("loading %s: %w", ownerID, err)
		}
		all := collection.All()
		snap.Owners[ownerID.String()] = all
		total += len(all)
	}

	encoded, err := codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd encoder: %w", err)
	}
	compressed := encoder.EncodeAll(encoded, nil)
	encoder.Close()

	if err := os.WriteFile(path, compressed, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	fmt.Printf("exported %d clocks from %d owners to %s (%d bytes)\n",
		total, len(owners), path, len(compressed))
	return nil
}
