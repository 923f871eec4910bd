// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// package db is the data access layer for mousectl. It records deploy
// history and the pinned SSH host key behind a small Store interface, backed
// by bun over SQLite (default), PostgreSQL or MySQL, so a team can point the
// history at a shared server while a lone developer keeps a local file.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	// SQL drivers required at runtime.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrNotInitialized is returned by package helpers before InitDB has run.
var ErrNotInitialized = errors.New("db: store not initialized")

// DeployRecord is one row of deploy history.
type DeployRecord struct {
	bun.BaseModel `bun:"table:deploy_history,alias:dh"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Timestamp  time.Time `bun:"timestamp,notnull"`
	Scenario   string    `bun:"scenario,notnull"`
	Host       string    `bun:"host,notnull"`
	Branch     string    `bun:"branch,notnull"`
	CommitHash string    `bun:"commit_hash"`
	Result     string    `bun:"result,notnull"`
}

// HostKeyRecord pins the SSH public key presented by a host.
type HostKeyRecord struct {
	bun.BaseModel `bun:"table:known_host_keys,alias:khk"`

	Host      string `bun:"host,pk"`
	PublicKey string `bun:"public_key,notnull"`
}

// Store is the persistence interface the rest of the application sees.
type Store interface {
	AddDeploy(rec *DeployRecord) error
	RecentDeploys(limit int) ([]DeployRecord, error)
	LatestSuccessfulDeploy() (*DeployRecord, error)
	KnownHostKey(host string) (string, error)
	SetKnownHostKey(host, publicKey string) error
	Close() error
}

// bunStore implements Store on top of a bun.DB.
type bunStore struct {
	sql *sql.DB
	bun *bun.DB
}

// package-level store set by InitDB, used by the package helpers.
var store Store

// sqlOpenFunc allows tests to override database opening behavior.
var sqlOpenFunc = sql.Open

// New opens a store for the given database type and DSN and creates the
// schema if it does not exist yet.
func New(dbType, dsn string) (Store, error) {
	var sqldb *sql.DB
	var bdb *bun.DB
	var err error

	switch dbType {
	case "sqlite", "":
		sqldb, err = sqlOpenFunc("sqlite", dsn)
		if err == nil {
			bdb = bun.NewDB(sqldb, sqlitedialect.New())
		}
	case "postgres":
		sqldb, err = sqlOpenFunc("pgx", dsn)
		if err == nil {
			bdb = bun.NewDB(sqldb, pgdialect.New())
		}
	case "mysql":
		sqldb, err = sqlOpenFunc("mysql", dsn)
		if err == nil {
			bdb = bun.NewDB(sqldb, mysqldialect.New())
		}
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dbType, err)
	}

	s := &bunStore{sql: sqldb, bun: bdb}
	if err := s.migrate(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return s, nil
}

// InitDB opens the store and installs it as the package-level default.
func InitDB(dbType, dsn string) error {
	s, err := New(dbType, dsn)
	if err != nil {
		return err
	}
	store = s
	return nil
}

// IsInitialized reports whether the package-level store has been set.
func IsInitialized() bool {
	return store != nil
}

// Default returns the package-level store, or nil before InitDB.
func Default() Store {
	return store
}

// migrate creates the tables used by mousectl when they are missing.
func (s *bunStore) migrate() error {
	ctx := context.Background()
	models := []any{
		(*DeployRecord)(nil),
		(*HostKeyRecord)(nil),
	}
	for _, m := range models {
		if _, err := s.bun.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// AddDeploy appends one deploy history row.
func (s *bunStore) AddDeploy(rec *DeployRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.bun.NewInsert().Model(rec).Exec(context.Background())
	if err != nil {
		return fmt.Errorf("failed to record deploy: %w", err)
	}
	dbLogf("db: recorded %s deploy of %s to %s (%s)", rec.Scenario, rec.Branch, rec.Host, rec.Result)
	return nil
}

// RecentDeploys returns up to limit history rows, newest first.
func (s *bunStore) RecentDeploys(limit int) ([]DeployRecord, error) {
	var recs []DeployRecord
	err := s.bun.NewSelect().
		Model(&recs).
		Order("timestamp DESC").
		Limit(limit).
		Scan(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to query deploy history: %w", err)
	}
	return recs, nil
}

// LatestSuccessfulDeploy returns the newest history row with a success
// result, or nil when there is none.
func (s *bunStore) LatestSuccessfulDeploy() (*DeployRecord, error) {
	rec := new(DeployRecord)
	err := s.bun.NewSelect().
		Model(rec).
		Where("result = ?", "success").
		Order("timestamp DESC").
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deploy history: %w", err)
	}
	return rec, nil
}

// KnownHostKey returns the pinned public key for host, or "" when the host
// has not been trusted yet.
func (s *bunStore) KnownHostKey(host string) (string, error) {
	rec := new(HostKeyRecord)
	err := s.bun.NewSelect().
		Model(rec).
		Where("host = ?", host).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query known host keys: %w", err)
	}
	return rec.PublicKey, nil
}

// SetKnownHostKey pins (or replaces) the public key for host. Delete plus
// insert keeps the statement portable across all three dialects.
func (s *bunStore) SetKnownHostKey(host, publicKey string) error {
	ctx := context.Background()
	if _, err := s.bun.NewDelete().
		Model((*HostKeyRecord)(nil)).
		Where("host = ?", host).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to replace host key: %w", err)
	}
	rec := &HostKeyRecord{Host: host, PublicKey: publicKey}
	if _, err := s.bun.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("failed to pin host key: %w", err)
	}
	return nil
}

// Close releases the underlying database handles.
func (s *bunStore) Close() error {
	return s.bun.Close()
}
