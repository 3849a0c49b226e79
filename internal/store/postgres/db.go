// Package postgres implements the store repositories against PostgreSQL,
// using pgx directly for the hot read/write paths (memories, index records)
// and GORM for the lower-traffic admin and reporting paths (patterns,
// profiles, entities, sessions).
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evalgo/memstore/internal/apperr"
)

// DB wraps both connection styles over the same underlying PostgreSQL
// database, so repositories can pick pgx for latency-sensitive queries and
// GORM for CRUD that is easier expressed declaratively.
type DB struct {
	pool *pgxpool.Pool
	gorm *gorm.DB
}

// Open establishes both the pgx pool and the GORM handle against connString.
func Open(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, apperr.Database("failed to create postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.Database("failed to ping postgres", err)
	}

	g, err := gorm.Open(postgres.Open(connString), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		pool.Close()
		return nil, apperr.Database("failed to open gorm connection", err)
	}

	return &DB{pool: pool, gorm: g}, nil
}

// Close releases both the pool and the GORM connection.
func (db *DB) Close() error {
	db.pool.Close()
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return nil
	}
	return sqlDB.Close()
}

// Pool exposes the pgx pool for repositories built directly on SQL.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Gorm exposes the GORM handle for repositories built on the ORM.
func (db *DB) Gorm() *gorm.DB {
	return db.gorm
}

// Migrate applies the schema needed by every repository in this package.
// Table creation lives in raw SQL (not AutoMigrate) because the memories
// and memory_index tables need the pgvector extension and a tsvector
// generated column GORM cannot express.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		schemaMemories,
		schemaMemoryIndex,
		schemaPatterns,
		schemaProfiles,
		schemaFacts,
		schemaPreferences,
		schemaEntities,
		schemaRelationships,
		schemaSessions,
		schemaTurns,
	}
	for _, stmt := range stmts {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return apperr.Database(fmt.Sprintf("migration failed: %s", stmt[:min(40, len(stmt))]), err)
		}
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
