package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/saymasiddiquie/dscpl/internal/models"
	"github.com/saymasiddiquie/dscpl/internal/types"
)

const metaTable = "dscpl_index_meta"

var _ types.IndexStore = (*PgStore)(nil)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	BatchSize  int
	Logger     *slog.Logger
}

// PgStore keeps the index in a pgvector table. A rebuild fills a staging
// table and swaps it in with a rename inside one transaction.
type PgStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*PgStore, error) {
	if config.TableName == "" {
		config.TableName = "scripture_chunks"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 500
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PgStore{
		config: config,
		pool:   pool,
	}, nil
}

func (s *PgStore) Location() string {
	return "pgvector:" + s.config.TableName
}

func (s *PgStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PgStore) Save(ctx context.Context, snapshot models.IndexSnapshot) (types.VectorIndex, error) {
	manifest := snapshot.Manifest
	manifest.Schema = models.IndexSchema
	manifest.Count = len(snapshot.Entries)
	if manifest.Dimension < 1 {
		return nil, errors.New("index dimension must be positive")
	}

	live := pgx.Identifier{s.config.TableName}.Sanitize()
	stagingName := fmt.Sprintf("%s_build_%s", s.config.TableName, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	staging := pgx.Identifier{stagingName}.Sanitize()

	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE %s (
			id TEXT PRIMARY KEY,
			unit_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d)
		)`, staging, manifest.Dimension)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("failed to create staging table: %w", err)
	}

	swapped := false
	defer func() {
		if !swapped {
			dropCtx := context.WithoutCancel(ctx)
			if _, err := s.pool.Exec(dropCtx, "DROP TABLE IF EXISTS "+staging); err != nil {
				s.config.Logger.Warn("failed to drop staging table", "table", stagingName, "error", err)
			}
		}
	}()

	insert := fmt.Sprintf(`
		INSERT INTO %s (id, unit_id, seq, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`, staging)

	for start := 0; start < len(snapshot.Entries); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(snapshot.Entries))

		batch := &pgx.Batch{}
		for _, e := range snapshot.Entries[start:end] {
			meta, err := json.Marshal(e.Chunk.Unit)
			if err != nil {
				return nil, fmt.Errorf("encode metadata for %s: %w", e.Chunk.ID, err)
			}
			batch.Queue(insert,
				e.Chunk.ID,
				e.Chunk.UnitID,
				e.Chunk.Seq,
				sanitizeUTF8(e.Chunk.Text),
				string(meta),
				pgvector.NewVector(e.Embedding),
			)
		}
		if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
			return nil, fmt.Errorf("failed to insert chunks: %w", err)
		}
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX %s
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		pgx.Identifier{stagingName + "_embedding_idx"}.Sanitize(), staging)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			table_name TEXT PRIMARY KEY,
			schema TEXT NOT NULL,
			build_id TEXT NOT NULL,
			model TEXT NOT NULL,
			dimension INTEGER NOT NULL,
			count INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, metaTable),
		"DROP TABLE IF EXISTS " + live,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", staging, live),
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to swap index table: %w", err)
		}
	}

	upsert := fmt.Sprintf(`
		INSERT INTO %s (table_name, schema, build_id, model, dimension, count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (table_name) DO UPDATE SET
			schema = EXCLUDED.schema,
			build_id = EXCLUDED.build_id,
			model = EXCLUDED.model,
			dimension = EXCLUDED.dimension,
			count = EXCLUDED.count,
			created_at = EXCLUDED.created_at`, metaTable)
	if _, err := tx.Exec(ctx, upsert,
		s.config.TableName,
		manifest.Schema,
		manifest.BuildID,
		manifest.Model,
		manifest.Dimension,
		manifest.Count,
		manifest.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to record index metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	swapped = true

	s.config.Logger.Info("saved index", "table", s.config.TableName, "entries", manifest.Count, "build_id", manifest.BuildID)
	return &PgIndex{pool: s.pool, table: live, manifest: manifest}, nil
}

func (s *PgStore) Load(ctx context.Context) (types.VectorIndex, error) {
	fail := func(reason string, err error) error {
		return &models.IndexLoadError{Path: s.Location(), Reason: reason, Err: err}
	}

	query := fmt.Sprintf(`
		SELECT schema, build_id, model, dimension, count, created_at
		FROM %s
		WHERE table_name = $1`, metaTable)

	var m models.IndexManifest
	err := s.pool.QueryRow(ctx, query, s.config.TableName).Scan(
		&m.Schema,
		&m.BuildID,
		&m.Model,
		&m.Dimension,
		&m.Count,
		&m.CreatedAt,
	)
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fail(models.IndexMissing, nil)
	case errors.As(err, &pgErr) && pgErr.Code == "42P01": // undefined_table
		return nil, fail(models.IndexMissing, nil)
	case err != nil:
		return nil, fail(models.IndexCorrupt, err)
	}

	if m.Schema != models.IndexSchema {
		return nil, fail(models.IndexSchemaMismatch, fmt.Errorf("found schema %q, want %q", m.Schema, models.IndexSchema))
	}

	return &PgIndex{
		pool:     s.pool,
		table:    pgx.Identifier{s.config.TableName}.Sanitize(),
		manifest: m,
	}, nil
}

// PgIndex searches a live pgvector table.
type PgIndex struct {
	pool     *pgxpool.Pool
	table    string
	manifest models.IndexManifest
}

func (ix *PgIndex) Manifest() models.IndexManifest {
	return ix.manifest
}

func (ix *PgIndex) Len() int {
	return ix.manifest.Count
}

// Close is a no-op; the pool belongs to the PgStore.
func (ix *PgIndex) Close() {}

func (ix *PgIndex) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != ix.manifest.Dimension {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(query), ix.manifest.Dimension)
	}

	stmt := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, ix.table)

	rows, err := ix.pool.Query(ctx, stmt, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.Hit
	for rows.Next() {
		var (
			hit  models.Hit
			meta []byte
		)
		if err := rows.Scan(&hit.ChunkID, &hit.Text, &meta, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &hit.Unit); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", hit.ChunkID, err)
			}
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
