// Package store implements the backend contract on a relational store.
// The catalog is bulk-inserted in bounded batches and every pipeline
// stage becomes an aggregate query, so memory stays proportional to one
// candidate group rather than the whole tree. All store errors are
// fatal: no partial, inconsistent duplicate analysis is ever produced.
package store

import (
	"context"
	"database/sql"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dedupfs/dfm/pkg/catalog"
	"github.com/dedupfs/dfm/pkg/config"
	"github.com/dedupfs/dfm/pkg/logger"
)

const (
	dropTableStmt = `DROP TABLE IF EXISTS files`

	createTableStmt = `
CREATE TABLE files (
    id     BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
    device BIGINT UNSIGNED NOT NULL,
    inode  BIGINT UNSIGNED NOT NULL,
    nlink  BIGINT UNSIGNED NOT NULL,
    size   BIGINT          NOT NULL,
    path   VARBINARY(4096) NOT NULL,
    mode   INT UNSIGNED    NOT NULL,
    uid    INT UNSIGNED    NOT NULL,
    gid    INT UNSIGNED    NOT NULL,
    digest VARBINARY(64)   DEFAULT NULL,
    PRIMARY KEY (id),
    KEY idx_device_size (device, size),
    KEY idx_device_inode (device, inode),
    KEY idx_digest (digest)
)`
)

type Store struct {
	log       *logrus.Entry
	db        *sql.DB
	ctx       context.Context
	batch     []*catalog.FileRecord
	batchSize int
	stats     catalog.RunStats
}

// New connects to the store, drops any previous catalog table and
// creates a fresh one. Every run owns its table from scratch.
func New(ctx context.Context, cfg config.StoreConfig, batchSize int) (*Store, error) {
	if batchSize < 1 || batchSize > config.MaxBatchSize {
		return nil, errors.Errorf("batch size must be between 1 and %d, got %d", config.MaxBatchSize, batchSize)
	}

	db, err := sql.Open("mysql", dsn(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "open store connection")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connect to store: %s:%d/%s", cfg.Host, cfg.Port, cfg.Schema)
	}

	s := &Store{
		log:       logger.GetLogger("store"),
		db:        db,
		ctx:       ctx,
		batch:     make([]*catalog.FileRecord, 0, batchSize),
		batchSize: batchSize,
	}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func dsn(cfg config.StoreConfig) string {
	c := mysql.NewConfig()
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.DBName = cfg.Schema
	return c.FormatDSN()
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, dropTableStmt); err != nil {
		return errors.Wrap(err, "drop catalog table")
	}
	if _, err := s.db.ExecContext(ctx, createTableStmt); err != nil {
		return errors.Wrap(err, "create catalog table")
	}
	return nil
}

// LoadRecord buffers a record, committing a full batch as one atomic
// multi-row insert. A failed batch never corrupts committed ones.
func (s *Store) LoadRecord(rec *catalog.FileRecord) error {
	s.batch = append(s.batch, rec)
	if len(s.batch) >= s.batchSize {
		return s.flushBatch(s.ctx)
	}
	return nil
}

// Flush commits the final partial batch.
func (s *Store) Flush(ctx context.Context) error {
	return s.flushBatch(ctx)
}

func (s *Store) flushBatch(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}

	stmt := insertStatement(len(s.batch))
	if _, err := s.db.ExecContext(ctx, stmt, insertArgs(s.batch)...); err != nil {
		return errors.Wrapf(err, "insert batch of %d records", len(s.batch))
	}

	s.log.Tracef("Committed batch of %d records", len(s.batch))
	s.batch = s.batch[:0]
	return nil
}

func (s *Store) Stats() catalog.RunStats {
	return s.stats
}

func (s *Store) Close() error {
	return s.db.Close()
}
