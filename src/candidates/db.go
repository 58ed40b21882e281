package candidates

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"devt.de/krotik/eliasdb/graph"
	"devt.de/krotik/eliasdb/graph/graphstorage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// eliasdb names
const (
	kindCell   = "cell"
	kindLink   = "link"
	roleChild  = "child"
	roleParent = "parent"
)

var notAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Options configures a DB
type Options struct {
	Dir      string // an empty Dir keeps everything in memory
	Name     string
	Sample   string
	FrameKey string
	Logger   *zap.Logger
}

/*
DB is the candidate database: an eliasdb graph (one partition per sample)
and a sqlite database holding parameter ids and done markers
*/
type DB struct {
	mu        sync.Mutex
	gs        graphstorage.Storage
	gm        *graph.Manager
	sql       *sql.DB
	partition string
	frameKey  string
	logger    *zap.Logger
	closed    bool
}

// Open is the constructor, it creates the database if needed and migrates the bookkeeping schema
func Open(opts Options) (*DB, error) {
	if opts.Name == "" {
		opts.Name = "lintrack"
	}
	if opts.FrameKey == "" {
		opts.FrameKey = "t"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	db := &DB{
		partition: Partition(opts.Sample),
		frameKey:  opts.FrameKey,
		logger:    opts.Logger.Named("candidates"),
	}

	var dsn string
	if opts.Dir == "" {
		db.gs = graphstorage.NewMemoryGraphStorage(opts.Name + "-" + uuid.NewString())
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("could not create database directory: %w", err)
		}
		gs, err := graphstorage.NewDiskGraphStorage(filepath.Join(opts.Dir, opts.Name+".graph"), false)
		if err != nil {
			return nil, fmt.Errorf("could not open graph storage: %w", err)
		}
		db.gs = gs
		dsn = filepath.Join(opts.Dir, opts.Name+".sqlite")
	}
	db.gm = graph.NewGraphManager(db.gs)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		db.gs.Close()
		return nil, fmt.Errorf("could not open bookkeeping database: %w", err)
	}
	// one connection, so pragmas hold and :memory: is a single database
	sqlDB.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			db.gs.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if err := migrateUp(sqlDB, db.logger); err != nil {
		sqlDB.Close()
		db.gs.Close()
		return nil, err
	}
	db.sql = sqlDB
	db.logger.Debug("opened candidate database", zap.String("dir", opts.Dir), zap.String("partition", db.partition))
	return db, nil
}

// Partition maps a sample name onto an eliasdb partition name
func Partition(sample string) string {
	if sample == "" {
		return "main"
	}
	return notAlphaNumeric.ReplaceAllString(sample, "_")
}

// FrameKey returns the node attribute holding the frame index
func (db *DB) FrameKey() string { return db.frameKey }

// Close flushes the graph storage and closes both databases
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	sqlErr := db.sql.Close()
	if err := db.gs.Close(); err != nil {
		return fmt.Errorf("could not close graph storage: %w", err)
	}
	return sqlErr
}

// isClosed is checked at the start of every operation
func (db *DB) isClosed() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closed
}
