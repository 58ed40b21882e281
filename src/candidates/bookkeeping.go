package candidates

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/will-rowe/lintrack/src/config"
	"go.uber.org/zap"
	"gopkg.in/vmihailenco/msgpack.v2"
)

// SelectedKey returns the attribute a parameter set's selection is stored under
func SelectedKey(pid int64) string {
	return fmt.Sprintf("selected_%d", pid)
}

// Digest returns the content address of a parameter set
func Digest(params config.SolveParameters) (string, []byte, error) {
	encoded, err := msgpack.Marshal(params)
	if err != nil {
		return "", nil, fmt.Errorf("could not encode parameters: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), encoded, nil
}

// GetParametersID returns the id of a parameter set; equal sets share an id
func (db *DB) GetParametersID(ctx context.Context, params config.SolveParameters, failIfNotExists bool) (int64, error) {
	if db.isClosed() {
		return 0, ErrClosed
	}
	digest, encoded, err := Digest(params)
	if err != nil {
		return 0, err
	}
	if !failIfNotExists {
		if _, err := db.sql.ExecContext(ctx, `INSERT OR IGNORE INTO parameters (digest, params) VALUES (?, ?)`, digest, encoded); err != nil {
			return 0, fmt.Errorf("could not insert parameters: %w", err)
		}
	}
	var id int64
	err = db.sql.QueryRowContext(ctx, `SELECT id FROM parameters WHERE digest = ?`, digest).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownParameters
	}
	if err != nil {
		return 0, fmt.Errorf("could not query parameters: %w", err)
	}
	return id, nil
}

// Parameters returns the parameter set stored under an id
func (db *DB) Parameters(ctx context.Context, pid int64) (config.SolveParameters, error) {
	var params config.SolveParameters
	if db.isClosed() {
		return params, ErrClosed
	}
	var encoded []byte
	err := db.sql.QueryRowContext(ctx, `SELECT params FROM parameters WHERE id = ?`, pid).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return params, fmt.Errorf("parameters id %d: %w", pid, ErrUnknownParameters)
	}
	if err != nil {
		return params, fmt.Errorf("could not query parameters: %w", err)
	}
	if err := msgpack.Unmarshal(encoded, &params); err != nil {
		return params, fmt.Errorf("could not decode parameters %d: %w", pid, err)
	}
	return params, nil
}

// RegisterStep records which parameter ids a step solves for, so a reset can find its done markers
func (db *DB) RegisterStep(ctx context.Context, step string, pids []int64) error {
	if db.isClosed() {
		return ErrClosed
	}
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, pid := range pids {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO steps (step, parameters_id) VALUES (?, ?)`, step, pid); err != nil {
			return fmt.Errorf("could not register step %s: %w", step, err)
		}
	}
	return tx.Commit()
}

// CheckDone reports whether a block of a step has been marked done
func (db *DB) CheckDone(ctx context.Context, step string, blockID int64) (bool, error) {
	if db.isClosed() {
		return false, ErrClosed
	}
	var n int
	if err := db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks_done WHERE step = ? AND block_id = ?`, step, blockID).Scan(&n); err != nil {
		return false, fmt.Errorf("could not check block %d of %s: %w", blockID, step, err)
	}
	return n > 0, nil
}

// WriteDone marks a block of a step as done, marking twice is not an error
func (db *DB) WriteDone(ctx context.Context, step string, blockID int64) error {
	if db.isClosed() {
		return ErrClosed
	}
	if _, err := db.sql.ExecContext(ctx, `INSERT OR IGNORE INTO blocks_done (step, block_id) VALUES (?, ?)`, step, blockID); err != nil {
		return fmt.Errorf("could not mark block %d of %s done: %w", blockID, step, err)
	}
	return nil
}

// CheckAllDone reports whether a whole step has been marked done
func (db *DB) CheckAllDone(ctx context.Context, step string) (bool, error) {
	if db.isClosed() {
		return false, ErrClosed
	}
	var n int
	if err := db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps_done WHERE step = ?`, step).Scan(&n); err != nil {
		return false, fmt.Errorf("could not check step %s: %w", step, err)
	}
	return n > 0, nil
}

// WriteAllDone marks a whole step as done
func (db *DB) WriteAllDone(ctx context.Context, step string) error {
	if db.isClosed() {
		return ErrClosed
	}
	if _, err := db.sql.ExecContext(ctx, `INSERT OR IGNORE INTO steps_done (step) VALUES (?)`, step); err != nil {
		return fmt.Errorf("could not mark step %s done: %w", step, err)
	}
	return nil
}

// NumDone returns the number of blocks of a step marked done
func (db *DB) NumDone(ctx context.Context, step string) (int, error) {
	if db.isClosed() {
		return 0, ErrClosed
	}
	var n int
	if err := db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks_done WHERE step = ?`, step).Scan(&n); err != nil {
		return 0, fmt.Errorf("could not count blocks of %s: %w", step, err)
	}
	return n, nil
}

// ResetSelection removes selected_<pid> from every node and edge and forgets the done markers
// of every step registered for pid
func (db *DB) ResetSelection(ctx context.Context, pid int64) error {
	if db.isClosed() {
		return ErrClosed
	}
	key := SelectedKey(pid)
	nodes, edges, err := db.clearAttr(ctx, key)
	if err != nil {
		return fmt.Errorf("could not clear %s: %w", key, err)
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"blocks_done", "steps_done"} {
		query := `DELETE FROM ` + table + ` WHERE step IN (SELECT step FROM steps WHERE parameters_id = ?)`
		if _, err := tx.ExecContext(ctx, query, pid); err != nil {
			return fmt.Errorf("could not reset %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	db.logger.Info("reset selection", zap.String("key", key), zap.Int("nodes", nodes), zap.Int("edges", edges))
	return nil
}

// ResetStep removes key from every node and edge and forgets the done markers of step,
// it is used for selections that are not tied to a parameter id (e.g. greedy)
func (db *DB) ResetStep(ctx context.Context, step, key string) error {
	if db.isClosed() {
		return ErrClosed
	}
	nodes, edges, err := db.clearAttr(ctx, key)
	if err != nil {
		return fmt.Errorf("could not clear %s: %w", key, err)
	}
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"blocks_done", "steps_done"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE step = ?`, step); err != nil {
			return fmt.Errorf("could not reset %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	db.logger.Info("reset step", zap.String("step", step), zap.String("key", key), zap.Int("nodes", nodes), zap.Int("edges", edges))
	return nil
}

// SchemaVersion returns the bookkeeping schema version
func (db *DB) SchemaVersion() (uint, error) {
	version, dirty, err := schemaVersion(db.sql, db.logger)
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("bookkeeping schema version %d is dirty", version)
	}
	return version, nil
}
