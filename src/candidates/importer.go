package candidates

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/will-rowe/lintrack/src/trackgraph"
	"go.uber.org/zap"
)

var jsonl = jsoniter.Config{UseNumber: true}.Froze()

// batchSize is the number of records written per transaction
const batchSize = 10000

// field names of the candidate files
const (
	nodeIDField     = "id"
	edgeSourceField = "source"
	edgeTargetField = "target"
)

// openCandidates opens a candidate file, gunzipping it when it ends in .gz
func openCandidates(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return fh, nil
	}
	gz, err := gzip.NewReader(fh)
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("could not read gzip header of %s: %w", path, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, fh}, nil
}

// readLines decodes one JSON object per line, skipping blank lines
func readLines(r io.Reader, fn func(line int, rec trackgraph.Attrs) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		rec := make(trackgraph.Attrs)
		if err := jsonl.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// idField removes an id field from a record and returns it
func idField(rec trackgraph.Attrs, field string, line int) (uint64, error) {
	n, ok := rec[field].(json.Number)
	if !ok {
		return 0, fmt.Errorf("line %d: missing or bad %q", line, field)
	}
	id, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: bad %q: %w", line, field, err)
	}
	delete(rec, field)
	return id, nil
}

// ImportNodes loads a JSON lines file of nodes ({"id": .., "t": .., "z": .., "y": .., "x": .., "score": ..})
func (db *DB) ImportNodes(ctx context.Context, path string) (int, error) {
	r, err := openCandidates(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	batch := make(map[uint64]trackgraph.Attrs)
	total := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := db.WriteNodes(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = make(map[uint64]trackgraph.Attrs)
		return nil
	}
	err = readLines(r, func(line int, rec trackgraph.Attrs) error {
		id, err := idField(rec, nodeIDField, line)
		if err != nil {
			return err
		}
		batch[id] = rec
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return total, fmt.Errorf("could not import nodes from %s: %w", path, err)
	}
	db.logger.Info("imported nodes", zap.String("file", path), zap.Int("nodes", total))
	return total, nil
}

// ImportEdges loads a JSON lines file of edges ({"source": u, "target": v, "distance": .., ...}),
// source is the node in the later frame
func (db *DB) ImportEdges(ctx context.Context, path string) (int, error) {
	r, err := openCandidates(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	batch := make(map[trackgraph.EdgeKey]trackgraph.Attrs)
	total := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := db.WriteEdges(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = make(map[trackgraph.EdgeKey]trackgraph.Attrs)
		return nil
	}
	err = readLines(r, func(line int, rec trackgraph.Attrs) error {
		u, err := idField(rec, edgeSourceField, line)
		if err != nil {
			return err
		}
		v, err := idField(rec, edgeTargetField, line)
		if err != nil {
			return err
		}
		batch[trackgraph.EdgeKey{U: u, V: v}] = rec
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return total, fmt.Errorf("could not import edges from %s: %w", path, err)
	}
	db.logger.Info("imported edges", zap.String("file", path), zap.Int("edges", total))
	return total, nil
}
