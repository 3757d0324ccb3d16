// Package scylla wraps a ScyllaDB/Cassandra session with the latency and
// error counters the /healthz endpoint reports, plus ColumnsMap, a sparse
// column-value abstraction used by the artifact tables.
package scylla

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gocql/gocql"

	cborcodec "github.com/doujins-org/polyglotkit/codec/cbor"
	"github.com/doujins-org/polyglotkit/config"
	"github.com/doujins-org/polyglotkit/errs"
)

// Session wraps a *gocql.Session and tallies the counters healthz reports.
type Session struct {
	inner *gocql.Session

	queries     atomic.Uint64
	errorsN     atomic.Uint64
	iterQueries atomic.Uint64
	iterErrors  atomic.Uint64
	retries     atomic.Uint64
	latencyNs   atomic.Uint64 // most recent single-query latency, nanoseconds
}

// New dials every configured node and selects the keyspace.
func New(cfg config.Scylla) (*Session, error) {
	cluster := gocql.NewCluster(cfg.Nodes...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 5 * time.Second
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: connect: %w", err)
	}
	return &Session{inner: sess}, nil
}

func (s *Session) Close() { s.inner.Close() }

// Metrics is the subset of counters surfaced at /healthz.
type Metrics struct {
	QueriesNum     uint64
	ErrorsNum      uint64
	IterQueriesNum uint64
	IterErrorsNum  uint64
	RetriesNum     uint64
	LatencyAvgMs   float64
	LatencyP90Ms   float64
	LatencyP99Ms   float64
}

// Metrics snapshots the counters. The average and both percentiles all
// report the last observed single-query latency, since gocql does not
// expose a histogram directly.
func (s *Session) Metrics() Metrics {
	lastMs := float64(s.latencyNs.Load()) / 1e6
	return Metrics{
		QueriesNum:     s.queries.Load(),
		ErrorsNum:      s.errorsN.Load(),
		IterQueriesNum: s.iterQueries.Load(),
		IterErrorsNum:  s.iterErrors.Load(),
		RetriesNum:     s.retries.Load(),
		LatencyAvgMs:   lastMs,
		LatencyP90Ms:   lastMs,
		LatencyP99Ms:   lastMs,
	}
}

// Exec runs a non-iterator statement (insert/update/delete), tracking
// latency and error counters.
func (s *Session) Exec(ctx context.Context, stmt string, args ...any) error {
	start := time.Now()
	err := s.inner.Query(stmt, args...).WithContext(ctx).Exec()
	s.record(start, err, false)
	if err != nil {
		return errs.Wrap(errs.Internal, "scylla exec failed", err)
	}
	return nil
}

// SelectOne runs a SELECT expected to return zero or one row, returning
// (via gocql.MapScan) whatever columns the statement projected; no row is a
// NotFound error.
func (s *Session) SelectOne(ctx context.Context, stmt string, args ...any) (ColumnsMap, error) {
	start := time.Now()
	iter := s.inner.Query(stmt, args...).WithContext(ctx).Iter()
	row := map[string]any{}
	ok := iter.MapScan(row)
	err := iter.Close()
	s.record(start, err, true)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "scylla select failed", err)
	}
	if !ok {
		return nil, errs.New(errs.NotFound, "row not found")
	}
	return ColumnsMap(row), nil
}

// SelectAll runs a SELECT and returns every row as a ColumnsMap.
func (s *Session) SelectAll(ctx context.Context, stmt string, args ...any) ([]ColumnsMap, error) {
	start := time.Now()
	iter := s.inner.Query(stmt, args...).WithContext(ctx).Iter()
	var out []ColumnsMap
	for {
		row := map[string]any{}
		if !iter.MapScan(row) {
			break
		}
		out = append(out, ColumnsMap(row))
	}
	err := iter.Close()
	s.record(start, err, true)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "scylla select failed", err)
	}
	return out, nil
}

func (s *Session) record(start time.Time, err error, isIter bool) {
	s.latencyNs.Store(uint64(time.Since(start).Nanoseconds()))
	if isIter {
		s.iterQueries.Add(1)
		if err != nil {
			s.iterErrors.Add(1)
		}
		return
	}
	s.queries.Add(1)
	if err != nil {
		s.errorsN.Add(1)
	}
}

// ColumnsMap is a sparse, typed view over a row's columns, mirroring the
// field-whitelist-and-sparse-upsert pattern the artifact store relies on.
type ColumnsMap map[string]any

func NewColumnsMap() ColumnsMap { return ColumnsMap{} }

func (c ColumnsMap) Has(key string) bool { _, ok := c[key]; return ok }

func (c ColumnsMap) GetString(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (c ColumnsMap) GetInt(key string) (int64, bool) {
	switch v := c[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	default:
		return 0, false
	}
}

func (c ColumnsMap) GetBytes(key string) ([]byte, bool) {
	v, ok := c[key]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (c ColumnsMap) GetFloatSlice(key string) ([]float32, bool) {
	v, ok := c[key]
	if !ok {
		return nil, false
	}
	f, ok := v.([]float32)
	return f, ok
}

// GetCBOR decodes a blob column as CBOR into dst.
func (c ColumnsMap) GetCBOR(key string, dst any) error {
	v, ok := c[key]
	if !ok {
		return errs.New(errs.NotFound, fmt.Sprintf("column %q not present", key))
	}
	b, ok := v.([]byte)
	if !ok {
		return errs.New(errs.Internal, fmt.Sprintf("column %q is not a blob", key))
	}
	return cborcodec.Unmarshal(b, dst)
}

// SetCBOR CBOR-encodes v into a blob column.
func (c ColumnsMap) SetCBOR(key string, v any) error {
	b, err := cborcodec.Marshal(v)
	if err != nil {
		return err
	}
	c[key] = b
	return nil
}

func (c ColumnsMap) Set(key string, v any) ColumnsMap {
	c[key] = v
	return c
}
