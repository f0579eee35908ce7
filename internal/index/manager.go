// Package index keeps a vector index, its ordered metadata records, and a raw
// embeddings backup moving in lockstep: the record at position i always
// describes the vector at index row i, and backup row i holds that vector's
// raw value. Every mutation preserves the alignment or changes nothing.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pixseek/pixseek/internal/cache"
	"github.com/pixseek/pixseek/internal/embedding"
	"github.com/pixseek/pixseek/internal/fetch"
	"github.com/pixseek/pixseek/internal/persist"
	"github.com/pixseek/pixseek/internal/record"
	"github.com/pixseek/pixseek/internal/vector"
)

// State describes what the manager is doing. Search is allowed only in
// StateReady; mutating states are transient and visible through Status.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateEmpty         State = "empty"
	StateBuilding      State = "building"
	StateReady         State = "ready"
	StateUpdating      State = "updating"
	StateRemoving      State = "removing"
	StateRepairing     State = "repairing"
)

// RecordSource yields pages of records for a bulk build. An empty page ends
// the stream.
type RecordSource interface {
	NextPage(ctx context.Context) ([]record.Record, error)
}

// BuildReport summarizes a bulk build.
type BuildReport struct {
	Indexed int
	Failed  []string
}

// Manager owns the index/records/backup triple. One write lock covers all
// three, so readers always observe an aligned snapshot.
type Manager struct {
	embedder  embedding.Embedder
	fetcher   *fetch.Fetcher
	paths     persist.Paths
	indexType string
	metric    vector.Metric
	dimension int

	queryCache *cache.QueryCache
	logger     *zap.Logger

	mu     sync.RWMutex
	idx    vector.Index
	store  *record.Store
	backup [][]float32
	state  State
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithQueryCache enables result caching. The cache is invalidated wholesale
// on every mutation.
func WithQueryCache(c *cache.QueryCache) Option {
	return func(m *Manager) { m.queryCache = c }
}

// NewManager returns a manager in StateUninitialized. Call Load or Build
// before searching. The dimension is taken from the embedder.
func NewManager(embedder embedding.Embedder, fetcher *fetch.Fetcher, paths persist.Paths, indexType string, metric vector.Metric, opts ...Option) (*Manager, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	m := &Manager{
		embedder:  embedder,
		fetcher:   fetcher,
		paths:     paths,
		indexType: indexType,
		metric:    metric,
		dimension: embedder.Dimensions(),
		logger:    zap.NewNop(),
		store:     record.NewStore(),
		state:     StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Load restores the persisted triple. Misaligned state is repaired by
// truncating to the shortest artifact and rebuilding the index from the
// backup; anything unrecoverable falls back to an empty index so the service
// can still start and be rebuilt.
func (m *Manager) Load(ctx context.Context) error {
	bundle, err := persist.Load(m.paths, m.indexType, m.dimension, m.metric)
	if err != nil {
		if !errors.Is(err, persist.ErrNoBundle) {
			m.logger.Warn("failed to load index state, starting empty", zap.Error(err))
		}
		return m.resetEmpty()
	}

	rows := bundle.Index.Rows()
	records := bundle.Records
	backup := bundle.Backup

	if rows != len(records) || (backup != nil && len(backup) != len(records)) {
		m.logger.Warn("index state misaligned, repairing",
			zap.Int("index_rows", rows),
			zap.Int("records", len(records)),
			zap.Int("backup_rows", len(backup)))
		return m.repair(ctx, bundle)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.swapLocked(bundle.Index, record.FromRecords(records), backup)
	if m.idx.Rows() == 0 {
		m.state = StateEmpty
	} else {
		m.state = StateReady
	}
	m.logger.Info("index loaded",
		zap.Int("items", m.idx.Rows()),
		zap.String("index_type", m.idx.Type()))
	return nil
}

// repair truncates all three artifacts to the shortest length and rebuilds
// the index rows from the backup. Without a backup the rows cannot be
// reconstructed, so the state resets to empty.
func (m *Manager) repair(ctx context.Context, bundle *persist.Bundle) error {
	m.setState(StateRepairing)

	if bundle.Backup == nil {
		m.logger.Warn("cannot repair without embeddings backup, resetting")
		bundle.Index.Close()
		return m.resetEmpty()
	}

	n := len(bundle.Records)
	if len(bundle.Backup) < n {
		n = len(bundle.Backup)
	}
	records := bundle.Records[:n]
	backup := bundle.Backup[:n]

	rebuilt, err := m.indexFromRows(ctx, backup)
	if err != nil {
		m.logger.Error("repair rebuild failed, resetting", zap.Error(err))
		bundle.Index.Close()
		return m.resetEmpty()
	}
	bundle.Index.Close()

	m.mu.Lock()
	m.swapLocked(rebuilt, record.FromRecords(records), backup)
	if n == 0 {
		m.state = StateEmpty
	} else {
		m.state = StateReady
	}
	m.mu.Unlock()

	if err := m.persistSnapshot(); err != nil {
		return err
	}
	m.logger.Info("index repaired", zap.Int("items", n))
	return nil
}

// Build replaces the whole index from a record source. The new triple is
// assembled aside and swapped in atomically, so searches keep hitting the old
// index until the build completes. Records whose bytes cannot be fetched or
// embedded are skipped and reported, not fatal.
func (m *Manager) Build(ctx context.Context, src RecordSource) (*BuildReport, error) {
	m.setState(StateBuilding)

	newIdx, err := vector.New(m.indexType, m.dimension, m.metric)
	if err != nil {
		m.setState(StateUninitialized)
		return nil, err
	}

	report := &BuildReport{}
	var records []record.Record
	var backup [][]float32
	seen := make(map[string]struct{})

	for {
		page, err := src.NextPage(ctx)
		if err != nil {
			newIdx.Close()
			m.setState(StateUninitialized)
			return nil, fmt.Errorf("read source page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			if err := ctx.Err(); err != nil {
				newIdx.Close()
				m.setState(StateUninitialized)
				return nil, err
			}
			if _, dup := seen[rec.Key()]; dup {
				continue
			}
			vec, err := m.embedRecord(ctx, rec)
			if err != nil {
				m.logger.Warn("skipping record",
					zap.String("item", rec.Key()), zap.Error(err))
				report.Failed = append(report.Failed, rec.Key())
				continue
			}
			if err := newIdx.Add(ctx, [][]float32{vec}); err != nil {
				newIdx.Close()
				m.setState(StateUninitialized)
				return nil, err
			}
			records = append(records, rec)
			backup = append(backup, vec)
			seen[rec.Key()] = struct{}{}
			report.Indexed++
		}
	}

	m.mu.Lock()
	m.swapLocked(newIdx, record.FromRecords(records), backup)
	if report.Indexed == 0 {
		m.state = StateEmpty
	} else {
		m.state = StateReady
	}
	m.mu.Unlock()

	if err := m.persistSnapshot(); err != nil {
		return report, err
	}
	m.invalidateCache()
	m.logger.Info("index built",
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// Update appends records that are not yet indexed. Records that cannot be
// fetched or embedded are skipped and reported, same as in Build, so one bad
// source never blocks the rest of the batch. Embedding happens before the
// lock is taken; the index add, record append, and backup append then land in
// one critical section so no reader can observe a partial append.
func (m *Manager) Update(ctx context.Context, recs []record.Record) (*BuildReport, error) {
	if m.currentState() == StateUninitialized {
		return nil, ErrIndexNotReady
	}

	type prepared struct {
		rec record.Record
		vec []float32
	}
	report := &BuildReport{}
	var ready []prepared
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			m.logger.Warn("skipping invalid record", zap.Error(err))
			report.Failed = append(report.Failed, rec.Key())
			continue
		}
		if m.contains(rec.Key()) {
			m.logger.Debug("record already indexed", zap.String("item", rec.Key()))
			continue
		}
		vec, err := m.embedRecord(ctx, rec)
		if err != nil {
			m.logger.Warn("skipping record",
				zap.String("item", rec.Key()), zap.Error(err))
			report.Failed = append(report.Failed, rec.Key())
			continue
		}
		ready = append(ready, prepared{rec: rec, vec: vec})
	}
	if len(ready) == 0 {
		return report, nil
	}

	m.setState(StateUpdating)
	m.mu.Lock()
	for _, p := range ready {
		// Re-check under the write lock; a concurrent update may have
		// indexed the same item since the pre-filter.
		if m.store.Contains(p.rec.Key()) {
			continue
		}
		if err := m.idx.Add(ctx, [][]float32{p.vec}); err != nil {
			m.mu.Unlock()
			m.restoreReadyState()
			return report, err
		}
		m.store.Append(p.rec)
		m.backup = append(m.backup, p.vec)
		report.Indexed++
	}
	m.state = StateReady
	m.mu.Unlock()

	if report.Indexed == 0 {
		return report, nil
	}
	if err := m.persistSnapshot(); err != nil {
		return report, err
	}
	m.invalidateCache()
	m.logger.Info("index updated",
		zap.Int("added", report.Indexed),
		zap.Int("failed", len(report.Failed)),
		zap.Int("items", m.Count()))
	return report, nil
}

// Remove drops the given items by rebuilding the index from the embeddings
// backup minus their rows. A flat index has no stable per-row deletion, so
// rebuild-and-swap is the only way to shrink it without breaking the
// position alignment. Returns the number of items removed.
func (m *Manager) Remove(ctx context.Context, ids []string) (int, error) {
	if m.currentState() == StateUninitialized {
		return 0, ErrIndexNotReady
	}
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	m.setState(StateRemoving)
	m.mu.Lock()

	if m.store.Len() > 0 && m.backup == nil {
		m.mu.Unlock()
		m.restoreReadyState()
		return 0, fmt.Errorf("%w: embeddings backup missing, cannot rebuild", ErrConsistency)
	}

	keptStore, removed := m.store.WithoutItemIDs(idSet)
	if removed == 0 {
		m.state = m.stateForCountLocked()
		m.mu.Unlock()
		return 0, nil
	}

	removedPositions := make(map[int]struct{}, len(idSet))
	for _, pos := range m.store.PositionsOf(idSet) {
		removedPositions[pos] = struct{}{}
	}
	newBackup := make([][]float32, 0, len(m.backup)-removed)
	for i, row := range m.backup {
		if _, dropped := removedPositions[i]; !dropped {
			newBackup = append(newBackup, row)
		}
	}

	rebuilt, err := m.indexFromRows(ctx, newBackup)
	if err != nil {
		m.state = m.stateForCountLocked()
		m.mu.Unlock()
		return 0, err
	}

	m.swapLocked(rebuilt, keptStore, newBackup)
	m.state = m.stateForCountLocked()
	m.mu.Unlock()

	if err := m.persistSnapshot(); err != nil {
		return removed, err
	}
	m.invalidateCache()
	m.logger.Info("items removed", zap.Int("removed", removed), zap.Int("items", m.Count()))
	return removed, nil
}

// Count returns the number of indexed items.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Len()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.currentState()
}

// Metric returns the comparison metric.
func (m *Manager) Metric() vector.Metric {
	return m.metric
}

// Dimension returns the embedding dimension.
func (m *Manager) Dimension() int {
	return m.dimension
}

// Contains reports whether itemID is indexed.
func (m *Manager) Contains(itemID string) bool {
	return m.contains(itemID)
}

// Close releases the underlying index.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idx != nil {
		return m.idx.Close()
	}
	return nil
}

// embedRecord fetches the photo bytes and embeds them. Fetch failures are
// tagged ErrSourceUnavailable so callers can distinguish a bad source from an
// embedding fault.
func (m *Manager) embedRecord(ctx context.Context, rec record.Record) ([]float32, error) {
	if m.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrSourceUnavailable)
	}
	data, err := m.fetcher.Bytes(ctx, rec.SourceURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	vec, err := m.embedder.EmbedImage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", rec.Key(), err)
	}
	if len(vec) != m.dimension {
		return nil, fmt.Errorf("%w: embedder produced %d dims, index expects %d",
			ErrDimensionMismatch, len(vec), m.dimension)
	}
	return vec, nil
}

// indexFromRows builds a fresh index holding rows in order.
func (m *Manager) indexFromRows(ctx context.Context, rows [][]float32) (vector.Index, error) {
	idx, err := vector.New(m.indexType, m.dimension, m.metric)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		if err := idx.Add(ctx, rows); err != nil {
			idx.Close()
			return nil, err
		}
	}
	return idx, nil
}

// swapLocked replaces the triple. Caller holds the write lock.
func (m *Manager) swapLocked(idx vector.Index, store *record.Store, backup [][]float32) {
	if m.idx != nil && m.idx != idx {
		m.idx.Close()
	}
	m.idx = idx
	m.store = store
	m.backup = backup
}

func (m *Manager) resetEmpty() error {
	idx, err := vector.New(m.indexType, m.dimension, m.metric)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swapLocked(idx, record.NewStore(), nil)
	m.state = StateEmpty
	return nil
}

// persistSnapshot writes the current triple under the read lock so a
// concurrent mutation cannot interleave with the save.
func (m *Manager) persistSnapshot() error {
	m.mu.RLock()
	bundle := persist.Bundle{
		Index:   m.idx,
		Records: m.store.Records(),
		Backup:  m.backup,
	}
	err := persist.Save(m.paths, bundle)
	m.mu.RUnlock()
	if err != nil {
		m.logger.Error("failed to persist index state", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (m *Manager) invalidateCache() {
	if m.queryCache != nil {
		m.queryCache.InvalidateAll()
	}
}

func (m *Manager) contains(itemID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Contains(itemID)
}

func (m *Manager) currentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) restoreReadyState() {
	m.mu.Lock()
	m.state = m.stateForCountLocked()
	m.mu.Unlock()
}

func (m *Manager) stateForCountLocked() State {
	if m.store.Len() == 0 {
		return StateEmpty
	}
	return StateReady
}
