package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/lightswitch/internal/infrastructure/logging"
)

// DefaultStructuredPath is the tree path holding the complete snapshot record.
const DefaultStructuredPath = "states"

// DefaultMirrorTimeout bounds how long a Write waits on its Mirror.
const DefaultMirrorTimeout = 2 * time.Second

// Mirror receives every snapshot the store persists.
//
// Mirrors are notified after the tree write succeeds, with a context that
// expires after the configured mirror timeout. Implementations must return
// once ctx is done. A mirror error is logged and counted but never fails
// the write.
type Mirror interface {
	PublishSnapshot(ctx context.Context, snap Snapshot) error
}

// Options configures a Store.
type Options struct {
	// StructuredPath overrides DefaultStructuredPath.
	StructuredPath string

	// Logger receives migration and mirror diagnostics. Optional.
	Logger *logging.Logger

	// Mirror is notified of every persisted snapshot. Optional.
	Mirror Mirror

	// MirrorTimeout overrides DefaultMirrorTimeout.
	MirrorTimeout time.Duration
}

// Store reads and writes device snapshots against a Tree.
//
// Thread Safety: all methods are safe for concurrent use, but there is no
// isolation between a Read and a later Write. Callers performing
// read-modify-write sequences race with each other; the last write wins.
type Store struct {
	tree           Tree
	catalog        Catalog
	structuredPath string
	logger         *logging.Logger
	mirror         Mirror
	mirrorTimeout  time.Duration

	// initErr explains why tree is nil, for the ErrNotConfigured message.
	initErr error
}

// NewStore creates a Store over tree for the devices in catalog.
//
// Parameters:
//   - tree: Backend tree; nil produces an unconfigured store
//   - catalog: Known device keys
//   - opts: Optional settings
//
// Returns:
//   - *Store: Store ready for use
func NewStore(tree Tree, catalog Catalog, opts Options) *Store {
	s := &Store{
		tree:           tree,
		catalog:        catalog,
		structuredPath: opts.StructuredPath,
		logger:         opts.Logger,
		mirror:         opts.Mirror,
		mirrorTimeout:  opts.MirrorTimeout,
	}
	if s.mirrorTimeout <= 0 {
		s.mirrorTimeout = DefaultMirrorTimeout
	}
	if s.structuredPath == "" {
		s.structuredPath = DefaultStructuredPath
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if tree == nil {
		s.initErr = errors.New("no tree backend")
	}
	return s
}

// NewUnconfiguredStore returns a Store whose every operation fails with
// ErrNotConfigured. cause is reported in the error text.
func NewUnconfiguredStore(catalog Catalog, cause error, opts Options) *Store {
	s := NewStore(nil, catalog, opts)
	if cause != nil {
		s.initErr = cause
	}
	return s
}

// Catalog returns the device keys this store manages.
func (s *Store) Catalog() Catalog {
	return s.catalog
}

// Configured reports whether the store has a tree backend.
func (s *Store) Configured() bool {
	return s.tree != nil
}

// ensureStore fails fast when there is no tree to talk to.
func (s *Store) ensureStore() error {
	if s.tree == nil {
		return fmt.Errorf("%w: %v", ErrNotConfigured, s.initErr)
	}
	return nil
}

// Read returns the current snapshot.
//
// The structured path is authoritative. When it does not exist the legacy
// flat keys are read, normalised, and written to the structured path before
// Read returns. A failed migration write fails the Read with
// ErrStorageUnavailable; the next Read retries it.
//
// Returns:
//   - Snapshot: Complete snapshot, every catalog key present
//   - error: ErrNotConfigured or ErrStorageUnavailable
func (s *Store) Read(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	snap, err := s.read(ctx)
	s.observe("read", start, err)
	return snap, err
}

func (s *Store) read(ctx context.Context) (Snapshot, error) {
	if err := s.ensureStore(); err != nil {
		return nil, err
	}

	raw, exists, err := s.tree.Get(ctx, s.structuredPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrStorageUnavailable, s.structuredPath, err)
	}
	if exists {
		return Normalize(raw, s.catalog), nil
	}

	legacy, err := s.readLegacy(ctx)
	if err != nil {
		return nil, err
	}
	snap := Normalize(legacy, s.catalog)

	if err := s.tree.Set(ctx, s.structuredPath, snap.Clone()); err != nil {
		legacyMigrations.WithLabelValues(resultError).Inc()
		s.logger.Warn("migrating legacy device keys failed",
			"path", s.structuredPath,
			"error", err,
		)
		return nil, fmt.Errorf("%w: migrating to %s: %w", ErrStorageUnavailable, s.structuredPath, err)
	}
	legacyMigrations.WithLabelValues(resultOK).Inc()
	s.logger.Info("migrated legacy device keys", "path", s.structuredPath, "devices", s.catalog.Len())

	return snap, nil
}

// readLegacy fetches every flat device key in parallel. Absent keys are left
// out of the result.
func (s *Store) readLegacy(ctx context.Context) (map[string]any, error) {
	keys := s.catalog.keys
	values := make([]any, len(keys))
	present := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for i, k := range keys {
		g.Go(func() error {
			v, ok, err := s.tree.Get(gctx, k)
			if err != nil {
				return fmt.Errorf("%w: reading %s: %w", ErrStorageUnavailable, k, err)
			}
			values[i], present[i] = v, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(keys))
	for i, k := range keys {
		if present[i] {
			out[k] = values[i]
		}
	}
	return out, nil
}

// Write normalises candidate and persists it to the structured path and
// every legacy key.
//
// candidate may be partial; missing catalog keys are stored as false and
// unknown keys are dropped. When the tree implements MultiPathWriter a
// single atomic update is issued. Otherwise every path is written in
// parallel, all writes are attempted, and any failure is reported.
//
// Returns:
//   - Snapshot: The normalised snapshot that was persisted
//   - error: ErrNotConfigured or ErrStorageUnavailable
func (s *Store) Write(ctx context.Context, candidate Snapshot) (Snapshot, error) {
	start := time.Now()
	snap, err := s.write(ctx, candidate)
	s.observe("write", start, err)
	return snap, err
}

func (s *Store) write(ctx context.Context, candidate Snapshot) (Snapshot, error) {
	if err := s.ensureStore(); err != nil {
		return nil, err
	}

	snap := Normalize(candidate, s.catalog)

	values := make(map[string]any, s.catalog.Len()+1)
	values[s.structuredPath] = snap.Clone()
	for _, k := range s.catalog.keys {
		values[k] = snap[k]
	}

	if err := s.persist(ctx, values); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	s.publishMirror(ctx, snap)

	return snap, nil
}

// publishMirror notifies the mirror, waiting at most mirrorTimeout.
func (s *Store) publishMirror(ctx context.Context, snap Snapshot) {
	if s.mirror == nil {
		return
	}

	mctx, cancel := context.WithTimeout(ctx, s.mirrorTimeout)
	defer cancel()

	if err := s.mirror.PublishSnapshot(mctx, snap.Clone()); err != nil {
		mirrorFailures.Inc()
		s.logger.Warn("publishing snapshot to mirror failed", "error", err)
	}
}

func (s *Store) persist(ctx context.Context, values map[string]any) error {
	if mw, ok := s.tree.(MultiPathWriter); ok {
		if err := mw.Update(ctx, values); err != nil {
			return fmt.Errorf("updating %d paths: %w", len(values), err)
		}
		return nil
	}

	// Plain group, not WithContext: one failed path must not cancel the others.
	var g errgroup.Group
	for path, v := range values {
		g.Go(func() error {
			if err := s.tree.Set(ctx, path, v); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// HealthCheck verifies the backend is reachable.
//
// Trees that do not implement HealthChecker are probed with a read of the
// structured path.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.ensureStore(); err != nil {
		return err
	}

	if hc, ok := s.tree.(HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		return nil
	}

	if _, _, err := s.tree.Get(ctx, s.structuredPath); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) observe(op string, start time.Time, err error) {
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	result := resultOK
	switch {
	case errors.Is(err, ErrNotConfigured):
		result = resultNotConfigured
	case err != nil:
		result = resultError
	}
	operations.WithLabelValues(op, result).Inc()
}
