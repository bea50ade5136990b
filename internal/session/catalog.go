package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rcliao/data-assistant/internal/api"
	"github.com/rcliao/data-assistant/internal/logging"
	"github.com/rcliao/data-assistant/internal/model"
)

// CatalogBackend is the part of the backend the catalog talks to.
type CatalogBackend interface {
	ListDatasets(ctx context.Context, all bool, opts ...api.CallOption) (model.Snapshot, error)
	SyncUploads(ctx context.Context, opts ...api.CallOption) (model.SyncResult, error)
	ListFromFolder(ctx context.Context, opts ...api.CallOption) (model.FolderListing, error)
	Upload(ctx context.Context, filename string, r io.Reader, name string, opts ...api.CallOption) (model.UploadResult, error)
	Preview(ctx context.Context, datasetID string, limit int, opts ...api.CallOption) (model.Preview, error)
	Schema(ctx context.Context, datasetID string, opts ...api.CallOption) (model.Schema, error)
}

// SnapshotCache persists the last applied snapshot.
type SnapshotCache interface {
	ReplaceDatasets(ctx context.Context, snap model.Snapshot) error
	LoadDatasets(ctx context.Context) (model.Snapshot, error)
}

// Catalog keeps the session's view of every user's datasets.
type Catalog struct {
	backend CatalogBackend
	cache   SnapshotCache
	logger  *zap.Logger

	mu      sync.RWMutex
	snap    model.Snapshot
	applied uint64 // generation of snap; 0 until a refresh or seed lands

	cacheMu  sync.Mutex
	next     atomic.Uint64
	inflight atomic.Int32
}

// NewCatalog returns an empty catalog. cache may be nil.
func NewCatalog(backend CatalogBackend, cache SnapshotCache, logger *zap.Logger) *Catalog {
	return &Catalog{backend: backend, cache: cache, logger: logging.OrNop(logger)}
}

// Snapshot returns a copy of the current snapshot.
func (c *Catalog) Snapshot() model.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Clone()
}

// Loading reports whether a refresh is in flight.
func (c *Catalog) Loading() bool {
	return c.inflight.Load() > 0
}

// Seed loads the cached snapshot if nothing has been fetched yet.
func (c *Catalog) Seed(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	snap, err := c.cache.LoadDatasets(ctx)
	if err != nil {
		c.logger.Warn("load cached datasets failed", zap.Error(err))
		return fmt.Errorf("load cached datasets: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied == 0 {
		c.snap = snap
	}
	return nil
}

// Refresh fetches the full listing and replaces the snapshot. With syncFirst
// the backend first registers files dropped into its uploads folder; that
// step may fail without stopping the listing. Concurrent refreshes each fetch,
// but a listing that finishes after a newer one has landed is discarded.
func (c *Catalog) Refresh(ctx context.Context, syncFirst bool) (model.Snapshot, error) {
	gen := c.next.Add(1)
	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	if syncFirst {
		res, err := c.backend.SyncUploads(ctx)
		if err != nil {
			c.logger.Warn("sync uploads failed (non-fatal)", zap.Error(err))
		} else if res.Synced > 0 {
			c.logger.Info("synced uploads", zap.Int("synced", res.Synced))
		}
	}

	snap, err := c.backend.ListDatasets(ctx, true)
	if err != nil {
		c.logger.Error("load datasets failed", zap.Error(err))
		return c.Snapshot(), fmt.Errorf("list datasets: %w", err)
	}
	snap.Count = len(snap.Datasets)

	c.mu.Lock()
	if gen < c.applied {
		current := c.snap.Clone()
		c.mu.Unlock()
		c.logger.Debug("discarding stale listing", zap.Uint64("generation", gen))
		return current, nil
	}
	c.snap = snap
	c.applied = gen
	c.mu.Unlock()

	c.persist(ctx, gen, snap)
	return snap.Clone(), nil
}

func (c *Catalog) persist(ctx context.Context, gen uint64, snap model.Snapshot) {
	if c.cache == nil {
		return
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	c.mu.RLock()
	latest := c.applied == gen
	c.mu.RUnlock()
	if !latest {
		return
	}
	if err := c.cache.ReplaceDatasets(context.WithoutCancel(ctx), snap); err != nil {
		c.logger.Warn("cache datasets failed", zap.Error(err))
	}
}

// Upload submits a file as a new dataset under the current identity. It does
// not refresh the catalog.
func (c *Catalog) Upload(ctx context.Context, filename string, r io.Reader, name string) (model.UploadResult, error) {
	res, err := c.backend.Upload(ctx, filename, r, name)
	if err != nil {
		c.logger.Error("upload failed", zap.String("file", filename), zap.Error(err))
		return model.UploadResult{}, fmt.Errorf("upload %s: %w", filename, err)
	}
	c.logger.Info("uploaded dataset",
		zap.String("dataset_id", res.ID), zap.String("name", res.Name), zap.Int("rows", res.RowCount))
	return res, nil
}

// Sync asks the backend to register files dropped into its uploads folder.
func (c *Catalog) Sync(ctx context.Context) (model.SyncResult, error) {
	return c.backend.SyncUploads(ctx)
}

// Folder lists the backend's uploads folder.
func (c *Catalog) Folder(ctx context.Context) (model.FolderListing, error) {
	return c.backend.ListFromFolder(ctx)
}

// Preview returns the first rows of a dataset, read as as. An empty as reads
// as the dataset's catalog owner, falling back to the current identity.
func (c *Catalog) Preview(ctx context.Context, datasetID string, limit int, as string) (model.Preview, error) {
	return c.backend.Preview(ctx, datasetID, limit, c.ownerOption(datasetID, as)...)
}

// Schema returns the columns of a dataset, read as in Preview.
func (c *Catalog) Schema(ctx context.Context, datasetID string, as string) (model.Schema, error) {
	return c.backend.Schema(ctx, datasetID, c.ownerOption(datasetID, as)...)
}

func (c *Catalog) ownerOption(datasetID, as string) []api.CallOption {
	if as == "" {
		as, _ = c.Snapshot().Owner(datasetID)
	}
	if as == "" {
		return nil
	}
	return []api.CallOption{api.AsUser(as)}
}
