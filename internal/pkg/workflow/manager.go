package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ListingHub/internal/pkg/env"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
)

type Config struct {
	TTL     time.Duration
	LockTTL time.Duration
	// RedisDB is the database holding snapshots.
	RedisDB int
}

func LoadConfig() Config {
	return Config{
		TTL:     env.GetDuration("WORKFLOW_TTL", 24*time.Hour),
		LockTTL: env.GetDuration("WORKFLOW_LOCK_TTL", 2*time.Minute),
		RedisDB: env.GetInt("WORKFLOW_REDIS_DB", 3),
	}
}

// CatalogSource yields the plan catalog snapshot taken when a workflow opens.
type CatalogSource interface {
	Load(ctx context.Context) (plans.Catalog, error)
}

type RecordLoader interface {
	Load(ctx context.Context, recordID uint) (*submission.Record, error)
}

// Manager opens, restores and persists workflows around each command.
type Manager struct {
	store   Store
	catalog CatalogSource
	records RecordLoader
	deps    Deps
	cfg     Config
	// Cleanup removes staged media files once a workflow ends.
	Cleanup func(paths []string)
}

func NewManager(store Store, catalog CatalogSource, records RecordLoader, deps Deps, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Manager{
		store:   store,
		catalog: catalog,
		records: records,
		deps:    deps,
		cfg:     cfg,
		Cleanup: removeFiles,
	}
}

// Open starts a workflow for the owner. Edit and plan update modes need a
// record the owner holds.
func (m *Manager) Open(ctx context.Context, ownerRef string, mode Mode, recordID uint) (View, error) {
	catalog, err := m.catalog.Load(ctx)
	if err != nil {
		return View{}, fmt.Errorf("load plan catalog: %w", err)
	}

	id := uuid.NewString()
	var c *Controller
	if mode.NeedsRecord() {
		if recordID == 0 {
			return View{}, ErrRecordRequired
		}
		rec, err := m.records.Load(ctx, recordID)
		if err != nil {
			return View{}, err
		}
		if rec.OwnerRef != ownerRef {
			return View{}, submission.ErrRecordNotFound
		}
		if c, err = NewRecordController(id, ownerRef, mode, rec, catalog, m.deps); err != nil {
			return View{}, err
		}
	} else {
		c = NewController(id, ownerRef, catalog, m.deps)
	}

	if err := m.store.Save(ctx, c.Snapshot(), m.cfg.TTL); err != nil {
		return View{}, err
	}
	log.Infof("[Workflow] Opened %s workflow %s for %s", mode, id, ownerRef)
	return c.View(), nil
}

func (m *Manager) load(ctx context.Context, id, ownerRef string) (*Controller, error) {
	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.OwnerRef != ownerRef {
		return nil, ErrNotFound
	}
	return Restore(*snap, m.deps), nil
}

func (m *Manager) Get(ctx context.Context, id, ownerRef string) (View, error) {
	c, err := m.load(ctx, id, ownerRef)
	if err != nil {
		return View{}, err
	}
	return c.View(), nil
}

// Dispatch runs a command under the workflow lock and persists the result.
// State is saved even when the command fails, since a failed confirmation
// still spends the setup handle.
func (m *Manager) Dispatch(ctx context.Context, id, ownerRef string, cmd Command) (View, error) {
	token, err := m.store.Lock(ctx, id, m.cfg.LockTTL)
	if err != nil {
		return View{}, err
	}
	defer func() {
		if uerr := m.store.Unlock(context.Background(), id, token); uerr != nil {
			log.Warnf("[Workflow] Unlock %s failed: %v", id, uerr)
		}
	}()

	c, err := m.load(ctx, id, ownerRef)
	if err != nil {
		return View{}, err
	}
	cmdErr := c.Dispatch(media.WithOwner(ctx, ownerRef), cmd)
	view := c.View()

	switch {
	case c.Completed():
		if err := m.store.Delete(ctx, id); err != nil {
			log.Warnf("[Workflow] Delete %s failed: %v", id, err)
		}
		m.cleanup(c.Draft().PendingFiles())
	default:
		if err := m.store.Save(ctx, c.Snapshot(), m.cfg.TTL); err != nil {
			return view, errors.Join(cmdErr, err)
		}
		if c.Closed() {
			m.cleanup(c.Draft().PendingFiles())
		}
	}
	return view, cmdErr
}

// Cancel discards the workflow. An open setup handle is dropped, not revoked.
func (m *Manager) Cancel(ctx context.Context, id, ownerRef string) error {
	token, err := m.store.Lock(ctx, id, m.cfg.LockTTL)
	if err != nil {
		return err
	}
	defer func() { _ = m.store.Unlock(context.Background(), id, token) }()

	c, err := m.load(ctx, id, ownerRef)
	if err != nil {
		return err
	}
	files := c.Cancel()
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.cleanup(files)
	log.Infof("[Workflow] Cancelled %s", id)
	return nil
}

func (m *Manager) cleanup(paths []string) {
	if m.Cleanup != nil && len(paths) > 0 {
		m.Cleanup(paths)
	}
}

func removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warnf("[Workflow] Could not remove staged file %s: %v", p, err)
		}
	}
}
