// Package sync runs notification and task syncs over users' connections,
// on demand and on a schedule.
package sync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	gosync "sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/universal-inbox/internal/inbox"
	"github.com/nhle/universal-inbox/internal/integration"
	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/store"
)

// ErrSyncRunning is returned when a sync of the same connection and type
// is already in progress in this process.
var ErrSyncRunning = errors.New("sync already running")

// SyncState represents the current state of a connection's sync.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	}
	return "idle"
}

// SyncStatus holds the sync state of one user's provider for one sync
// type.
type SyncStatus struct {
	UserID   string
	Provider model.IntegrationProviderKind
	SyncType model.SyncType
	State    SyncState
	LastSync time.Time
	Error    error
}

// SyncResult is the outcome of one connection's sync.
type SyncResult struct {
	UserID   string
	Provider model.IntegrationProviderKind
	SyncType model.SyncType

	Fetched  int
	Modified int
	Stale    int

	// Skipped explains why the sync did not run.
	Skipped string

	Error error
}

// defaultFetchTimeout bounds a connection's sync when none is configured.
const defaultFetchTimeout = 2 * time.Minute

type statusKey struct {
	userID   string
	provider model.IntegrationProviderKind
	syncType model.SyncType
}

// Orchestrator runs syncs. Each connection's items are fetched and
// derived in one transaction; an item that fails to derive is rolled
// back alone and ends that connection's run, while the work done before
// it is kept.
type Orchestrator struct {
	db       *store.SQLiteStore
	conns    *integration.Service
	registry *source.Registry
	services *inbox.Services
	cfg      model.SyncConfig

	mu       gosync.Mutex
	running  map[statusKey]bool
	statuses map[statusKey]*SyncStatus
}

// New creates an Orchestrator.
func New(
	db *store.SQLiteStore,
	conns *integration.Service,
	registry *source.Registry,
	services *inbox.Services,
	cfg model.SyncConfig,
) *Orchestrator {
	return &Orchestrator{
		db:       db,
		conns:    conns,
		registry: registry,
		services: services,
		cfg:      cfg,
		running:  make(map[statusKey]bool),
		statuses: make(map[statusKey]*SyncStatus),
	}
}

// SyncNotifications syncs the notifications of userID from one provider,
// or from every provider when kind is nil.
func (o *Orchestrator) SyncNotifications(
	ctx context.Context,
	kind *model.IntegrationProviderKind,
	userID string,
) ([]SyncResult, error) {
	return o.Sync(ctx, model.SyncNotifications, kind, userID)
}

// SyncTasks syncs the tasks of userID from one provider, or from every
// provider when kind is nil.
func (o *Orchestrator) SyncTasks(
	ctx context.Context,
	kind *model.IntegrationProviderKind,
	userID string,
) ([]SyncResult, error) {
	return o.Sync(ctx, model.SyncTasks, kind, userID)
}

// Sync runs a sync of syncType for userID. Providers the user is not
// connected to are left out of the results. A failing provider does not
// stop the others; the failures are joined in the returned error.
func (o *Orchestrator) Sync(
	ctx context.Context,
	syncType model.SyncType,
	kind *model.IntegrationProviderKind,
	userID string,
) ([]SyncResult, error) {
	kinds := o.registry.Kinds(syncType)
	if kind != nil {
		if !slices.Contains(kinds, *kind) {
			return nil, fmt.Errorf("%s has no %s to sync", *kind, syncType)
		}
		kinds = []model.IntegrationProviderKind{*kind}
	}

	var results []SyncResult
	var errs []error
	for _, k := range kinds {
		result := o.syncConnection(ctx, syncType, k, userID)
		if result == nil {
			continue
		}
		results = append(results, *result)
		if result.Error != nil {
			errs = append(errs, fmt.Errorf("%s %s sync: %w", k, syncType, result.Error))
		}
	}
	return results, errors.Join(errs...)
}

// SyncAll syncs every user having a validated connection, at most
// cfg.Concurrency users at once. Failures are recorded on the
// connections and logged.
func (o *Orchestrator) SyncAll(ctx context.Context, syncType model.SyncType) error {
	var users []string
	err := o.db.InTx(ctx, func(tx *store.Tx) error {
		var err error
		users, err = o.conns.UsersWithValidatedConnections(ctx, tx, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("listing users to sync: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(max(o.cfg.Concurrency, 1))
	for _, userID := range users {
		g.Go(func() error {
			results, err := o.Sync(ctx, syncType, nil, userID)
			if err != nil {
				log.Warn().Err(err).Str("user_id", userID).Str("sync_type", string(syncType)).Msg("sync finished with failures")
			}
			log.Debug().Str("user_id", userID).Int("count", len(results)).Msg("user synced")
			return nil
		})
	}
	return g.Wait()
}

// Statuses returns the sync state of every connection synced so far.
func (o *Orchestrator) Statuses() []SyncStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(o.statuses))
	for _, s := range o.statuses {
		statuses = append(statuses, *s)
	}
	slices.SortFunc(statuses, func(a, b SyncStatus) int {
		switch {
		case a.UserID != b.UserID:
			return cmp.Compare(a.UserID, b.UserID)
		case a.Provider != b.Provider:
			return cmp.Compare(a.Provider, b.Provider)
		}
		return cmp.Compare(a.SyncType, b.SyncType)
	})
	return statuses
}

// syncConnection syncs the user's connection to kind. It returns nil when
// there is no validated connection.
func (o *Orchestrator) syncConnection(
	ctx context.Context,
	syncType model.SyncType,
	kind model.IntegrationProviderKind,
	userID string,
) *SyncResult {
	key := statusKey{userID: userID, provider: kind, syncType: syncType}
	result := &SyncResult{UserID: userID, Provider: kind, SyncType: syncType}

	if !o.acquire(key) {
		result.Skipped = ErrSyncRunning.Error()
		log.Info().Str("user_id", userID).Str("provider", string(kind)).Str("sync_type", string(syncType)).
			Msg("sync already running, skipped")
		return result
	}
	defer o.release(key)

	conn, err := o.startSync(ctx, syncType, kind, userID)
	switch {
	case errors.Is(err, integration.ErrSyncTooSoon):
		result.Skipped = err.Error()
		log.Info().Str("user_id", userID).Str("provider", string(kind)).Str("sync_type", string(syncType)).
			Msg("sync started too recently, skipped")
		return result
	case err != nil:
		result.Error = err
		o.setStatus(key, SyncError, err)
		return result
	case conn == nil:
		return nil
	}

	o.setStatus(key, SyncRunning, nil)
	o.run(ctx, syncType, *conn, result)
	if result.Error != nil {
		o.setStatus(key, SyncError, result.Error)
	} else {
		o.setStatus(key, SyncIdle, nil)
	}
	return result
}

// startSync picks the connection to sync and commits its start time in a
// transaction of its own. The start time stays recorded when the sync
// fails.
func (o *Orchestrator) startSync(
	ctx context.Context,
	syncType model.SyncType,
	kind model.IntegrationProviderKind,
	userID string,
) (*model.IntegrationConnection, error) {
	var conn *model.IntegrationConnection
	err := o.db.InTx(ctx, func(tx *store.Tx) error {
		c, err := o.conns.ConnectionToSync(ctx, tx, kind, userID, syncType)
		if err != nil || c == nil {
			return err
		}
		if err := o.conns.MarkSyncStarted(ctx, tx, c.ID, syncType); err != nil {
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}

func (o *Orchestrator) run(
	ctx context.Context,
	syncType model.SyncType,
	conn model.IntegrationConnection,
	result *SyncResult,
) {
	timeout := o.cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The transaction outlives the fetch deadline; a timed out sync still
	// records its failure.
	dbCtx := context.WithoutCancel(ctx)
	tx, err := o.db.Begin(dbCtx)
	if err != nil {
		result.Error = err
		return
	}
	defer tx.Rollback()

	logger := log.With().
		Str("user_id", conn.UserID).
		Str("connection_id", conn.ID).
		Str("provider", string(conn.ProviderKind)).
		Str("sync_type", string(syncType)).
		Logger()

	handle := o.handler(fetchCtx, tx, syncType, conn.UserID)
	lastCompleted := conn.Sync(syncType).CompletedAt

	var syncErr error
	for _, src := range o.registry.ItemSources(syncType, conn.ProviderKind) {
		res, err := o.services.Items.SyncItems(fetchCtx, tx, src, syncType, conn.UserID, lastCompleted, handle)
		result.Fetched += res.Fetched
		result.Modified += res.Modified
		result.Stale += res.Stale
		if errors.Is(err, source.ErrSyncDisabled) {
			logger.Debug().Str("kind", string(src.ItemKind())).Msg("source disabled by connection settings")
			continue
		}
		if err != nil {
			syncErr = err
			break
		}
	}

	if syncErr != nil {
		msg := syncErr.Error()
		if err := o.conns.MarkSyncFailed(dbCtx, tx, conn.ID, syncType, msg); err != nil {
			result.Error = errors.Join(syncErr, err)
			return
		}
		if source.IsAuthError(syncErr) {
			if err := o.conns.UpdateStatus(dbCtx, tx, conn.ID, model.ConnectionFailing, &msg); err != nil {
				result.Error = errors.Join(syncErr, err)
				return
			}
		}
		result.Error = syncErr
		if err := tx.Commit(); err != nil {
			result.Error = errors.Join(syncErr, err)
		}
		logger.Error().Err(syncErr).Int("count", result.Modified).Msg("sync failed")
		return
	}

	if err := o.conns.MarkSyncCompleted(dbCtx, tx, conn.ID, syncType); err != nil {
		result.Error = err
		return
	}
	if err := tx.Commit(); err != nil {
		result.Error = err
		return
	}
	logger.Info().
		Int("count", result.Fetched).
		Int("modified", result.Modified).
		Int("stale", result.Stale).
		Msg("sync completed")
}

func (o *Orchestrator) handler(
	ctx context.Context,
	tx *store.Tx,
	syncType model.SyncType,
	userID string,
) inbox.ItemHandler {
	if syncType == model.SyncTasks {
		return func(item model.ThirdPartyItem) error {
			_, err := o.services.Tasks.SyncTaskFromItem(ctx, tx, item, userID)
			return err
		}
	}
	return func(item model.ThirdPartyItem) error {
		_, err := o.services.Notifications.SyncNotificationFromItem(ctx, tx, item, userID)
		return err
	}
}

func (o *Orchestrator) acquire(key statusKey) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[key] {
		return false
	}
	o.running[key] = true
	return true
}

func (o *Orchestrator) release(key statusKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, key)
}

// setStatus updates the sync status of a connection.
func (o *Orchestrator) setStatus(key statusKey, state SyncState, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	status, ok := o.statuses[key]
	if !ok {
		status = &SyncStatus{UserID: key.userID, Provider: key.provider, SyncType: key.syncType}
		o.statuses[key] = status
	}
	status.State = state
	status.Error = err
	if state == SyncIdle {
		status.LastSync = time.Now()
	}
}
