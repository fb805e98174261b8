package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/universal-inbox/internal/model"
)

const connectionColumns = `id, user_id, provider_kind, status, failure_message,
	provider_user_id, config, context, created_at, updated_at`

type connectionRow struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	ProviderKind   string    `db:"provider_kind"`
	Status         string    `db:"status"`
	FailureMessage *string   `db:"failure_message"`
	ProviderUserID *string   `db:"provider_user_id"`
	Config         string    `db:"config"`
	Context        *string   `db:"context"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type bookkeepingRow struct {
	SyncType       string     `db:"sync_type"`
	StartedAt      *time.Time `db:"started_at"`
	CompletedAt    *time.Time `db:"completed_at"`
	FailedAt       *time.Time `db:"failed_at"`
	FailureMessage *string    `db:"failure_message"`
	Failures       int        `db:"failures"`
}

// ConnectionFilter restricts connection listings. Nil fields match all.
type ConnectionFilter struct {
	UserID         *string
	Kind           *model.IntegrationProviderKind
	Status         *model.IntegrationConnectionStatus
	ProviderUserID *string
}

func (t *Tx) toConnection(ctx context.Context, row connectionRow) (model.IntegrationConnection, error) {
	conn := model.IntegrationConnection{
		ID:             row.ID,
		UserID:         row.UserID,
		ProviderKind:   model.IntegrationProviderKind(row.ProviderKind),
		Status:         model.IntegrationConnectionStatus(row.Status),
		FailureMessage: row.FailureMessage,
		ProviderUserID: row.ProviderUserID,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}

	if err := json.Unmarshal([]byte(row.Config), &conn.Config); err != nil {
		return model.IntegrationConnection{}, fmt.Errorf("unmarshaling config of connection %s: %w", row.ID, err)
	}
	if row.Context != nil {
		var c model.IntegrationConnectionContext
		if err := json.Unmarshal([]byte(*row.Context), &c); err != nil {
			return model.IntegrationConnection{}, fmt.Errorf("unmarshaling context of connection %s: %w", row.ID, err)
		}
		conn.Context = &c
	}

	var syncs []bookkeepingRow
	err := t.tx.SelectContext(ctx, &syncs, `
		SELECT sync_type, started_at, completed_at, failed_at, failure_message, failures
		FROM sync_bookkeeping WHERE integration_connection_id = ?`, row.ID)
	if err != nil {
		return model.IntegrationConnection{}, fmt.Errorf("loading sync state of connection %s: %w", row.ID, err)
	}
	for _, s := range syncs {
		b := model.SyncBookkeeping{
			StartedAt:      s.StartedAt,
			CompletedAt:    s.CompletedAt,
			FailedAt:       s.FailedAt,
			FailureMessage: s.FailureMessage,
			Failures:       s.Failures,
		}
		switch model.SyncType(s.SyncType) {
		case model.SyncNotifications:
			conn.NotificationsSync = b
		case model.SyncTasks:
			conn.TasksSync = b
		}
	}

	return conn, nil
}

func (t *Tx) getConnectionWhere(ctx context.Context, where string, args ...any) (*model.IntegrationConnection, error) {
	var row connectionRow
	err := t.tx.GetContext(ctx, &row, "SELECT "+connectionColumns+" FROM integration_connections WHERE "+where, args...)
	if err != nil {
		return nil, notFound(err)
	}

	conn, err := t.toConnection(ctx, row)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// CreateIntegrationConnection inserts a new connection. Generates a UUID
// if ID is empty.
func (t *Tx) CreateIntegrationConnection(
	ctx context.Context,
	conn model.IntegrationConnection,
) (*model.IntegrationConnection, error) {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	if conn.Status == "" {
		conn.Status = model.ConnectionCreated
	}

	config, err := json.Marshal(conn.Config)
	if err != nil {
		return nil, fmt.Errorf("marshaling connection config: %w", err)
	}
	var ctxJSON *string
	if conn.Context != nil {
		b, err := json.Marshal(conn.Context)
		if err != nil {
			return nil, fmt.Errorf("marshaling connection context: %w", err)
		}
		s := string(b)
		ctxJSON = &s
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO integration_connections (
			id, user_id, provider_kind, status, failure_message,
			provider_user_id, config, context, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.UserID, string(conn.ProviderKind), string(conn.Status), conn.FailureMessage,
		conn.ProviderUserID, string(config), ctxJSON, conn.CreatedAt, conn.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s connection: %w", conn.ProviderKind, err)
	}
	return &conn, nil
}

// GetIntegrationConnection retrieves a connection by its ID.
func (t *Tx) GetIntegrationConnection(ctx context.Context, id string) (*model.IntegrationConnection, error) {
	conn, err := t.getConnectionWhere(ctx, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("getting connection %s: %w", id, err)
	}
	return conn, nil
}

// GetIntegrationConnectionForProvider retrieves the user's connection to a provider.
func (t *Tx) GetIntegrationConnectionForProvider(
	ctx context.Context,
	userID string,
	kind model.IntegrationProviderKind,
) (*model.IntegrationConnection, error) {
	conn, err := t.getConnectionWhere(ctx, "user_id = ? AND provider_kind = ?", userID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("getting %s connection of user %s: %w", kind, userID, err)
	}
	return conn, nil
}

// ListIntegrationConnections retrieves connections matching the filter.
func (t *Tx) ListIntegrationConnections(
	ctx context.Context,
	filter ConnectionFilter,
) ([]model.IntegrationConnection, error) {
	var conditions []string
	var args []any

	if filter.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Kind != nil {
		conditions = append(conditions, "provider_kind = ?")
		args = append(args, string(*filter.Kind))
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.ProviderUserID != nil {
		conditions = append(conditions, "provider_user_id = ?")
		args = append(args, *filter.ProviderUserID)
	}

	query := "SELECT " + connectionColumns + " FROM integration_connections"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY user_id, provider_kind"

	var rows []connectionRow
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}

	conns := make([]model.IntegrationConnection, 0, len(rows))
	for _, row := range rows {
		conn, err := t.toConnection(ctx, row)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

// ListUsersWithValidatedConnections returns the distinct users having at
// least one validated connection, optionally to a given provider.
func (t *Tx) ListUsersWithValidatedConnections(
	ctx context.Context,
	kind *model.IntegrationProviderKind,
) ([]string, error) {
	query := "SELECT DISTINCT user_id FROM integration_connections WHERE status = ?"
	args := []any{string(model.ConnectionValidated)}
	if kind != nil {
		query += " AND provider_kind = ?"
		args = append(args, string(*kind))
	}
	query += " ORDER BY user_id"

	var users []string
	if err := t.tx.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("querying users with validated connections: %w", err)
	}
	return users, nil
}

func (t *Tx) updateConnection(ctx context.Context, id, set string, args ...any) error {
	args = append(args, time.Now().UTC(), id)
	result, err := t.tx.ExecContext(ctx,
		"UPDATE integration_connections SET "+set+", updated_at = ? WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating connection %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating connection %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("updating connection %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateIntegrationConnectionStatus sets the status and its explanation.
func (t *Tx) UpdateIntegrationConnectionStatus(
	ctx context.Context,
	id string,
	status model.IntegrationConnectionStatus,
	failureMessage *string,
) error {
	return t.updateConnection(ctx, id, "status = ?, failure_message = ?", string(status), failureMessage)
}

// UpdateIntegrationConnectionConfig replaces the connection's settings.
func (t *Tx) UpdateIntegrationConnectionConfig(
	ctx context.Context,
	id string,
	config model.IntegrationConnectionConfig,
) error {
	b, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling connection config: %w", err)
	}
	return t.updateConnection(ctx, id, "config = ?", string(b))
}

// UpdateIntegrationConnectionContext replaces the connection's sync state.
func (t *Tx) UpdateIntegrationConnectionContext(
	ctx context.Context,
	id string,
	c *model.IntegrationConnectionContext,
) error {
	var ctxJSON *string
	if c != nil {
		b, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshaling connection context: %w", err)
		}
		s := string(b)
		ctxJSON = &s
	}
	return t.updateConnection(ctx, id, "context = ?", ctxJSON)
}

// UpdateProviderUserID records the user's identifier in the provider.
func (t *Tx) UpdateProviderUserID(ctx context.Context, id, providerUserID string) error {
	return t.updateConnection(ctx, id, "provider_user_id = ?", providerUserID)
}

// MarkSyncStarted records the start of a sync run.
func (t *Tx) MarkSyncStarted(ctx context.Context, id string, syncType model.SyncType, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sync_bookkeeping (integration_connection_id, sync_type, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(integration_connection_id, sync_type) DO UPDATE SET
			started_at = excluded.started_at`,
		id, string(syncType), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("marking %s sync started for connection %s: %w", syncType, id, err)
	}
	return nil
}

// MarkSyncCompleted records a successful run and resets the failure counter.
func (t *Tx) MarkSyncCompleted(ctx context.Context, id string, syncType model.SyncType, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sync_bookkeeping (integration_connection_id, sync_type, completed_at, failures)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(integration_connection_id, sync_type) DO UPDATE SET
			completed_at = excluded.completed_at,
			failure_message = NULL,
			failures = 0`,
		id, string(syncType), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("marking %s sync completed for connection %s: %w", syncType, id, err)
	}
	return nil
}

// MarkSyncFailed records a failed run and increments the failure counter.
func (t *Tx) MarkSyncFailed(
	ctx context.Context,
	id string,
	syncType model.SyncType,
	at time.Time,
	message string,
) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sync_bookkeeping (integration_connection_id, sync_type, failed_at, failure_message, failures)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(integration_connection_id, sync_type) DO UPDATE SET
			failed_at = excluded.failed_at,
			failure_message = excluded.failure_message,
			failures = sync_bookkeeping.failures + 1`,
		id, string(syncType), at.UTC(), message,
	)
	if err != nil {
		return fmt.Errorf("marking %s sync failed for connection %s: %w", syncType, id, err)
	}
	return nil
}
