package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/universal-inbox/internal/model"
)

const notificationColumns = `id, title, status, last_read_at, snoozed_until, user_id,
	kind, task_id, source_item_id, created_at, updated_at`

type notificationRow struct {
	ID           string     `db:"id"`
	Title        string     `db:"title"`
	Status       string     `db:"status"`
	LastReadAt   *time.Time `db:"last_read_at"`
	SnoozedUntil *time.Time `db:"snoozed_until"`
	UserID       string     `db:"user_id"`
	Kind         string     `db:"kind"`
	TaskID       *string    `db:"task_id"`
	SourceItemID string     `db:"source_item_id"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (t *Tx) toNotification(ctx context.Context, row notificationRow) (model.Notification, error) {
	item, err := t.GetThirdPartyItem(ctx, row.SourceItemID)
	if err != nil {
		return model.Notification{}, fmt.Errorf("loading source item of notification %s: %w", row.ID, err)
	}

	return model.Notification{
		ID:           row.ID,
		Title:        row.Title,
		Status:       model.NotificationStatus(row.Status),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastReadAt:   row.LastReadAt,
		SnoozedUntil: row.SnoozedUntil,
		UserID:       row.UserID,
		Kind:         model.IntegrationProviderKind(row.Kind),
		TaskID:       row.TaskID,
		SourceItem:   *item,
	}, nil
}

func (t *Tx) selectNotifications(ctx context.Context, query string, args ...any) ([]model.Notification, error) {
	var rows []notificationRow
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	notifications := make([]model.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := t.toNotification(ctx, row)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

func (t *Tx) getNotificationWhere(ctx context.Context, where string, args ...any) (*model.Notification, error) {
	var row notificationRow
	err := t.tx.GetContext(ctx, &row, "SELECT "+notificationColumns+" FROM notifications WHERE "+where, args...)
	if err != nil {
		return nil, notFound(err)
	}

	n, err := t.toNotification(ctx, row)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNotification retrieves a single notification by its ID.
func (t *Tx) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	n, err := t.getNotificationWhere(ctx, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("getting notification %s: %w", id, err)
	}
	return n, nil
}

// GetNotificationBySourceItemID retrieves the notification derived from an item.
func (t *Tx) GetNotificationBySourceItemID(ctx context.Context, itemID string) (*model.Notification, error) {
	n, err := t.getNotificationWhere(ctx, "source_item_id = ?", itemID)
	if err != nil {
		return nil, fmt.Errorf("getting notification for item %s: %w", itemID, err)
	}
	return n, nil
}

// GetNotificationForSourceID retrieves the user's notification derived from
// the item with the given provider identifier.
func (t *Tx) GetNotificationForSourceID(ctx context.Context, sourceID, userID string) (*model.Notification, error) {
	n, err := t.getNotificationWhere(ctx, `
		source_item_id IN (
			SELECT id FROM third_party_items WHERE source_id = ? AND user_id = ?
		) AND user_id = ?
		ORDER BY updated_at DESC
		LIMIT 1`,
		sourceID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting notification for source id %s: %w", sourceID, err)
	}
	return n, nil
}

// ListNotifications retrieves notifications matching the filter, most
// recently updated first.
func (t *Tx) ListNotifications(ctx context.Context, filter model.NotificationFilter) ([]model.Notification, error) {
	conditions := []string{"user_id = ?"}
	args := []any{filter.UserID}

	if len(filter.Statuses) > 0 {
		clause, statuses := inClause(filter.Statuses)
		conditions = append(conditions, "status IN "+clause)
		args = append(args, statuses...)
	}
	if filter.Kind != nil {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(*filter.Kind))
	}
	if filter.TaskID != nil {
		conditions = append(conditions, "task_id = ?")
		args = append(args, *filter.TaskID)
	}
	if !filter.IncludeSnoozed {
		now := filter.Now
		if now.IsZero() {
			now = time.Now()
		}
		conditions = append(conditions, "(snoozed_until IS NULL OR snoozed_until <= ?)")
		args = append(args, now.UTC())
	}

	query := "SELECT " + notificationColumns + " FROM notifications WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	return t.selectNotifications(ctx, query, args...)
}

func sameNotification(a, b model.Notification, compareSnoozedUntil bool) bool {
	if a.Title != b.Title || a.Status != b.Status || a.Kind != b.Kind {
		return false
	}
	if !sameTime(a.LastReadAt, b.LastReadAt) {
		return false
	}
	return !compareSnoozedUntil || sameTime(a.SnoozedUntil, b.SnoozedUntil)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// CreateOrUpdateNotification stores the notification derived from its
// source item. An existing notification keeps its ID, creation date and
// task link; its snooze is only overwritten when updateSnoozedUntil is set.
func (t *Tx) CreateOrUpdateNotification(
	ctx context.Context,
	n model.Notification,
	updateSnoozedUntil bool,
) (model.UpsertStatus[model.Notification], error) {
	var none model.UpsertStatus[model.Notification]

	if n.SourceItem.ID == "" {
		return none, fmt.Errorf("notification %q has no stored source item", n.Title)
	}

	now := time.Now().UTC()
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = now
	}

	existing, err := t.GetNotificationBySourceItemID(ctx, n.SourceItem.ID)
	switch {
	case err == nil:
		if sameNotification(*existing, n, updateSnoozedUntil) {
			existing.SourceItem = n.SourceItem
			return model.Untouched(*existing), nil
		}

		updated := n
		updated.ID = existing.ID
		updated.CreatedAt = existing.CreatedAt
		updated.UserID = existing.UserID
		updated.TaskID = existing.TaskID
		if !updateSnoozedUntil {
			updated.SnoozedUntil = existing.SnoozedUntil
		}

		_, err := t.tx.ExecContext(ctx, `
			UPDATE notifications
			SET title = ?, status = ?, last_read_at = ?, snoozed_until = ?, kind = ?, updated_at = ?
			WHERE id = ?`,
			updated.Title, string(updated.Status), utcPtr(updated.LastReadAt),
			utcPtr(updated.SnoozedUntil), string(updated.Kind), updated.UpdatedAt.UTC(), existing.ID,
		)
		if err != nil {
			return none, fmt.Errorf("updating notification %s: %w", existing.ID, err)
		}
		return model.Updated(*existing, updated), nil

	case !isNotFound(err):
		return none, err
	}

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO notifications (
			id, title, status, last_read_at, snoozed_until, user_id,
			kind, task_id, source_item_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, string(n.Status), utcPtr(n.LastReadAt), utcPtr(n.SnoozedUntil), n.UserID,
		string(n.Kind), n.TaskID, n.SourceItem.ID, n.CreatedAt.UTC(), n.UpdatedAt.UTC(),
	)
	if err != nil {
		return none, fmt.Errorf("creating notification %q: %w", n.Title, err)
	}
	return model.Created(n), nil
}

// UpdateNotification applies a partial update. Nil patch fields are left
// untouched.
func (t *Tx) UpdateNotification(
	ctx context.Context,
	id string,
	patch model.NotificationPatch,
) (model.UpsertStatus[model.Notification], error) {
	var none model.UpsertStatus[model.Notification]

	existing, err := t.GetNotification(ctx, id)
	if err != nil {
		return none, err
	}

	updated := *existing
	if patch.Status != nil {
		updated.Status = *patch.Status
	}
	if patch.SnoozedUntil != nil {
		updated.SnoozedUntil = patch.SnoozedUntil
	}
	if patch.TaskID != nil {
		updated.TaskID = patch.TaskID
	}

	if updated.Status == existing.Status &&
		sameTime(updated.SnoozedUntil, existing.SnoozedUntil) &&
		samePtr(updated.TaskID, existing.TaskID) {
		return model.Untouched(*existing), nil
	}

	updated.UpdatedAt = time.Now().UTC()
	_, err = t.tx.ExecContext(ctx, `
		UPDATE notifications SET status = ?, snoozed_until = ?, task_id = ?, updated_at = ?
		WHERE id = ?`,
		string(updated.Status), utcPtr(updated.SnoozedUntil), updated.TaskID, updated.UpdatedAt, id,
	)
	if err != nil {
		return none, fmt.Errorf("updating notification %s: %w", id, err)
	}
	return model.Updated(*existing, updated), nil
}

// UpdateStaleNotificationsStatus sets status on the user's read or unread
// notifications derived from items of the given kind that are not listed
// in activeItemIDs, and returns them.
func (t *Tx) UpdateStaleNotificationsStatus(
	ctx context.Context,
	activeItemIDs []string,
	kind model.ThirdPartyItemKind,
	status model.NotificationStatus,
	userID string,
) ([]model.Notification, error) {
	query := `
		SELECT id FROM notifications
		WHERE user_id = ? AND status IN (?, ?)
			AND source_item_id IN (SELECT id FROM third_party_items WHERE kind = ? AND user_id = ?)`
	args := []any{
		userID, string(model.NotificationRead), string(model.NotificationUnread), string(kind), userID,
	}
	if len(activeItemIDs) > 0 {
		clause, ids := inClause(activeItemIDs)
		query += " AND source_item_id NOT IN " + clause
		args = append(args, ids...)
	}

	var staleIDs []string
	if err := t.tx.SelectContext(ctx, &staleIDs, query, args...); err != nil {
		return nil, fmt.Errorf("finding stale %s notifications: %w", kind, err)
	}
	if len(staleIDs) == 0 {
		return nil, nil
	}

	clause, ids := inClause(staleIDs)
	_, err := t.tx.ExecContext(ctx,
		"UPDATE notifications SET status = ?, updated_at = ? WHERE id IN "+clause,
		append([]any{string(status), time.Now().UTC()}, ids...)...,
	)
	if err != nil {
		return nil, fmt.Errorf("updating stale %s notifications: %w", kind, err)
	}

	return t.selectNotifications(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE id IN "+clause+" ORDER BY updated_at DESC",
		ids...,
	)
}

func samePtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
