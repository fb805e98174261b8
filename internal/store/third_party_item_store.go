package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nhle/universal-inbox/internal/model"
)

// maxSourceItemDepth bounds how many derived-from links are loaded.
const maxSourceItemDepth = 2

const thirdPartyItemColumns = `id, source_id, kind, data, user_id,
	integration_connection_id, source_item_id, created_at, updated_at`

type thirdPartyItemRow struct {
	ID                      string    `db:"id"`
	SourceID                string    `db:"source_id"`
	Kind                    string    `db:"kind"`
	Data                    string    `db:"data"`
	UserID                  string    `db:"user_id"`
	IntegrationConnectionID string    `db:"integration_connection_id"`
	SourceItemID            *string   `db:"source_item_id"`
	CreatedAt               time.Time `db:"created_at"`
	UpdatedAt               time.Time `db:"updated_at"`
}

func (t *Tx) toThirdPartyItem(ctx context.Context, row thirdPartyItemRow, depth int) (model.ThirdPartyItem, error) {
	data, err := model.DecodeItemData(model.ThirdPartyItemKind(row.Kind), []byte(row.Data))
	if err != nil {
		return model.ThirdPartyItem{}, fmt.Errorf("decoding third party item %s: %w", row.ID, err)
	}

	item := model.ThirdPartyItem{
		ID:                      row.ID,
		SourceID:                row.SourceID,
		Data:                    data,
		UserID:                  row.UserID,
		IntegrationConnectionID: row.IntegrationConnectionID,
		CreatedAt:               row.CreatedAt,
		UpdatedAt:               row.UpdatedAt,
	}

	if row.SourceItemID != nil && depth < maxSourceItemDepth {
		sourceItem, err := t.getThirdPartyItem(ctx, *row.SourceItemID, depth+1)
		if err != nil {
			return model.ThirdPartyItem{}, fmt.Errorf("loading source item of %s: %w", row.ID, err)
		}
		item.SourceItem = sourceItem
	}

	return item, nil
}

func (t *Tx) getThirdPartyItem(ctx context.Context, id string, depth int) (*model.ThirdPartyItem, error) {
	var row thirdPartyItemRow
	err := t.tx.GetContext(ctx, &row,
		"SELECT "+thirdPartyItemColumns+" FROM third_party_items WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("getting third party item %s: %w", id, notFound(err))
	}

	item, err := t.toThirdPartyItem(ctx, row, depth)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetThirdPartyItem retrieves a single item by its ID.
func (t *Tx) GetThirdPartyItem(ctx context.Context, id string) (*model.ThirdPartyItem, error) {
	return t.getThirdPartyItem(ctx, id, 0)
}

// GetThirdPartyItemBySourceID retrieves an item by its natural key.
func (t *Tx) GetThirdPartyItemBySourceID(
	ctx context.Context,
	userID, connectionID, sourceID string,
) (*model.ThirdPartyItem, error) {
	var row thirdPartyItemRow
	err := t.tx.GetContext(ctx, &row, `
		SELECT `+thirdPartyItemColumns+` FROM third_party_items
		WHERE user_id = ? AND source_id = ? AND integration_connection_id = ?`,
		userID, sourceID, connectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting third party item %s: %w", sourceID, notFound(err))
	}

	item, err := t.toThirdPartyItem(ctx, row, 0)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateOrUpdateThirdPartyItem stores an item keyed by
// (user_id, source_id, integration_connection_id). An item whose content
// already matches the stored one is left untouched.
func (t *Tx) CreateOrUpdateThirdPartyItem(
	ctx context.Context,
	item model.ThirdPartyItem,
) (model.UpsertStatus[model.ThirdPartyItem], error) {
	var none model.UpsertStatus[model.ThirdPartyItem]

	if item.Data == nil {
		return none, fmt.Errorf("third party item %s has no data", item.SourceID)
	}
	data, err := json.Marshal(item.Data)
	if err != nil {
		return none, fmt.Errorf("encoding third party item %s: %w", item.SourceID, err)
	}

	var sourceItemID *string
	if item.SourceItem != nil {
		if item.SourceItem.ID == "" {
			return none, fmt.Errorf("source item of %s must be stored first", item.SourceID)
		}
		sourceItemID = &item.SourceItem.ID
	}

	now := time.Now().UTC()
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}

	existing, err := t.GetThirdPartyItemBySourceID(ctx, item.UserID, item.IntegrationConnectionID, item.SourceID)
	switch {
	case err == nil:
		if model.SameContent(*existing, item) {
			log.Debug().
				Str("kind", string(item.Kind())).
				Str("source_id", item.SourceID).
				Str("user_id", item.UserID).
				Msg("third party item does not need updating")
			return model.Untouched(*existing), nil
		}

		_, err := t.tx.ExecContext(ctx, `
			UPDATE third_party_items
			SET data = ?, kind = ?, source_item_id = ?, updated_at = ?
			WHERE id = ?`,
			string(data), string(item.Kind()), sourceItemID, item.UpdatedAt.UTC(), existing.ID,
		)
		if err != nil {
			return none, fmt.Errorf("updating third party item %s: %w", existing.ID, err)
		}

		updated := item
		updated.ID = existing.ID
		updated.CreatedAt = existing.CreatedAt
		log.Debug().
			Str("kind", string(item.Kind())).
			Str("source_id", item.SourceID).
			Str("user_id", item.UserID).
			Msg("updated third party item")
		return model.Updated(*existing, updated), nil

	case !isNotFound(err):
		return none, err
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	var storedID string
	err = t.tx.GetContext(ctx, &storedID, `
		INSERT INTO third_party_items (
			id, source_id, kind, data, user_id,
			integration_connection_id, source_item_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, source_id, integration_connection_id) DO UPDATE SET
			data = excluded.data,
			kind = excluded.kind,
			source_item_id = excluded.source_item_id,
			updated_at = excluded.updated_at
		RETURNING id`,
		item.ID, item.SourceID, string(item.Kind()), string(data), item.UserID,
		item.IntegrationConnectionID, sourceItemID, item.CreatedAt.UTC(), item.UpdatedAt.UTC(),
	)
	if err != nil {
		return none, fmt.Errorf("creating third party item %s: %w", item.SourceID, err)
	}

	// The row was inserted by another writer after the lookup above.
	if storedID != item.ID {
		stored, err := t.GetThirdPartyItem(ctx, storedID)
		if err != nil {
			return none, err
		}
		return model.UpsertStatus[model.ThirdPartyItem]{Kind: model.UpsertUpdated, New: *stored}, nil
	}

	log.Debug().
		Str("kind", string(item.Kind())).
		Str("source_id", item.SourceID).
		Str("user_id", item.UserID).
		Msg("created third party item")
	return model.Created(item), nil
}

// GetStaleTaskSourceItems returns the items of the given kind backing or
// mirroring active tasks that are missing from the latest full listing.
func (t *Tx) GetStaleTaskSourceItems(
	ctx context.Context,
	activeItemIDs []string,
	kind model.ThirdPartyItemKind,
	userID string,
) ([]model.ThirdPartyItem, error) {
	query := `
		SELECT DISTINCT ` + prefixColumns("i", thirdPartyItemColumns) + `
		FROM third_party_items i
		INNER JOIN tasks ON tasks.source_item_id = i.id OR tasks.sink_item_id = i.id
		WHERE i.kind = ? AND tasks.status = ? AND i.user_id = ?`
	args := []any{string(kind), string(model.TaskActive), userID}

	if len(activeItemIDs) > 0 {
		clause, ids := inClause(activeItemIDs)
		query += " AND i.id NOT IN " + clause
		args = append(args, ids...)
	}

	var rows []thirdPartyItemRow
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("getting stale %s task items: %w", kind, err)
	}

	items := make([]model.ThirdPartyItem, 0, len(rows))
	for _, row := range rows {
		item, err := t.toThirdPartyItem(ctx, row, 0)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// FindThirdPartyItemsForSourceID returns the items of a kind sharing a
// source id, across every user and connection.
func (t *Tx) FindThirdPartyItemsForSourceID(
	ctx context.Context,
	kind model.ThirdPartyItemKind,
	sourceID string,
) ([]model.ThirdPartyItem, error) {
	var rows []thirdPartyItemRow
	err := t.tx.SelectContext(ctx, &rows, `
		SELECT `+thirdPartyItemColumns+` FROM third_party_items
		WHERE kind = ? AND source_id = ?
		ORDER BY created_at`,
		string(kind), sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding %s items for %s: %w", kind, sourceID, err)
	}

	items := make([]model.ThirdPartyItem, 0, len(rows))
	for _, row := range rows {
		item, err := t.toThirdPartyItem(ctx, row, 0)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
