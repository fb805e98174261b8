package testutil

import (
	"context"
	"testing"

	"github.com/nhle/universal-inbox/internal/credential"
	"github.com/nhle/universal-inbox/internal/integration"
	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestTx opens a transaction on s that is rolled back when the test
// completes unless committed before.
func NewTestTx(t *testing.T, s *store.SQLiteStore) *store.Tx {
	t.Helper()

	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("beginning test transaction: %v", err)
	}
	t.Cleanup(func() {
		if err := tx.Rollback(); err != nil {
			t.Errorf("rolling back test transaction: %v", err)
		}
	})
	return tx
}

// NewConnections creates a connection service keeping tokens in memory,
// without sync cooldown.
func NewConnections(t *testing.T) *integration.Service {
	t.Helper()

	svc, err := integration.NewService(credential.NewMemory(), model.SyncConfig{})
	if err != nil {
		t.Fatalf("creating connection service: %v", err)
	}
	return svc
}

// Connect creates a validated connection of userID to kind holding token.
// A nil config uses the provider defaults.
func Connect(
	t *testing.T,
	tx *store.Tx,
	svc *integration.Service,
	userID string,
	kind model.IntegrationProviderKind,
	token string,
	config *model.IntegrationConnectionConfig,
) *model.IntegrationConnection {
	t.Helper()
	ctx := context.Background()

	conn, err := svc.CreateIntegrationConnection(ctx, tx, userID, kind, config)
	if err != nil {
		t.Fatalf("creating %s connection: %v", kind, err)
	}
	if err := svc.StoreAccessToken(ctx, tx, conn.ID, token, nil); err != nil {
		t.Fatalf("storing %s token: %v", kind, err)
	}
	conn.Status = model.ConnectionValidated
	return conn
}
