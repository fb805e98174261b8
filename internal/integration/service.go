// Package integration manages users' connections to providers: tokens,
// settings, provider state and sync bookkeeping.
package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nhle/universal-inbox/internal/credential"
	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/store"
)

// ErrSyncTooSoon is returned by ConnectionToSync when the previous sync
// started less than the configured minimum interval ago.
var ErrSyncTooSoon = errors.New("previous sync started too recently")

// TokenStore persists access tokens outside the database.
type TokenStore interface {
	Get(connectionID string) (string, error)
	Set(connectionID, token string) error
	Delete(connectionID string) error
}

// Service is the integration connection service.
type Service struct {
	tokens    TokenStore
	sync      model.SyncConfig
	validator *configValidator
	now       func() time.Time
}

// NewService creates a Service.
func NewService(tokens TokenStore, syncCfg model.SyncConfig) (*Service, error) {
	validator, err := newConfigValidator()
	if err != nil {
		return nil, err
	}
	return &Service{
		tokens:    tokens,
		sync:      syncCfg,
		validator: validator,
		now:       time.Now,
	}, nil
}

// CreateIntegrationConnection links a provider for a user. A nil config
// starts from the provider defaults.
func (s *Service) CreateIntegrationConnection(
	ctx context.Context,
	tx *store.Tx,
	userID string,
	kind model.IntegrationProviderKind,
	config *model.IntegrationConnectionConfig,
) (*model.IntegrationConnection, error) {
	cfg := model.DefaultConfig(kind)
	if config != nil {
		cfg = *config
	}
	if err := s.validateConfig(kind, cfg); err != nil {
		return nil, err
	}

	conn, err := tx.CreateIntegrationConnection(ctx, model.IntegrationConnection{
		UserID:       userID,
		ProviderKind: kind,
		Status:       model.ConnectionCreated,
		Config:       cfg,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Str("provider", string(kind)).
		Str("connection_id", conn.ID).
		Msg("created integration connection")
	return conn, nil
}

// StoreAccessToken saves the token of a connection and marks it validated.
func (s *Service) StoreAccessToken(
	ctx context.Context,
	tx *store.Tx,
	connectionID string,
	token string,
	providerUserID *string,
) error {
	if token == "" {
		return errors.New("access token must not be empty")
	}
	if err := s.tokens.Set(connectionID, token); err != nil {
		return err
	}
	if providerUserID != nil {
		if err := tx.UpdateProviderUserID(ctx, connectionID, *providerUserID); err != nil {
			return err
		}
	}
	return tx.UpdateIntegrationConnectionStatus(ctx, connectionID, model.ConnectionValidated, nil)
}

// FindAccessToken returns the token of the user's validated connection to
// the provider, nil when there is none.
func (s *Service) FindAccessToken(
	ctx context.Context,
	tx *store.Tx,
	kind model.IntegrationProviderKind,
	userID string,
) (*source.AccessToken, error) {
	conn, err := tx.GetIntegrationConnectionForProvider(ctx, userID, kind)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !conn.IsValidated() {
		return nil, nil
	}

	token, err := s.tokens.Get(conn.ID)
	if errors.Is(err, credential.ErrNoToken) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token of %s connection: %w", kind, err)
	}
	return &source.AccessToken{Token: token, Connection: *conn}, nil
}

// UpdateContext replaces the provider state of a connection.
func (s *Service) UpdateContext(
	ctx context.Context,
	tx *store.Tx,
	connectionID string,
	c *model.IntegrationConnectionContext,
) error {
	return tx.UpdateIntegrationConnectionContext(ctx, connectionID, c)
}

// UpdateStatus changes the status of a connection. A failing connection
// keeps the explanation.
func (s *Service) UpdateStatus(
	ctx context.Context,
	tx *store.Tx,
	connectionID string,
	status model.IntegrationConnectionStatus,
	failureMessage *string,
) error {
	if status != model.ConnectionFailing {
		failureMessage = nil
	}
	return tx.UpdateIntegrationConnectionStatus(ctx, connectionID, status, failureMessage)
}

// UpdateConfig validates and stores new settings for a connection.
func (s *Service) UpdateConfig(
	ctx context.Context,
	tx *store.Tx,
	connectionID string,
	config model.IntegrationConnectionConfig,
	userID string,
) (*model.IntegrationConnection, error) {
	conn, err := tx.GetIntegrationConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.UserID != userID {
		return nil, fmt.Errorf("connection %s does not belong to user %s: %w", connectionID, userID, store.ErrNotFound)
	}
	if err := s.validateConfig(conn.ProviderKind, config); err != nil {
		return nil, err
	}
	if err := tx.UpdateIntegrationConnectionConfig(ctx, connectionID, config); err != nil {
		return nil, err
	}
	conn.Config = config
	return conn, nil
}

func (s *Service) validateConfig(kind model.IntegrationProviderKind, config model.IntegrationConnectionConfig) error {
	configKind, err := config.Kind()
	if err != nil {
		return fmt.Errorf("invalid %s config: %w", kind, err)
	}
	if configKind != kind {
		return fmt.Errorf("invalid %s config: got settings for %s", kind, configKind)
	}
	return s.validator.Validate(kind, config)
}

// ConnectionToSync returns the connection a sync of syncType should run
// on. It returns nil when the user has no validated connection to the
// provider, and ErrSyncTooSoon during the cooldown.
func (s *Service) ConnectionToSync(
	ctx context.Context,
	tx *store.Tx,
	kind model.IntegrationProviderKind,
	userID string,
	syncType model.SyncType,
) (*model.IntegrationConnection, error) {
	conn, err := tx.GetIntegrationConnectionForProvider(ctx, userID, kind)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !conn.IsValidated() {
		return nil, nil
	}

	minInterval := s.sync.MinInterval(syncType)
	started := conn.Sync(syncType).StartedAt
	if minInterval > 0 && started != nil && s.now().Sub(*started) < minInterval {
		return nil, fmt.Errorf("%s %s sync of user %s: %w", kind, syncType, userID, ErrSyncTooSoon)
	}
	return conn, nil
}

// MarkSyncStarted records the start of a sync.
func (s *Service) MarkSyncStarted(ctx context.Context, tx *store.Tx, connectionID string, syncType model.SyncType) error {
	return tx.MarkSyncStarted(ctx, connectionID, syncType, s.now())
}

// MarkSyncCompleted records a successful sync.
func (s *Service) MarkSyncCompleted(ctx context.Context, tx *store.Tx, connectionID string, syncType model.SyncType) error {
	return tx.MarkSyncCompleted(ctx, connectionID, syncType, s.now())
}

// MarkSyncFailed records a failed sync.
func (s *Service) MarkSyncFailed(
	ctx context.Context,
	tx *store.Tx,
	connectionID string,
	syncType model.SyncType,
	message string,
) error {
	return tx.MarkSyncFailed(ctx, connectionID, syncType, s.now(), message)
}

// ListConnections returns the connections of a user.
func (s *Service) ListConnections(ctx context.Context, tx *store.Tx, userID string) ([]model.IntegrationConnection, error) {
	return tx.ListIntegrationConnections(ctx, store.ConnectionFilter{UserID: &userID})
}

// UsersWithValidatedConnections returns the users having at least one
// validated connection, optionally to the given provider.
func (s *Service) UsersWithValidatedConnections(
	ctx context.Context,
	tx *store.Tx,
	kind *model.IntegrationProviderKind,
) ([]string, error) {
	return tx.ListUsersWithValidatedConnections(ctx, kind)
}

// DeleteAccessToken forgets the token of a connection and resets its
// status.
func (s *Service) DeleteAccessToken(ctx context.Context, tx *store.Tx, connectionID string) error {
	if err := s.tokens.Delete(connectionID); err != nil {
		return err
	}
	return tx.UpdateIntegrationConnectionStatus(ctx, connectionID, model.ConnectionCreated, nil)
}
