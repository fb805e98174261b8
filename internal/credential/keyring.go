package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "universal-inbox"

// ErrNoToken is returned when no token is stored for a connection.
var ErrNoToken = errors.New("no access token stored")

// Store keeps one access token per integration connection.
type Store struct {
	ring keyring.Keyring
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/universal-inbox/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("universal-inbox-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Open returns a Store backed by the system keyring.
func Open() (*Store, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return &Store{ring: ring}, nil
}

// NewMemory returns a Store that only lives in memory.
func NewMemory() *Store {
	return &Store{ring: keyring.NewArrayKeyring(nil)}
}

func connectionKey(connectionID string) string {
	return "connection:" + connectionID
}

// Get retrieves the access token of a connection.
func (s *Store) Get(connectionID string) (string, error) {
	item, err := s.ring.Get(connectionKey(connectionID))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting token of connection %s: %w", connectionID, err)
	}
	return string(item.Data), nil
}

// Set stores the access token of a connection.
func (s *Store) Set(connectionID, token string) error {
	err := s.ring.Set(keyring.Item{
		Key:   connectionKey(connectionID),
		Data:  []byte(token),
		Label: "Universal Inbox connection " + connectionID,
	})
	if err != nil {
		return fmt.Errorf("setting token of connection %s: %w", connectionID, err)
	}
	return nil
}

// Delete removes the access token of a connection. Deleting a missing
// token is not an error.
func (s *Store) Delete(connectionID string) error {
	err := s.ring.Remove(connectionKey(connectionID))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting token of connection %s: %w", connectionID, err)
	}
	return nil
}
