package source

import (
	"errors"
	"fmt"

	"github.com/nhle/universal-inbox/internal/model"
)

// AuthError indicates that no usable credential exists for a provider or
// that the provider rejected it.
type AuthError struct {
	Provider model.IntegrationProviderKind
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ErrSyncDisabled is returned by FetchItems when the user's settings turn
// the source off. Nothing fetched means nothing is stale.
var ErrSyncDisabled = errors.New("sync disabled by connection settings")

// ErrNotFound matches every NotFoundError through errors.Is.
var ErrNotFound = errors.New("not found upstream")

// NotFoundError is returned when the upstream object no longer exists.
type NotFoundError struct {
	Provider model.IntegrationProviderKind
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s not found", e.Provider, e.Resource)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err signals a missing upstream object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IgnoreNotFound returns nil for upstream not found errors. Mutations on
// objects that are already gone succeed.
func IgnoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}

// UnsupportedActionError is returned when the provider has no way to
// perform an action.
type UnsupportedActionError struct {
	Provider model.IntegrationProviderKind
	Action   string
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Provider, e.Action)
}

// IsUnsupportedAction reports whether err is an UnsupportedActionError.
func IsUnsupportedAction(err error) bool {
	var unsupported *UnsupportedActionError
	return errors.As(err, &unsupported)
}

// Unsupported builds an UnsupportedActionError.
func Unsupported(provider model.IntegrationProviderKind, action string) error {
	return &UnsupportedActionError{Provider: provider, Action: action}
}
