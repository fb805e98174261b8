// Package inbox turns synced third party items into notifications and
// tasks, and pushes user actions on them back to the providers.
package inbox

import (
	"errors"
	"time"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
)

// ErrForbidden is returned when a user acts on an entity owned by another
// user.
var ErrForbidden = errors.New("forbidden")

// Options configures the inbox services.
type Options struct {
	// SinkProvider is the tracker tasks from other providers are mirrored
	// into.
	SinkProvider model.IntegrationProviderKind

	Now func() time.Time
}

// Services groups the item, notification and task services, which call
// into each other.
type Services struct {
	Items         *ThirdPartyItemService
	Notifications *NotificationService
	Tasks         *TaskService

	registry *source.Registry
}

// New wires the services around registry.
func New(registry *source.Registry, conns source.Connections, opts Options) *Services {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	items := &ThirdPartyItemService{
		registry: registry,
		conns:    conns,
		sinkKind: opts.SinkProvider,
		now:      opts.Now,
	}
	notifications := &NotificationService{
		registry: registry,
		items:    items,
		now:      opts.Now,
	}
	tasks := &TaskService{
		registry:      registry,
		items:         items,
		notifications: notifications,
	}
	items.notifications = notifications
	items.tasks = tasks

	return &Services{
		Items:         items,
		Notifications: notifications,
		Tasks:         tasks,
		registry:      registry,
	}
}
