package source

import (
	"fmt"
	"slices"

	"github.com/nhle/universal-inbox/internal/model"
)

// Registry maps providers to the capabilities their adapter implements.
// It is built once at startup and read concurrently afterwards.
type Registry struct {
	providers          map[model.IntegrationProviderKind]Provider
	notificationItems  map[model.IntegrationProviderKind][]ItemSource
	taskItems          map[model.IntegrationProviderKind][]ItemSource
	notificationSource map[model.IntegrationProviderKind]NotificationSource
	taskSource         map[model.IntegrationProviderKind]TaskSource
	taskSink           map[model.IntegrationProviderKind]TaskSink
	eventSource        map[model.IntegrationProviderKind]EventSource
	derivers           map[model.ThirdPartyItemKind]ItemDeriver
}

// NewRegistry registers the given adapters.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		providers:          make(map[model.IntegrationProviderKind]Provider),
		notificationItems:  make(map[model.IntegrationProviderKind][]ItemSource),
		taskItems:          make(map[model.IntegrationProviderKind][]ItemSource),
		notificationSource: make(map[model.IntegrationProviderKind]NotificationSource),
		taskSource:         make(map[model.IntegrationProviderKind]TaskSource),
		taskSink:           make(map[model.IntegrationProviderKind]TaskSink),
		eventSource:        make(map[model.IntegrationProviderKind]EventSource),
		derivers:           make(map[model.ThirdPartyItemKind]ItemDeriver),
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register records every capability p implements, replacing a previous
// adapter of the same provider.
func (r *Registry) Register(p Provider) {
	kind := p.Kind()
	r.providers[kind] = p

	if f, ok := p.(NotificationFetcher); ok {
		r.notificationItems[kind] = f.NotificationItemSources()
	}
	if f, ok := p.(TaskFetcher); ok {
		r.taskItems[kind] = f.TaskItemSources()
	}
	if s, ok := p.(NotificationSource); ok {
		r.notificationSource[kind] = s
	}
	if s, ok := p.(TaskSource); ok {
		r.taskSource[kind] = s
	}
	if s, ok := p.(TaskSink); ok {
		r.taskSink[kind] = s
	}
	if s, ok := p.(EventSource); ok {
		r.eventSource[kind] = s
	}
	if d, ok := p.(ItemDeriver); ok {
		r.derivers[d.DerivesFrom()] = d
	}
}

// ItemSources returns the sources feeding the given sync type.
func (r *Registry) ItemSources(syncType model.SyncType, kind model.IntegrationProviderKind) []ItemSource {
	if syncType == model.SyncTasks {
		return r.taskItems[kind]
	}
	return r.notificationItems[kind]
}

// Kinds returns the providers with item sources for the sync type, in
// the stable order of model.ProviderKinds.
func (r *Registry) Kinds(syncType model.SyncType) []model.IntegrationProviderKind {
	items := r.notificationItems
	if syncType == model.SyncTasks {
		items = r.taskItems
	}
	var kinds []model.IntegrationProviderKind
	for _, kind := range model.ProviderKinds() {
		if len(items[kind]) > 0 {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Providers returns the registered provider kinds in stable order.
func (r *Registry) Providers() []model.IntegrationProviderKind {
	var kinds []model.IntegrationProviderKind
	for _, kind := range model.ProviderKinds() {
		if _, ok := r.providers[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// NotificationSource returns the notification capability of a provider.
func (r *Registry) NotificationSource(kind model.IntegrationProviderKind) (NotificationSource, error) {
	s, ok := r.notificationSource[kind]
	if !ok {
		return nil, fmt.Errorf("%s is not a notification source", kind)
	}
	return s, nil
}

// TaskSource returns the task capability of a provider.
func (r *Registry) TaskSource(kind model.IntegrationProviderKind) (TaskSource, error) {
	s, ok := r.taskSource[kind]
	if !ok {
		return nil, fmt.Errorf("%s is not a task source", kind)
	}
	return s, nil
}

// TaskSink returns the sink capability of a provider.
func (r *Registry) TaskSink(kind model.IntegrationProviderKind) (TaskSink, error) {
	s, ok := r.taskSink[kind]
	if !ok {
		return nil, fmt.Errorf("%s cannot be used as a task sink", kind)
	}
	return s, nil
}

// IsTaskSink reports whether the provider mirrors tasks itself.
func (r *Registry) IsTaskSink(kind model.IntegrationProviderKind) bool {
	_, ok := r.taskSink[kind]
	return ok
}

// EventSource returns the webhook capability of a provider.
func (r *Registry) EventSource(kind model.IntegrationProviderKind) (EventSource, error) {
	s, ok := r.eventSource[kind]
	if !ok {
		return nil, fmt.Errorf("%s does not handle events", kind)
	}
	return s, nil
}

// Deriver returns the adapter promoting items of the given kind, if any.
func (r *Registry) Deriver(kind model.ThirdPartyItemKind) (ItemDeriver, bool) {
	d, ok := r.derivers[kind]
	return d, ok
}

// ItemKinds lists the item kinds fetched for a sync type, sorted.
func (r *Registry) ItemKinds(syncType model.SyncType) []model.ThirdPartyItemKind {
	var kinds []model.ThirdPartyItemKind
	for _, kind := range r.Kinds(syncType) {
		for _, s := range r.ItemSources(syncType, kind) {
			kinds = append(kinds, s.ItemKind())
		}
	}
	slices.Sort(kinds)
	return kinds
}
