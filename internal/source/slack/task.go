package slack

import (
	"context"
	"fmt"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/store"
)

const taskTitleMaxLen = 50

// ThirdPartyItemIntoTask turns a star or a reaction into a task linking
// back to the Slack item. Defaults come from the matching sync config.
func (a *Adapter) ThirdPartyItemIntoTask(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.CreateOrUpdateTaskRequest, error) {
	var (
		target  model.SlackItem
		removed bool
		pick    func(model.SlackConfig) model.TaskDefaults
	)
	switch data := item.Data.(type) {
	case *model.SlackStar:
		target, removed = data.Item, data.State == model.SlackStarRemoved
		pick = func(c model.SlackConfig) model.TaskDefaults { return c.StarConfig.TaskDefaults }
	case *model.SlackReaction:
		target, removed = data.Item, data.State == model.SlackReactionRemoved
		pick = func(c model.SlackConfig) model.TaskDefaults { return c.ReactionConfig.TaskDefaults }
	default:
		return nil, fmt.Errorf("slack: unexpected item kind %s", item.Kind())
	}

	var defaults model.TaskDefaults
	token, err := a.conns.FindAccessToken(ctx, tx, model.ProviderSlack, userID)
	if err != nil {
		return nil, err
	}
	if token != nil && token.Connection.Config.Slack != nil {
		defaults = pick(*token.Connection.Config.Slack)
	}

	now := a.now().UTC()
	req := &model.CreateOrUpdateTaskRequest{
		Title:      fmt.Sprintf("[%s](%s)", truncate(target.Title(), taskTitleMaxLen), target.HTMLURL()),
		Body:       target.Content(),
		Status:     model.TaskActive,
		Priority:   model.PriorityP4,
		Project:    defaults.Project,
		Kind:       model.ProviderSlack,
		SourceItem: item,
	}
	if defaults.Priority != nil {
		req.Priority = *defaults.Priority
	}
	if defaults.DueInDays != nil {
		req.DueAt = model.DueInDays(now, *defaults.DueInDays)
	}
	if removed {
		req.Status = model.TaskDone
		req.CompletedAt = &now
	}
	return req, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// CompleteTask removes the star or the reaction the task comes from.
func (a *Adapter) CompleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error {
	sess, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	switch data := item.Data.(type) {
	case *model.SlackStar:
		return sess.removeStar(ctx, data.Item)
	case *model.SlackReaction:
		return sess.removeReaction(ctx, data)
	}
	return fmt.Errorf("slack: unexpected item kind %s", item.Kind())
}

// DeleteTask behaves like CompleteTask.
func (a *Adapter) DeleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error {
	return a.CompleteTask(ctx, tx, item, userID)
}

// UncompleteTask puts the star or the reaction back.
func (a *Adapter) UncompleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error {
	sess, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	switch data := item.Data.(type) {
	case *model.SlackStar:
		return sess.addStar(ctx, data.Item)
	case *model.SlackReaction:
		return sess.addReaction(ctx, data)
	}
	return fmt.Errorf("slack: unexpected item kind %s", item.Kind())
}

// UpdateTask is a no-op, a star has nothing to edit.
func (a *Adapter) UpdateTask(context.Context, *store.Tx, model.ThirdPartyItem, model.TaskPatch, string) error {
	return nil
}
