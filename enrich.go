package main

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"
)

type EventContext struct {
	ActorName   string
	ChannelName string
}

// Enricher resolves display names for log and record context. Lookups never
// fail the event: a failed lookup falls back to the raw ID.
type Enricher struct {
	api       SlackAPI
	assignees AssigneeMap
}

func NewEnricher(api SlackAPI, assignees AssigneeMap) *Enricher {
	if assignees == nil {
		assignees = AssigneeMap{}
	}
	return &Enricher{api: api, assignees: assignees}
}

func (e *Enricher) Enrich(ctx context.Context, actorID, channelID string) EventContext {
	out := EventContext{ActorName: actorID, ChannelName: channelID}

	var g errgroup.Group
	g.Go(func() error {
		user, err := e.api.GetUserInfoContext(ctx, actorID)
		if err != nil {
			return fmt.Errorf("user %s: %w", actorID, err)
		}
		if user != nil && user.Name != "" {
			out.ActorName = user.Name
		}
		return nil
	})
	g.Go(func() error {
		channel, err := e.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
		if err != nil {
			return fmt.Errorf("channel %s: %w", channelID, err)
		}
		if channel != nil && channel.Name != "" {
			out.ChannelName = channel.Name
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		Warn("Context lookup degraded, falling back to raw IDs: %v", err)
	}

	return out
}

func (e *Enricher) LookupAssignee(actorID string) (string, bool) {
	return e.assignees.Lookup(actorID)
}
