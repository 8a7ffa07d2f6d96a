package main

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

const defaultThreadSearchLimit = 100

// MessageRef identifies the reacted-to message. ThreadTs is an optional hint.
type MessageRef struct {
	ChannelID string
	Ts        string
	ThreadTs  string
}

// MessageResolver finds a message by channel and ts. Thread replies cannot be
// fetched through the channel history, so when the direct lookup misses it scans
// the replies of the most recent threads.
type MessageResolver struct {
	api         SlackAPI
	searchLimit int
}

func NewMessageResolver(api SlackAPI, searchLimit int) *MessageResolver {
	if searchLimit <= 0 {
		searchLimit = defaultThreadSearchLimit
	}
	return &MessageResolver{api: api, searchLimit: searchLimit}
}

// Resolve returns nil, nil when the message does not exist in the channel or in
// any thread inside the search window.
func (r *MessageResolver) Resolve(ctx context.Context, ref MessageRef) (*ResolvedMessage, error) {
	msg, err := r.topLevel(ctx, ref)
	if err != nil {
		return nil, err
	}
	if msg != nil {
		return msg, nil
	}

	if ref.ThreadTs != "" && ref.ThreadTs != ref.Ts {
		msg, err := r.inThread(ctx, ref.ChannelID, ref.ThreadTs, ref.Ts)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}

	return r.scanThreads(ctx, ref)
}

func (r *MessageResolver) topLevel(ctx context.Context, ref MessageRef) (*ResolvedMessage, error) {
	resp, err := r.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: ref.ChannelID,
		Oldest:    ref.Ts,
		Latest:    ref.Ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s in %s: %w", ref.Ts, ref.ChannelID, err)
	}
	for _, m := range resp.Messages {
		if m.Timestamp == ref.Ts {
			Debug("Resolved message %s in %s at top level", ref.Ts, ref.ChannelID)
			return toResolved(m, FoundTopLevel), nil
		}
	}
	return nil, nil
}

func (r *MessageResolver) inThread(ctx context.Context, channelID, threadTs, ts string) (*ResolvedMessage, error) {
	replies, _, _, err := r.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTs,
		Inclusive: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch replies of %s in %s: %w", threadTs, channelID, err)
	}
	for _, reply := range replies {
		if reply.Timestamp == ts {
			Debug("Resolved message %s in thread %s of %s", ts, threadTs, channelID)
			return toResolved(reply, FoundInThread), nil
		}
	}
	return nil, nil
}

func (r *MessageResolver) scanThreads(ctx context.Context, ref MessageRef) (*ResolvedMessage, error) {
	resp, err := r.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: ref.ChannelID,
		Limit:     r.searchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history of %s: %w", ref.ChannelID, err)
	}

	scanned := 0
	for _, parent := range resp.Messages {
		if parent.ReplyCount == 0 {
			continue
		}
		scanned++
		msg, err := r.inThread(ctx, ref.ChannelID, parent.Timestamp, ref.Ts)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}

	Debug("Message %s not found in %s after scanning %d threads", ref.Ts, ref.ChannelID, scanned)
	return nil, nil
}
