package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const recordCreatedEventType = "slacktable_record_created"

// Notifier is told about every record that was created.
type Notifier interface {
	RecordCreated(ctx context.Context, notice RecordNotice) error
}

type RecordNotice struct {
	RecordID  string
	Emoji     string
	TableID   string
	ChannelID string
	MessageTs string
	ThreadTs  string
	ActorName string
}

// slackLinerNotifier queues a threaded confirmation for SlackLiner to post.
type slackLinerNotifier struct {
	rdb  redis.Cmdable
	list string
	ttl  int
}

func newSlackLinerNotifier(rdb redis.Cmdable, config Config) *slackLinerNotifier {
	return &slackLinerNotifier{
		rdb:  rdb,
		list: config.RedisSlackLinerList,
		ttl:  int(config.ConfirmationTTL.Seconds()),
	}
}

func buildConfirmation(notice RecordNotice, ttl int) SlackLinerMessage {
	threadTs := notice.ThreadTs
	if threadTs == "" {
		threadTs = notice.MessageTs
	}

	metadata := MessageMetadata{
		EventType: recordCreatedEventType,
		EventPayload: map[string]interface{}{
			"record_id":  notice.RecordID,
			"emoji":      notice.Emoji,
			"table":      notice.TableID,
			"channel":    notice.ChannelID,
			"message_ts": notice.MessageTs,
		},
	}

	return SlackLinerMessage{
		Channel:  notice.ChannelID,
		Text:     fmt.Sprintf("✅ Added to *%s* by @%s via :%s:", notice.TableID, notice.ActorName, notice.Emoji),
		ThreadTs: threadTs,
		TTL:      ttl,
		Metadata: map[string]interface{}{
			"event_type":    metadata.EventType,
			"event_payload": metadata.EventPayload,
		},
	}
}

func (n *slackLinerNotifier) RecordCreated(ctx context.Context, notice RecordNotice) error {
	payload, err := json.Marshal(buildConfirmation(notice, n.ttl))
	if err != nil {
		return fmt.Errorf("failed to marshal SlackLiner message: %w", err)
	}
	if err := n.rdb.RPush(ctx, n.list, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to SlackLiner list: %w", err)
	}
	Debug("Confirmation queued for record %s", notice.RecordID)
	return nil
}
