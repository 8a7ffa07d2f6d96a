package main

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

type payloadHandler interface {
	HandlePayload(ctx context.Context, body []byte) DispatchResult
}

// subscribeToReactions consumes Events API envelopes that an upstream relay has
// already verified and published to Redis.
func subscribeToReactions(ctx context.Context, rdb *redis.Client, handler payloadHandler, config Config) {
	pubsub := rdb.Subscribe(ctx, config.RedisReactionChannel)
	defer pubsub.Close()

	Info("Subscribed to Redis channel: %s", config.RedisReactionChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				Warn("Redis channel %s closed", config.RedisReactionChannel)
				return
			}
			if msg == nil {
				continue
			}
			handleRelayedReaction(ctx, handler, msg.Payload)
		}
	}
}

func handleRelayedReaction(ctx context.Context, handler payloadHandler, payload string) DispatchResult {
	if !json.Valid([]byte(payload)) {
		Error("Error unmarshaling relayed reaction: invalid JSON")
		return rejected(ReasonBadRequest)
	}

	result := handler.HandlePayload(ctx, []byte(payload))
	switch result.Outcome {
	case Failed:
		Error("Relayed reaction failed: %s", result.Reason)
	case Rejected:
		Error("Relayed reaction rejected: %s", result.Reason)
	default:
		Debug("Relayed reaction handled: reason=%q record_id=%q", result.Reason, result.RecordID)
	}
	return result
}

func newRedisClient(ctx context.Context, config Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	Info("Connected to Redis")
	return rdb, nil
}
