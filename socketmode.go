package main

import (
	"context"
	"errors"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// socketRunner receives events over a Socket Mode websocket instead of the public
// HTTP endpoint. The socket is authenticated by the app token, so payloads skip
// signature verification.
type socketRunner struct {
	client  *socketmode.Client
	handler payloadHandler
}

func newSocketRunner(api *slack.Client, handler payloadHandler, config Config) (*socketRunner, error) {
	if config.SlackAppToken == "" {
		return nil, errors.New("SLACK_APP_TOKEN is required for Socket Mode")
	}
	if !strings.HasPrefix(config.SlackAppToken, "xapp-") {
		return nil, errors.New("SLACK_APP_TOKEN must start with xapp-")
	}
	return &socketRunner{
		client:  socketmode.New(api),
		handler: handler,
	}, nil
}

func (r *socketRunner) Run(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-r.client.Events:
				if !ok {
					return
				}
				r.handleEvent(ctx, evt)
			}
		}
	}()

	Info("Starting SlackTable in Socket Mode...")
	return r.client.RunContext(ctx)
}

func (r *socketRunner) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		Info("Connecting to Socket Mode...")
	case socketmode.EventTypeConnected:
		Info("Connected to Socket Mode")
	case socketmode.EventTypeConnectionError:
		Error("Socket Mode connection error: %v", evt.Data)
	case socketmode.EventTypeEventsAPI:
		if evt.Request == nil {
			return
		}
		r.client.Ack(*evt.Request)
		payload := evt.Request.Payload
		go func() {
			result := r.handler.HandlePayload(ctx, payload)
			if result.Outcome != Acknowledged {
				Error("Failed to process Socket Mode event: %s (%s)", result.Outcome, result.Reason)
			}
		}()
	case socketmode.EventTypeInteractive, socketmode.EventTypeSlashCommand:
		if evt.Request != nil {
			r.client.Ack(*evt.Request)
		}
	}
}
