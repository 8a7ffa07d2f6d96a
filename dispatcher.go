package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack/slackevents"
)

type Outcome int

const (
	Acknowledged Outcome = iota
	Rejected
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Acknowledged:
		return "acknowledged"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthorized    Reason = "unauthorized"
	ReasonBadRequest      Reason = "bad_request"
	ReasonIgnored         Reason = "ignored"
	ReasonMissingFields   Reason = "missing_fields"
	ReasonMessageNotFound Reason = "message_not_found"
	ReasonStoreError      Reason = "store_error"
	ReasonInternal        Reason = "internal"
)

type DispatchResult struct {
	Outcome         Outcome
	Reason          Reason
	URLVerification bool
	Challenge       string
	RecordID        string
}

func acknowledged(reason Reason) DispatchResult {
	return DispatchResult{Outcome: Acknowledged, Reason: reason}
}

func rejected(reason Reason) DispatchResult {
	return DispatchResult{Outcome: Rejected, Reason: reason}
}

func failed(reason Reason) DispatchResult {
	return DispatchResult{Outcome: Failed, Reason: reason}
}

const (
	headerTimestamp = "X-Slack-Request-Timestamp"
	headerSignature = "X-Slack-Signature"
	headerRetryNum  = "X-Slack-Retry-Num"
)

type DispatcherDeps struct {
	SigningSecret string
	BotToken      string
	Router        *Router
	Resolver      *MessageResolver
	Enricher      *Enricher
	Store         RecordStore
	Notifier      Notifier
	Now           func() time.Time
}

// Dispatcher runs one reaction delivery through verify, route, resolve, enrich,
// build and submit. It holds no mutable state and is safe for concurrent use.
type Dispatcher struct {
	signingSecret string
	botToken      string
	router        *Router
	resolver      *MessageResolver
	enricher      *Enricher
	store         RecordStore
	notifier      Notifier
	now           func() time.Time
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		signingSecret: deps.SigningSecret,
		botToken:      deps.BotToken,
		router:        deps.Router,
		resolver:      deps.Resolver,
		enricher:      deps.Enricher,
		store:         deps.Store,
		notifier:      deps.Notifier,
		now:           now,
	}
}

func recoverInto(result *DispatchResult) {
	if r := recover(); r != nil {
		Error("Recovered from panic while dispatching event: %v", r)
		*result = failed(ReasonInternal)
	}
}

// Dispatch handles a signed HTTP delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte, headers http.Header) (result DispatchResult) {
	defer recoverInto(&result)

	if !verifyRequest(body, headers, d.signingSecret, d.now()) {
		Warn("Rejected Slack request with missing, invalid or stale signature")
		return rejected(ReasonUnauthorized)
	}
	if retry := headers.Get(headerRetryNum); retry != "" {
		Info("Slack redelivery attempt %s", retry)
	}
	return d.HandlePayload(ctx, body)
}

// HandlePayload handles an Events API envelope whose origin is already trusted.
func (d *Dispatcher) HandlePayload(ctx context.Context, body []byte) (result DispatchResult) {
	defer recoverInto(&result)

	var envelope EventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		Error("Failed to parse event payload: %v", err)
		return rejected(ReasonBadRequest)
	}

	switch envelope.Type {
	case slackevents.URLVerification:
		Info("URL verification challenge received")
		return DispatchResult{Outcome: Acknowledged, URLVerification: true, Challenge: envelope.Challenge}
	case slackevents.CallbackEvent:
	default:
		Debug("Ignoring envelope type %q", envelope.Type)
		return acknowledged(ReasonIgnored)
	}

	switch envelope.Event.Type {
	case string(slackevents.ReactionAdded):
		return d.HandleReaction(ctx, newReactionEvent(envelope))
	case string(slackevents.ReactionRemoved):
		Info("Slack event: reaction_removed user=%s channel=%s reaction=%s", envelope.Event.User, envelope.Event.Item.Channel, envelope.Event.Reaction)
		return acknowledged(ReasonIgnored)
	default:
		Info("Unhandled event type: %s", envelope.Event.Type)
		return acknowledged(ReasonIgnored)
	}
}

// HandleReaction runs a reaction_added event from routing onwards.
func (d *Dispatcher) HandleReaction(ctx context.Context, ev ReactionEvent) (result DispatchResult) {
	defer recoverInto(&result)

	log := logger.With().
		Str("delivery_id", uuid.NewString()).
		Str("reaction", ev.Emoji).
		Str("user_id", ev.UserID).
		Str("channel_id", ev.ChannelID).
		Str("message_ts", ev.MessageTs).
		Logger()
	log.Info().Msg("Slack event: reaction_added")

	rule, ok := d.router.Route(ev.Emoji)
	if !ok {
		log.Debug().Msg("Ignoring reaction with no destination rule")
		return acknowledged(ReasonIgnored)
	}

	if ev.UserID == "" || ev.ChannelID == "" || ev.MessageTs == "" {
		log.Error().Msg("Missing required fields in reaction event")
		return failed(ReasonMissingFields)
	}

	msg, err := d.resolver.Resolve(ctx, MessageRef{ChannelID: ev.ChannelID, Ts: ev.MessageTs, ThreadTs: ev.ThreadTs})
	if err != nil {
		log.Warn().Err(err).Msg("Could not retrieve message")
		return failed(ReasonMessageNotFound)
	}
	if msg == nil {
		log.Warn().Str("thread_ts", ev.ThreadTs).Msg("Message not found")
		return failed(ReasonMessageNotFound)
	}
	if msg.Text == "" {
		if rule.RequireText {
			log.Warn().Msg("Message has no text content and the destination requires text")
			return failed(ReasonMessageNotFound)
		}
		log.Info().Int("files", len(msg.Files)).Msg("Message has no text content")
	}

	evCtx := d.enricher.Enrich(ctx, ev.UserID, ev.ChannelID)
	assignee, _ := d.enricher.LookupAssignee(ev.UserID)
	attachments := extractAttachments(msg.Files, d.botToken)

	record, _ := buildRecord(rule, recordInput{
		Text:        msg.Text,
		Assignee:    assignee,
		Attachments: attachments,
	})

	log = log.With().
		Str("reactor_user", evCtx.ActorName).
		Str("channel_name", evCtx.ChannelName).
		Str("message_author", msg.AuthorID).
		Str("found_via", string(msg.FoundVia)).
		Int("attachments", len(attachments)).
		Str("table", rule.TableID).
		Logger()
	log.Info().Msgf("Processing :%s: reaction", rule.Emoji)

	recordID, err := d.store.CreateRecord(ctx, record.BaseID, record.TableID, record.Fields)
	if err != nil {
		log.Error().Err(err).Str("message_preview", preview(msg.Text)).Msg("Failed to create record")
		return failed(ReasonStoreError)
	}

	log.Info().Str("record_id", recordID).Str("message_preview", preview(msg.Text)).Msg("Record created")
	d.notify(ctx, log, RecordNotice{
		RecordID:  recordID,
		Emoji:     rule.Emoji,
		TableID:   rule.TableID,
		ChannelID: ev.ChannelID,
		MessageTs: ev.MessageTs,
		ThreadTs:  msg.ThreadTs,
		ActorName: evCtx.ActorName,
	})

	return DispatchResult{Outcome: Acknowledged, RecordID: recordID}
}

func (d *Dispatcher) notify(ctx context.Context, log zerolog.Logger, notice RecordNotice) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.RecordCreated(ctx, notice); err != nil {
		log.Warn().Err(err).Msg("Failed to queue confirmation")
	}
}
