package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1700000600, 0)

type dispatcherFixture struct {
	api      *fakeSlack
	store    *fakeStore
	notifier *fakeNotifier
	d        *Dispatcher
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		api:      newFakeSlack(),
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
	}
	f.api.addUser("U1", "jane")
	f.api.addChannel("C1", "incidents")
	f.d = NewDispatcher(DispatcherDeps{
		SigningSecret: testSecret,
		BotToken:      testBotToken,
		Router:        newTestRouter(t),
		Resolver:      NewMessageResolver(f.api, 100),
		Enricher:      NewEnricher(f.api, AssigneeMap{"U1": "Jane Doe"}),
		Store:         f.store,
		Notifier:      f.notifier,
		Now:           func() time.Time { return testNow },
	})
	return f
}

func reactionBody(t *testing.T, eventType, emoji, user, channel, ts string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"type":     "event_callback",
		"team_id":  "T1",
		"event_id": "Ev1",
		"event": map[string]interface{}{
			"type":     eventType,
			"user":     user,
			"reaction": emoji,
			"item": map[string]string{
				"type":    "message",
				"channel": channel,
				"ts":      ts,
			},
			"event_ts": "1700000599.000100",
		},
	})
	require.NoError(t, err)
	return body
}

func TestDispatchCreatesRecord(t *testing.T) {
	f := newDispatcherFixture(t)
	f.api.history = []slack.Message{message("1700000200.000100", "U2", "site is down", image("shot.png"))}

	body := reactionBody(t, "reaction_added", "papercut-big", "U1", "C1", "1700000200.000100")
	result := f.d.Dispatch(context.Background(), body, signedHeaders(body, testSecret, testNow))

	assert.Equal(t, Acknowledged, result.Outcome)
	assert.Equal(t, ReasonNone, result.Reason)
	assert.Equal(t, "rec1", result.RecordID)

	require.Equal(t, 1, f.store.calls())
	record := f.store.records[0]
	assert.Equal(t, "appBASE", record.BaseID)
	assert.Equal(t, "tblPapercuts", record.TableID)
	assert.Equal(t, "site is down", record.Fields["Name"])
	assert.Equal(t, "Intake", record.Fields["Status"])
	assert.Equal(t, "lg", record.Fields["Pain Score"])
	assert.Equal(t, "Jane Doe", record.Fields["Assignee"])
	assert.Equal(t, []AttachmentRef{{
		URL:      "https://files.slack.com/files-pri/T1-F1/shot.png?token=" + testBotToken,
		Filename: "shot.png",
	}}, record.Fields["Screenshot 1"])

	require.Len(t, f.notifier.notices, 1)
	notice := f.notifier.notices[0]
	assert.Equal(t, "rec1", notice.RecordID)
	assert.Equal(t, "papercut-big", notice.Emoji)
	assert.Equal(t, "jane", notice.ActorName)
	assert.Equal(t, "1700000200.000100", notice.MessageTs)
}

func TestDispatchRejectsBadSignature(t *testing.T) {
	f := newDispatcherFixture(t)
	body := reactionBody(t, "reaction_added", "fedex", "U1", "C1", "1.0")

	result := f.d.Dispatch(context.Background(), body, signedHeaders(body, "another-secret", testNow))
	assert.Equal(t, rejected(ReasonUnauthorized), result)

	result = f.d.Dispatch(context.Background(), body, signedHeaders(body, testSecret, testNow.Add(-6*time.Minute)))
	assert.Equal(t, rejected(ReasonUnauthorized), result)

	result = f.d.Dispatch(context.Background(), body, http.Header{})
	assert.Equal(t, rejected(ReasonUnauthorized), result)

	assert.Zero(t, f.store.calls())
	assert.Zero(t, f.api.historyCalls)
}

func TestDispatchRejectsMalformedPayload(t *testing.T) {
	f := newDispatcherFixture(t)
	body := []byte(`{"type": "event_callback", "event": `)

	result := f.d.Dispatch(context.Background(), body, signedHeaders(body, testSecret, testNow))
	assert.Equal(t, rejected(ReasonBadRequest), result)
}

func TestDispatchAnswersURLVerification(t *testing.T) {
	f := newDispatcherFixture(t)
	body := []byte(`{"token":"t","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P","type":"url_verification"}`)

	result := f.d.Dispatch(context.Background(), body, signedHeaders(body, testSecret, testNow))
	assert.Equal(t, Acknowledged, result.Outcome)
	assert.True(t, result.URLVerification)
	assert.Equal(t, "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", result.Challenge)

	result = f.d.HandlePayload(context.Background(), []byte(`{"type":"url_verification"}`))
	assert.True(t, result.URLVerification, "an empty challenge is still a verification")
	assert.Empty(t, result.Challenge)
}

func TestHandlePayloadIgnoresUnroutedEvents(t *testing.T) {
	f := newDispatcherFixture(t)
	f.api.history = []slack.Message{message("1700000200.000100", "U2", "hello")}

	cases := map[string][]byte{
		"unknown emoji":    reactionBody(t, "reaction_added", "thumbsup", "U1", "C1", "1700000200.000100"),
		"reaction removed": reactionBody(t, "reaction_removed", "fedex", "U1", "C1", "1700000200.000100"),
		"other event":      reactionBody(t, "message", "", "U1", "C1", "1700000200.000100"),
		"other envelope":   []byte(`{"type":"app_rate_limited","minute_rate_limited":1518467820}`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			result := f.d.HandlePayload(context.Background(), body)
			assert.Equal(t, acknowledged(ReasonIgnored), result)
		})
	}

	assert.Zero(t, f.store.calls())
	assert.Zero(t, f.api.historyCalls, "unrouted events never reach Slack")
}

func TestHandleReactionMissingFields(t *testing.T) {
	f := newDispatcherFixture(t)

	result := f.d.HandleReaction(context.Background(), ReactionEvent{Emoji: "fedex", UserID: "U1", MessageTs: "1.0"})
	assert.Equal(t, failed(ReasonMissingFields), result)

	result = f.d.HandleReaction(context.Background(), ReactionEvent{Emoji: "fedex", ChannelID: "C1", MessageTs: "1.0"})
	assert.Equal(t, failed(ReasonMissingFields), result)

	assert.Zero(t, f.store.calls())
}

func TestHandleReactionMessageNotFound(t *testing.T) {
	f := newDispatcherFixture(t)

	result := f.d.HandleReaction(context.Background(), ReactionEvent{Emoji: "fedex", UserID: "U1", ChannelID: "C1", MessageTs: "1700000200.000100"})
	assert.Equal(t, failed(ReasonMessageNotFound), result)

	f.api.historyErr = errors.New("channel_not_found")
	result = f.d.HandleReaction(context.Background(), ReactionEvent{Emoji: "fedex", UserID: "U1", ChannelID: "C1", MessageTs: "1700000200.000100"})
	assert.Equal(t, failed(ReasonMessageNotFound), result)

	assert.Zero(t, f.store.calls())
	assert.Empty(t, f.notifier.notices)
}

func TestHandleReactionStoreError(t *testing.T) {
	f := newDispatcherFixture(t)
	f.api.history = []slack.Message{message("1700000200.000100", "U2", "site is down")}
	f.store.err = errors.New("INVALID_PERMISSIONS")

	result := f.d.HandleReaction(context.Background(), ReactionEvent{Emoji: "fedex", UserID: "U1", ChannelID: "C1", MessageTs: "1700000200.000100"})
	assert.Equal(t, failed(ReasonStoreError), result)
	assert.Empty(t, f.notifier.notices)
}

func TestHandleReactionStoreErrorLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	saved := logger
	logger = zerolog.New(&buf)
	t.Cleanup(func() { logger = saved })

	f := newDispatcherFixture(t)
	f.api.history = []slack.Message{message("1700000200.000100", "U2", "site is down")}
	f.store.err = errors.New("INVALID_PERMISSIONS")

	result := f.d.HandleReaction(context.Background(), ReactionEvent{Emoji: "fedex", UserID: "U1", ChannelID: "C1", MessageTs: "1700000200.000100"})
	require.Equal(t, failed(ReasonStoreError), result)

	var errorLines []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["level"] == "error" {
			errorLines = append(errorLines, entry)
		}
	}
	require.Len(t, errorLines, 1)
	assert.Equal(t, "site is down", errorLines[0]["message_preview"])
	assert.NotEmpty(t, errorLines[0]["delivery_id"])
	assert.Contains(t, errorLines[0]["error"], "INVALID_PERMISSIONS")
}

func TestHandleReactionRecoversFromPanic(t *testing.T) {
	f := newDispatcherFixture(t)
	f.api.history = []slack.Message{message("1700000200.000100", "U2", "site is down")}
	f.store.panics = true

	body := reactionBody(t, "reaction_added", "fedex", "U1", "C1", "1700000200.000100")
	var result DispatchResult
	assert.NotPanics(t, func() {
		result = f.d.Dispatch(context.Background(), body, signedHeaders(body, testSecret, testNow))
	})
	assert.Equal(t, failed(ReasonInternal), result)
}

func TestHandleReactionRequireText(t *testing.T) {
	f := newDispatcherFixture(t)
	f.api.history = []slack.Message{message("1700000200.000100", "U2", "", image("only.png"))}

	result := f.d.HandleReaction(context.Background(), ReactionEvent{Emoji: "bug-report", UserID: "U1", ChannelID: "C1", MessageTs: "1700000200.000100"})
	assert.Equal(t, failed(ReasonMessageNotFound), result)
	assert.Zero(t, f.store.calls())

	result = f.d.HandleReaction(context.Background(), ReactionEvent{Emoji: "fedex", UserID: "U1", ChannelID: "C1", MessageTs: "1700000200.000100"})
	assert.Equal(t, Acknowledged, result.Outcome)
	require.Equal(t, 1, f.store.calls())
	assert.Equal(t, "", f.store.records[0].Fields["Name"])
	assert.Contains(t, f.store.records[0].Fields, "Screenshot 1")
}

func TestHandleReactionOnThreadReply(t *testing.T) {
	f := newDispatcherFixture(t)
	reply := message("1700000320.000100", "U5", "the reacted reply")
	reply.ThreadTimestamp = "1700000300.000100"
	f.api.history = []slack.Message{
		message("1700000400.000100", "U2", "later message"),
		threadParent("1700000300.000100", "the parent", 1),
	}
	f.api.replies["1700000300.000100"] = []slack.Message{
		threadParent("1700000300.000100", "the parent", 1),
		reply,
	}

	body := reactionBody(t, "reaction_added", ":fedex:", "U1", "C1", "1700000320.000100")
	result := f.d.Dispatch(context.Background(), body, signedHeaders(body, testSecret, testNow))

	require.Equal(t, Acknowledged, result.Outcome)
	require.Equal(t, 1, f.store.calls())
	assert.Equal(t, "tblFedex", f.store.records[0].TableID)
	assert.Equal(t, "the reacted reply", f.store.records[0].Fields["Name"])

	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, "1700000300.000100", f.notifier.notices[0].ThreadTs)
}

func TestHandleReactionNotifierFailureIsNotFatal(t *testing.T) {
	f := newDispatcherFixture(t)
	f.api.history = []slack.Message{message("1700000200.000100", "U2", "site is down")}
	f.notifier.err = errors.New("redis down")

	result := f.d.HandleReaction(context.Background(), ReactionEvent{Emoji: "fedex", UserID: "U1", ChannelID: "C1", MessageTs: "1700000200.000100"})
	assert.Equal(t, Acknowledged, result.Outcome)
	assert.Equal(t, "rec1", result.RecordID)
}

func TestHandleReactionDegradedEnrichment(t *testing.T) {
	f := newDispatcherFixture(t)
	f.api.history = []slack.Message{message("1700000200.000100", "U2", "site is down")}

	result := f.d.HandleReaction(context.Background(), ReactionEvent{Emoji: "fedex", UserID: "U404", ChannelID: "C1", MessageTs: "1700000200.000100"})
	assert.Equal(t, Acknowledged, result.Outcome)
	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, "U404", f.notifier.notices[0].ActorName)
	assert.NotContains(t, f.store.records[0].Fields, "Assignee")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "acknowledged", Acknowledged.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
