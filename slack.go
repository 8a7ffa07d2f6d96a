package main

import (
	"context"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// SlackAPI is the subset of the Slack Web API the pipeline reads from.
// *slack.Client satisfies it.
type SlackAPI interface {
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
}

func newSlackClient(config Config) *slack.Client {
	options := []slack.Option{
		slack.OptionHTTPClient(&http.Client{Timeout: config.HTTPTimeout}),
	}
	if config.SlackAppToken != "" {
		options = append(options, slack.OptionAppLevelToken(config.SlackAppToken))
	}
	return slack.New(config.SlackBotToken, options...)
}

// checkSlackAuth logs the bot identity. A failure is logged, not fatal; lookups
// will degrade on their own if the token is bad.
func checkSlackAuth(ctx context.Context, client *slack.Client) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := client.AuthTestContext(ctx)
	if err != nil {
		Error("Slack auth test failed: %v", err)
		return
	}
	Info("Slack client initialized: bot_user_id=%s team_id=%s", resp.UserID, resp.TeamID)
}

func filesOf(msg slack.Message) []FileRef {
	if len(msg.Files) == 0 {
		return nil
	}
	files := make([]FileRef, 0, len(msg.Files))
	for _, f := range msg.Files {
		files = append(files, FileRef{
			MimeType:    f.Mimetype,
			PrivateURL:  f.URLPrivate,
			DisplayName: f.Name,
		})
	}
	return files
}

func toResolved(msg slack.Message, via FoundVia) *ResolvedMessage {
	return &ResolvedMessage{
		Text:     msg.Text,
		AuthorID: msg.User,
		ThreadTs: msg.ThreadTimestamp,
		Files:    filesOf(msg),
		FoundVia: via,
	}
}
