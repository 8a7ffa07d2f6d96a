package main

// EventEnvelope is the outer Events API payload, as delivered over HTTP, Socket Mode
// or the Redis relay.
type EventEnvelope struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	TeamID    string `json:"team_id"`
	EventID   string `json:"event_id"`
	Event     struct {
		Type     string `json:"type"`
		User     string `json:"user"`
		Reaction string `json:"reaction"`
		Item     struct {
			Type     string `json:"type"`
			Channel  string `json:"channel"`
			Ts       string `json:"ts"`
			ThreadTs string `json:"thread_ts"`
		} `json:"item"`
		ItemUser string `json:"item_user"`
		EventTs  string `json:"event_ts"`
	} `json:"event"`
}

// ReactionEvent is the immutable view of one reaction_added delivery.
type ReactionEvent struct {
	Emoji     string
	UserID    string
	ChannelID string
	MessageTs string
	ThreadTs  string
}

func newReactionEvent(envelope EventEnvelope) ReactionEvent {
	return ReactionEvent{
		Emoji:     envelope.Event.Reaction,
		UserID:    envelope.Event.User,
		ChannelID: envelope.Event.Item.Channel,
		MessageTs: envelope.Event.Item.Ts,
		ThreadTs:  envelope.Event.Item.ThreadTs,
	}
}

type FoundVia string

const (
	FoundTopLevel FoundVia = "top_level"
	FoundInThread FoundVia = "thread"
)

type FileRef struct {
	MimeType    string
	PrivateURL  string
	DisplayName string
}

type ResolvedMessage struct {
	Text     string
	AuthorID string
	ThreadTs string
	Files    []FileRef
	FoundVia FoundVia
}

// AttachmentRef serialises to the Airtable attachment object shape.
type AttachmentRef struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type OutboundRecord struct {
	BaseID  string
	TableID string
	Fields  map[string]interface{}
}

type SlackLinerMessage struct {
	Channel  string                 `json:"channel"`
	Text     string                 `json:"text"`
	ThreadTs string                 `json:"thread_ts,omitempty"`
	TTL      int                    `json:"ttl"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type MessageMetadata struct {
	EventType    string                 `json:"event_type"`
	EventPayload map[string]interface{} `json:"event_payload"`
}
