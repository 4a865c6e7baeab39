package messaging

import (
	"strings"
	"time"

	"github.com/wolfman30/booking-assistant/internal/conversation"
)

// EventMessagesUpsert is the Evolution event for a new message.
const EventMessagesUpsert = "messages.upsert"

// WebhookPayload is the subset of an Evolution API webhook the assistant reads.
type WebhookPayload struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance"`
	Data     WebhookData `json:"data"`
}

type WebhookData struct {
	Key struct {
		RemoteJID string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	PushName string `json:"pushName"`
	Message  struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		AudioMessage *struct {
			Transcript string `json:"transcript"`
		} `json:"audioMessage"`
	} `json:"message"`
	// SpeechToText is filled by the gateway's transcription integration.
	SpeechToText     string `json:"speechToText"`
	MessageTimestamp int64  `json:"messageTimestamp"`
}

// Text returns the message body and whether it came from a voice note.
func (d WebhookData) Text() (string, conversation.Kind) {
	if t := strings.TrimSpace(d.Message.Conversation); t != "" {
		return t, conversation.KindText
	}
	if t := strings.TrimSpace(d.Message.ExtendedTextMessage.Text); t != "" {
		return t, conversation.KindText
	}
	if t := strings.TrimSpace(d.SpeechToText); t != "" {
		return t, conversation.KindAudioTranscribed
	}
	if d.Message.AudioMessage != nil {
		if t := strings.TrimSpace(d.Message.AudioMessage.Transcript); t != "" {
			return t, conversation.KindAudioTranscribed
		}
	}
	return "", conversation.KindText
}

// Phone returns the sender's number from the JID, or "" for groups.
func (d WebhookData) Phone() string {
	jid := d.Key.RemoteJID
	if strings.HasSuffix(jid, "@g.us") {
		return ""
	}
	user, _, _ := strings.Cut(jid, "@")
	user, _, _ = strings.Cut(user, ":")
	return user
}

// SentAt converts the unix timestamp, defaulting to fallback.
func (d WebhookData) SentAt(fallback time.Time) time.Time {
	if d.MessageTimestamp <= 0 {
		return fallback
	}
	return time.Unix(d.MessageTimestamp, 0).UTC()
}
