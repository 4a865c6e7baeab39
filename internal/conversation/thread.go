package conversation

import (
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAssistant Role = "assistant"
)

// Kind distinguishes typed text from transcribed voice notes.
type Kind string

const (
	KindText             Kind = "text"
	KindAudioTranscribed Kind = "audio_transcribed"
)

// Thread is one customer's conversation with a tenant.
type Thread struct {
	ID             string
	TenantID       string
	ContactPhone   string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Message is an append-only entry in a thread.
type Message struct {
	ID        string
	ThreadID  string
	Role      Role
	Content   string
	Kind      Kind
	CreatedAt time.Time
}

// Transcript renders messages as "Cliente:"/"Assistente:" lines.
func Transcript(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if m.Role == RoleAssistant {
			b.WriteString("Assistente: ")
		} else {
			b.WriteString("Cliente: ")
		}
		b.WriteString(content)
		b.WriteByte('\n')
	}
	return b.String()
}

// CustomerText joins the content of the customer's messages.
func CustomerText(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleCustomer && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// AllText joins every message's content in order.
func AllText(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}
