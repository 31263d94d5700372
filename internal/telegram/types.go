package telegram

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Update is one inbound event from the Bot API webhook or long poll.
// Only the fields the bot consumes are mapped; unknown fields are ignored.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      *Chat  `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
}

// User identifies the sending account.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat identifies the conversation.
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

// ParseUpdate decodes a raw update payload.
func ParseUpdate(raw []byte) (*Update, error) {
	var update Update
	if errUnmarshal := json.Unmarshal(raw, &update); errUnmarshal != nil {
		return nil, fmt.Errorf("telegram: parse update: %w", errUnmarshal)
	}
	if update.UpdateID == 0 {
		return nil, fmt.Errorf("telegram: parse update: missing update_id")
	}
	return &update, nil
}

// SenderID returns the sending user id, falling back to the chat id.
func (u *Update) SenderID() int64 {
	if u == nil || u.Message == nil {
		return 0
	}
	if u.Message.From != nil && u.Message.From.ID != 0 {
		return u.Message.From.ID
	}
	return u.ChatID()
}

// ChatID returns the conversation id.
func (u *Update) ChatID() int64 {
	if u == nil || u.Message == nil || u.Message.Chat == nil {
		return 0
	}
	return u.Message.Chat.ID
}

// Text returns the message text.
func (u *Update) Text() string {
	if u == nil || u.Message == nil {
		return ""
	}
	return u.Message.Text
}

// Command returns the lowercased bot command without the leading slash,
// or an empty string when the message is not a command.
func (u *Update) Command() string {
	text := strings.TrimSpace(u.Text())
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	command := strings.Fields(text)[0]
	command = strings.TrimPrefix(command, "/")
	// Commands in groups arrive as /command@botname.
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	return strings.ToLower(command)
}

// CommandArgs returns the text following the command token.
func (u *Update) CommandArgs() string {
	text := strings.TrimSpace(u.Text())
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
}
