package ratelimit

import "fmt"

// IdentityKey builds the limiter key for an inbound update. Limits apply
// per sender; updates without a resolvable sender fall back to the chat so
// anonymous channel posts still share one window per conversation.
func IdentityKey(senderID, chatID int64) string {
	if senderID != 0 {
		return fmt.Sprintf("u:%d", senderID)
	}
	if chatID != 0 {
		return fmt.Sprintf("c:%d", chatID)
	}
	return ""
}
