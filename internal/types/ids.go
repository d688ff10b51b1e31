// internal/types/ids.go
package types

import (
	"strconv"
	"strings"
)

// ChatID identifies a messenger chat.
type ChatID int64

func (c ChatID) String() string {
	return strconv.FormatInt(int64(c), 10)
}

// ParseChatID parses a decimal chat id. Group chats have negative ids.
func ParseChatID(s string) (ChatID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return ChatID(n), nil
}

// AnswerCallbackPrefix marks button payloads that start the answer flow.
const AnswerCallbackPrefix = "answer_"

// AnswerCallbackData encodes the button payload for answering a question.
func AnswerCallbackData(questionID string) string {
	return AnswerCallbackPrefix + questionID
}

// ParseAnswerCallbackData returns the question id encoded by AnswerCallbackData.
func ParseAnswerCallbackData(data string) (string, bool) {
	if !strings.HasPrefix(data, AnswerCallbackPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(data, AnswerCallbackPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}

// LastPathSegment returns the entity id of a marketplace resource path
// such as "/orders/777".
func LastPathSegment(resource string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(resource), "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
