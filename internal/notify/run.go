package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/user/mlbot/internal/types"
)

// Run tracks the processing of one marketplace notification.
type Run struct {
	ID           string
	Notification types.Notification
	CreatedAt    time.Time
}

// NewRun creates a Run with a fresh id.
func NewRun(n types.Notification) *Run {
	return &Run{
		ID:           uuid.NewString(),
		Notification: n,
		CreatedAt:    time.Now(),
	}
}

// otherLane carries every topic without a lane of its own. Topics come from
// an unauthenticated endpoint, so lanes are never created per arbitrary topic.
const otherLane = "other"

// Lane is the queue lane a run is processed on.
func (r *Run) Lane() string {
	switch r.Notification.Topic {
	case types.TopicQuestions, types.TopicOrders:
		return r.Notification.Topic
	default:
		return otherLane
	}
}
