package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/kiosk/internal/domain/model"
)

type checkInRequest struct {
	UserID    string  `json:"user_id"`
	EventID   string  `json:"event_id"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp string  `json:"timestamp"`
}

// CheckIn records attendance for a recognized employee at an event.
func (c *Client) CheckIn(ctx context.Context, ci model.CheckIn) error {
	body := checkInRequest{
		UserID:    ci.UserID,
		EventID:   ci.EventID,
		Accuracy:  ci.Accuracy,
		Timestamp: ci.At.UTC().Format(time.RFC3339),
	}
	if err := c.postJSON(ctx, PathCheckIn, true, body, nil); err != nil {
		return fmt.Errorf("check in %s: %w", ci.Key(), err)
	}
	return nil
}
