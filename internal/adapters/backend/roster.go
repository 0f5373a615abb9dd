package backend

import (
	"context"
	"fmt"

	"github.com/okian/kiosk/internal/domain/model"
)

// Events fetches the event roster.
func (c *Client) Events(ctx context.Context) ([]model.Event, error) {
	var env envelope[[]model.Event]
	if err := c.getJSON(ctx, PathEvents, &env); err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	if env.Data == nil {
		return []model.Event{}, nil
	}
	return env.Data, nil
}

// Employees fetches the user roster used to resolve recognized ids to names.
func (c *Client) Employees(ctx context.Context) ([]model.Employee, error) {
	var env envelope[[]model.Employee]
	if err := c.getJSON(ctx, PathUsers, &env); err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	if env.Data == nil {
		return []model.Employee{}, nil
	}
	return env.Data, nil
}
