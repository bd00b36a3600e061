// Package control serves the REST control surface and the websocket push
// channel over the sync engine.
package control

import (
	"time"

	"github.com/p-blackswan/roomsync/internal/syncer"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// ExecuteActionRequest is the body of POST /api/v1/actions/:id.
type ExecuteActionRequest struct {
	Options map[string]interface{} `json:"options"`
}

// ExecuteActionResponse wraps an action result.
type ExecuteActionResponse struct {
	syncer.Result
	RequestID string `json:"request_id"`
}

// FeedbackResponse is the body of GET /api/v1/feedbacks/:id.
type FeedbackResponse struct {
	ID    string `json:"id"`
	Value bool   `json:"value"`
}

// VariableResponse is the body of GET /api/v1/variables/:name.
type VariableResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HealthDetailResponse is the body of GET /api/v1/health.
type HealthDetailResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Uptime string            `json:"uptime"`
}

// ActionLogEntry is one row of GET /api/v1/actions/log.
type ActionLogEntry struct {
	Action    string    `json:"action"`
	Caller    string    `json:"caller"`
	Result    string    `json:"result"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PushFrame is a websocket message. The first frame carries the full
// snapshot, later frames only changed values.
type PushFrame struct {
	Snapshot  bool              `json:"snapshot,omitempty"`
	Variables map[string]string `json:"variables"`
}
