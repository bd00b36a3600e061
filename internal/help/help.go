// Package help sends help requests from a room terminal to the crew and
// checks the help requests board for closure.
package help

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// TimestampLayout formats the request timestamp shared with the help board.
const TimestampLayout = time.RFC3339

// Request is the payload sent when a terminal asks for help.
type Request struct {
	ID           string `json:"id"`
	Kit          string `json:"kit"`
	Room         string `json:"room"`
	Group        string `json:"group"`
	Crew         string `json:"crew"`
	BoardID      string `json:"board_id"`
	Timestamp    string `json:"timestamp"`
	Presentation string `json:"presentation"`
}

// NewRequest stamps a request with a fresh id and timestamp.
func NewRequest(now time.Time, kit, room, group, crew, boardID, presentation string) Request {
	return Request{
		ID:           uuid.NewString(),
		Kit:          kit,
		Room:         room,
		Group:        group,
		Crew:         crew,
		BoardID:      boardID,
		Timestamp:    now.Format(TimestampLayout),
		Presentation: presentation,
	}
}

// Notifier delivers a help request.
type Notifier interface {
	Notify(ctx context.Context, req Request) error
}

// WebhookNotifier POSTs the request as JSON. Delivery is attempted once.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier creates a webhook notifier. An empty url disables it.
func NewWebhookNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "help-webhook").Logger(),
	}
}

// Notify sends the request. Returns nil if the URL is empty.
func (w *WebhookNotifier) Notify(ctx context.Context, req Request) error {
	if w.url == "" {
		return nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling help request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating help request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "roomsync-help/1.0")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("help webhook: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("help webhook returned status %d", resp.StatusCode)
	}

	w.logger.Info().
		Str("request_id", req.ID).
		Str("room", req.Room).
		Int("status_code", resp.StatusCode).
		Msg("help request delivered")
	return nil
}

// SlackNotifier posts the request to a Slack incoming webhook.
type SlackNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewSlackNotifier creates a Slack notifier. An empty url disables it.
func NewSlackNotifier(url string, timeout time.Duration, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "help-slack").Logger(),
	}
}

// Notify posts the message. Returns nil if the URL is empty.
func (s *SlackNotifier) Notify(ctx context.Context, req Request) error {
	if s.url == "" {
		return nil
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.url, s.client, SlackMessage(req)); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	s.logger.Info().Str("request_id", req.ID).Str("room", req.Room).Msg("help request posted to slack")
	return nil
}

// SlackMessage renders the request as a Block Kit message.
func SlackMessage(req Request) *slack.WebhookMessage {
	text := fmt.Sprintf("Help requested in room %s", req.Room)

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject("mrkdwn", "*Kit:*\n"+orDash(req.Kit), false, false),
		slack.NewTextBlockObject("mrkdwn", "*Room:*\n"+orDash(req.Room), false, false),
		slack.NewTextBlockObject("mrkdwn", "*Group:*\n"+orDash(req.Group), false, false),
		slack.NewTextBlockObject("mrkdwn", "*Crew:*\n"+orDash(req.Crew), false, false),
		slack.NewTextBlockObject("mrkdwn", "*Presentation:*\n"+orDash(req.Presentation), false, false),
		slack.NewTextBlockObject("mrkdwn", "*Requested:*\n"+req.Timestamp, false, false),
	}

	return &slack.WebhookMessage{
		Text: text,
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", ":rotating_light: "+text, true, false)),
			slack.NewSectionBlock(nil, fields, nil),
			slack.NewContextBlock("",
				slack.NewTextBlockObject("mrkdwn", "Request `"+req.ID+"` on board "+orDash(req.BoardID), false, false),
			),
		}},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Multi fans a request out to several notifiers. Every notifier runs; the
// errors are joined.
type Multi []Notifier

// Notify calls each notifier in order.
func (m Multi) Notify(ctx context.Context, req Request) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
