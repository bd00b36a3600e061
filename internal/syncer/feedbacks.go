package syncer

import (
	"errors"
	"fmt"
	"time"

	"github.com/p-blackswan/roomsync/internal/variables"
)

// Feedback ids.
const (
	FeedbackCurrentActive = "current_presentation_active"
	FeedbackNearingEnd    = "presentation_nearing_end"
	FeedbackAutoSync      = "auto_sync_status"
	FeedbackTimeMode      = "time_mode_status"
	FeedbackSyncStatus    = "sync_status"
	FeedbackHelpRequest   = "help_request_status"
)

// NearingEndWindow is how close to the end a begun presentation must be for
// presentation_nearing_end to hold.
const NearingEndWindow = 5 * time.Minute

// ErrUnknownFeedback is returned for an unregistered feedback id.
var ErrUnknownFeedback = errors.New("unknown feedback")

// FeedbackInfo describes a boolean predicate the host can bind to a button.
type FeedbackInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Options     []Option `json:"options,omitempty"`
}

var feedbacks = []FeedbackInfo{
	{ID: FeedbackCurrentActive, Name: "Current Presentation Active", Description: "A current presentation is resolved."},
	{ID: FeedbackNearingEnd, Name: "Presentation Nearing End", Description: "The begun presentation ends within five minutes."},
	{ID: FeedbackAutoSync, Name: "Auto Sync Enabled", Description: "Remote polling is on."},
	{ID: FeedbackTimeMode, Name: "Time Mode Enabled", Description: "The clock drives the current presentation."},
	{ID: FeedbackSyncStatus, Name: "Sync Status", Description: "The board sync status equals the selected value.",
		Options: []Option{{
			ID:      "status",
			Label:   "Status",
			Choices: []string{variables.StatusSynced, variables.StatusOffline, variables.StatusFailed, variables.StatusUnsynced},
			Default: variables.StatusSynced,
		}}},
	{ID: FeedbackHelpRequest, Name: "Help Request Status", Description: "The help request status equals the selected value.",
		Options: []Option{{
			ID:      "status",
			Label:   "Status",
			Choices: []string{variables.HelpRequested, variables.HelpNotRequested},
			Default: variables.HelpRequested,
		}}},
}

// Feedbacks lists the registered feedbacks.
func (o *Orchestrator) Feedbacks() []FeedbackInfo {
	return append([]FeedbackInfo(nil), feedbacks...)
}

// Evaluate computes a feedback against the current session.
func (o *Orchestrator) Evaluate(id string, opts map[string]string) (bool, error) {
	snap := o.session.snapshot()
	switch id {
	case FeedbackCurrentActive:
		return snap.Triple.Current != nil, nil
	case FeedbackNearingEnd:
		if !snap.Began || snap.BeganEnd.IsZero() {
			return false, nil
		}
		remaining := snap.BeganEnd.Sub(o.now())
		return remaining >= 0 && remaining <= NearingEndWindow, nil
	case FeedbackAutoSync:
		return snap.AutoSync, nil
	case FeedbackTimeMode:
		return snap.TimeMode, nil
	case FeedbackSyncStatus:
		return snap.Status == optionOr(opts, "status", variables.StatusSynced), nil
	case FeedbackHelpRequest:
		return snap.HelpStatus == optionOr(opts, "status", variables.HelpRequested), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownFeedback, id)
	}
}

func optionOr(opts map[string]string, key, def string) string {
	if v, ok := opts[key]; ok && v != "" {
		return v
	}
	return def
}
