// Package boards maps raw board column ids to semantic keys. All magic column
// ids live in Layout; the rest of the code reads fields through a Table.
package boards

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/p-blackswan/roomsync/internal/monday"
)

// Key is the semantic name of a board column.
type Key string

// Projects board.
const (
	KeyProjectBoardID Key = "project_board_id"
)

// Project overview item.
const (
	KeySyncStatus        Key = "sync_status"
	KeyPresentationBoard Key = "presentation_board"
	KeyDashboardBoard    Key = "dashboard_board"
	KeyProjectID         Key = "project_id"
	KeyHelpRequestsBoard Key = "help_requests_board"
	KeyRoomInfoBoard     Key = "room_info_board"
	KeyProjectLogistics  Key = "project_logistics_board"
)

// Room info board.
const (
	KeyAssignedTerminals Key = "assigned_terminals"
)

// Presentation management board.
const (
	KeyRoomLink             Key = "room_link"
	KeyPresenter            Key = "presenter"
	KeyDesignation          Key = "designation"
	KeySessionDate          Key = "session_date"
	KeyStartTime            Key = "start_time"
	KeyEndTime              Key = "end_time"
	KeyAllowDemo            Key = "allow_demo"
	KeyRecord               Key = "record"
	KeyStream               Key = "stream"
	KeyStreamAddress        Key = "stream_address"
	KeyFilePath             Key = "file_path"
	KeyPresenterPassword    Key = "presenter_password"
	KeySpeakerReadyFilePath Key = "speaker_ready_file_path"
)

// Help requests board.
const (
	KeyHelpTimestamp Key = "help_timestamp"
	KeyHelpStatus    Key = "help_status"
)

// CheckboxMarker is the text a checked checkbox column renders as.
const CheckboxMarker = "v"

// Table maps column ids to semantic keys.
type Table map[string]Key

// Fields holds the known columns of one item, keyed semantically.
type Fields map[Key]monday.ColumnValue

// Extract picks the columns named by the table out of a field list. Unknown
// columns are ignored.
func (t Table) Extract(fields []monday.ColumnValue) Fields {
	out := make(Fields, len(t))
	for _, f := range fields {
		if key, ok := t[f.ID]; ok {
			out[key] = f
		}
	}
	return out
}

// Has reports whether the column was present.
func (f Fields) Has(key Key) bool {
	_, ok := f[key]
	return ok
}

// Text returns the display text of a column, or monday.NotAvailable.
func (f Fields) Text(key Key) string {
	v, ok := f[key]
	if !ok || v.Text == "" {
		return monday.NotAvailable
	}
	return v.Text
}

// Raw returns the raw JSON value of a column, or monday.NotAvailable.
func (f Fields) Raw(key Key) string {
	v, ok := f[key]
	if !ok || v.RawValue == "" {
		return monday.NotAvailable
	}
	return v.RawValue
}

// Value returns the text of a column, falling back to the unquoted raw value.
// Empty and unavailable values yield "".
func (f Fields) Value(key Key) string {
	if text := f.Text(key); text != monday.NotAvailable {
		return strings.TrimSpace(text)
	}
	raw := f.Raw(key)
	if raw == monday.NotAvailable {
		return ""
	}
	if s, ok := Decode[string](raw); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(strings.ReplaceAll(raw, `"`, ""))
}

// Checkbox converts a checkbox column using the "v" convention.
func (f Fields) Checkbox(key Key) bool {
	return f.Text(key) == CheckboxMarker
}

// LinkedIDs decodes the linked record ids of a connect-boards column.
func (f Fields) LinkedIDs(key Key) []string {
	return LinkedIDs(f.Raw(key))
}

// Decode parses a JSON raw value, reporting ok=false instead of failing.
func Decode[T any](raw string) (T, bool) {
	var v T
	if raw == "" || raw == monday.NotAvailable {
		return v, false
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// DecodeOr parses a JSON raw value and returns def on any failure.
func DecodeOr[T any](raw string, def T) T {
	if v, ok := Decode[T](raw); ok {
		return v
	}
	return def
}

type linkedPulses struct {
	LinkedPulseIDs []struct {
		LinkedPulseID json.Number `json:"linkedPulseId"`
	} `json:"linkedPulseIds"`
}

// LinkedIDs extracts linkedPulseIds from a connect-boards raw value. Any parse
// failure yields nil.
func LinkedIDs(raw string) []string {
	decoded := DecodeOr(raw, linkedPulses{})
	if len(decoded.LinkedPulseIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(decoded.LinkedPulseIDs))
	for _, l := range decoded.LinkedPulseIDs {
		if id := l.LinkedPulseID.String(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsNumericID reports whether s looks like a board or item id.
func IsNumericID(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
