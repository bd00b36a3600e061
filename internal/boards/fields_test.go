package boards

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/roomsync/internal/monday"
)

func TestTableExtract(t *testing.T) {
	table := Table{"text__1": KeyPresenter, "hour__1": KeyStartTime}
	fields := table.Extract([]monday.ColumnValue{
		{ID: "text__1", Text: "Dr. Smith", RawValue: `"Dr. Smith"`},
		{ID: "hour__1", Text: "9:00 AM", RawValue: `{"hour":9,"minute":0}`},
		{ID: "unrelated", Text: "ignored"},
	})

	assert.Len(t, fields, 2)
	assert.Equal(t, "Dr. Smith", fields.Text(KeyPresenter))
	assert.Equal(t, "9:00 AM", fields.Text(KeyStartTime))
	assert.False(t, fields.Has(KeyEndTime))
	assert.Equal(t, monday.NotAvailable, fields.Text(KeyEndTime))
	assert.Equal(t, monday.NotAvailable, fields.Raw(KeyEndTime))
}

func TestFieldsValue(t *testing.T) {
	fields := Fields{
		KeyProjectBoardID:    {Text: " 1234567 "},
		KeyPresentationBoard: {Text: monday.NotAvailable, RawValue: `"7654321"`},
		KeyRoomInfoBoard:     {Text: monday.NotAvailable, RawValue: monday.NotAvailable},
	}

	assert.Equal(t, "1234567", fields.Value(KeyProjectBoardID))
	assert.Equal(t, "7654321", fields.Value(KeyPresentationBoard))
	assert.Equal(t, "", fields.Value(KeyRoomInfoBoard))
	assert.Equal(t, "", fields.Value(KeyHelpRequestsBoard))
}

func TestFieldsCheckbox(t *testing.T) {
	fields := Fields{
		KeyAllowDemo: {Text: "v"},
		KeyRecord:    {Text: ""},
	}

	assert.True(t, fields.Checkbox(KeyAllowDemo))
	assert.False(t, fields.Checkbox(KeyRecord))
	assert.False(t, fields.Checkbox(KeyStream))
}

func TestLinkedIDs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"single", `{"linkedPulseIds":[{"linkedPulseId":42}]}`, []string{"42"}},
		{"multiple", `{"linkedPulseIds":[{"linkedPulseId":1},{"linkedPulseId":2}]}`, []string{"1", "2"}},
		{"empty list", `{"linkedPulseIds":[]}`, nil},
		{"not available", monday.NotAvailable, nil},
		{"malformed", `{"linkedPulseIds":`, nil},
		{"wrong shape", `"just a string"`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LinkedIDs(tt.raw))
		})
	}
}

func TestDecode(t *testing.T) {
	type timeValue struct {
		Hour   int `json:"hour"`
		Minute int `json:"minute"`
	}

	v, ok := Decode[timeValue](`{"hour":14,"minute":30}`)
	assert.True(t, ok)
	assert.Equal(t, timeValue{Hour: 14, Minute: 30}, v)

	_, ok = Decode[timeValue]("not json")
	assert.False(t, ok)

	_, ok = Decode[timeValue]("")
	assert.False(t, ok)

	assert.Equal(t, 7, DecodeOr("garbage", 7))
	assert.Equal(t, 3, DecodeOr("3", 7))
}

func TestIsNumericID(t *testing.T) {
	assert.True(t, IsNumericID("7885126203"))
	assert.True(t, IsNumericID(" 12 "))
	assert.False(t, IsNumericID(""))
	assert.False(t, IsNumericID("N/A"))
	assert.False(t, IsNumericID("12ab"))
	assert.False(t, IsNumericID("-5"))
}
