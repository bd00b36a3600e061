package presentation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/roomsync/internal/boards"
	perrors "github.com/p-blackswan/roomsync/internal/errors"
	"github.com/p-blackswan/roomsync/internal/monday"
)

// BoardQuerier reads a board's items.
type BoardQuerier interface {
	QueryBoard(ctx context.Context, boardID string) ([]monday.BoardItem, error)
}

// Fetcher loads and normalises the presentations of one room.
type Fetcher struct {
	client BoardQuerier
	mode   boards.Mode
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// NewFetcher creates a fetcher. A nil location means time.Local.
func NewFetcher(client BoardQuerier, mode boards.Mode, loc *time.Location, logger zerolog.Logger) *Fetcher {
	if loc == nil {
		loc = time.Local
	}
	return &Fetcher{
		client: client,
		mode:   mode,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "presentations").Logger(),
	}
}

// SetClock overrides the clock used to pick "today".
func (f *Fetcher) SetClock(now func() time.Time) {
	f.now = now
}

// Location returns the configured time zone.
func (f *Fetcher) Location() *time.Location {
	return f.loc
}

// Today returns the local calendar date as YYYY-MM-DD.
func (f *Fetcher) Today() string {
	return f.now().In(f.loc).Format(DateLayout)
}

// GetPresentations returns the room's presentations sorted by start time.
// Unlike the board client it fails loudly: a remote failure is returned as an
// error wrapping ErrUnavailable, while an empty board yields an empty list.
func (f *Fetcher) GetPresentations(ctx context.Context, boardID, roomID string) ([]Presentation, error) {
	if boardID == "" || roomID == "" {
		return nil, fmt.Errorf("presentations: board %q room %q: %w", boardID, roomID, perrors.ErrInvalidInput)
	}

	items, err := f.client.QueryBoard(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("presentations: query board %s: %w: %w", boardID, perrors.ErrUnavailable, err)
	}

	now := f.now().In(f.loc)
	list := Normalize(items, roomID, f.mode, now, f.loc, f.logger)

	f.logger.Debug().
		Str("board", boardID).
		Str("room", roomID).
		Int("items", len(items)).
		Int("presentations", len(list)).
		Msg("presentations fetched")
	return list, nil
}

// Normalize filters board items to one room, applies the mode's date filter,
// parses times and sorts the result. Records with unparseable times are
// dropped.
func Normalize(items []monday.BoardItem, roomID string, mode boards.Mode, now time.Time, loc *time.Location, logger zerolog.Logger) []Presentation {
	today := now.In(loc).Format(DateLayout)
	list := make([]Presentation, 0, len(items))

	for _, item := range items {
		fields := mode.Presentations.Extract(item.Fields)

		linked := fields.LinkedIDs(boards.KeyRoomLink)
		if len(linked) == 0 || linked[0] != roomID {
			continue
		}

		sessionDate := fields.Value(boards.KeySessionDate)
		if !mode.Admit(sessionDate, today) {
			continue
		}

		p, err := fromFields(item, fields, sessionDate, now, loc)
		if err != nil {
			logger.Warn().Err(err).Str("item", item.ID).Str("name", item.Name).Msg("skipping presentation")
			continue
		}
		p.RoomID = linked[0]
		list = append(list, p)
	}

	Sort(list)
	return list
}

// Sort orders presentations by start time, breaking ties by id.
func Sort(list []Presentation) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].StartTime.Equal(list[j].StartTime) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartTime.Before(list[j].StartTime)
	})
}

func fromFields(item monday.BoardItem, fields boards.Fields, sessionDate string, now time.Time, loc *time.Location) (Presentation, error) {
	day := now
	if sessionDate != "" {
		d, err := ParseDate(sessionDate, loc)
		if err != nil {
			return Presentation{}, fmt.Errorf("session date %q: %w", sessionDate, err)
		}
		day = d
	}

	start, err := clockField(fields, boards.KeyStartTime, day, loc)
	if err != nil {
		return Presentation{}, fmt.Errorf("start time: %w", err)
	}
	end, err := clockField(fields, boards.KeyEndTime, day, loc)
	if err != nil {
		return Presentation{}, fmt.Errorf("end time: %w", err)
	}

	return Presentation{
		ID:                   item.ID,
		Name:                 item.Name,
		Presenter:            fields.Text(boards.KeyPresenter),
		Designation:          fields.Text(boards.KeyDesignation),
		SessionDate:          sessionDate,
		StartTime:            start,
		EndTime:              end,
		AllowDemo:            FlagOf(fields.Checkbox(boards.KeyAllowDemo)),
		Record:               FlagOf(fields.Checkbox(boards.KeyRecord)),
		Stream:               FlagOf(fields.Checkbox(boards.KeyStream)),
		StreamAddress:        fields.Text(boards.KeyStreamAddress),
		FilePath:             fields.Text(boards.KeyFilePath),
		PresenterPassword:    fields.Value(boards.KeyPresenterPassword),
		SpeakerReadyFilePath: fields.Text(boards.KeySpeakerReadyFilePath),
	}, nil
}

// hourValue is the raw JSON of an hour column.
type hourValue struct {
	Hour   *int `json:"hour"`
	Minute *int `json:"minute"`
}

// clockField parses an hour column from its text, falling back to the raw
// {"hour","minute"} value.
func clockField(fields boards.Fields, key boards.Key, day time.Time, loc *time.Location) (time.Time, error) {
	t, err := ParseClock(fields.Text(key), day, loc)
	if err == nil {
		return t, nil
	}
	if v, ok := boards.Decode[hourValue](fields.Raw(key)); ok && v.Hour != nil {
		minute := 0
		if v.Minute != nil {
			minute = *v.Minute
		}
		if *v.Hour < 0 || *v.Hour > 23 || minute < 0 || minute > 59 {
			return time.Time{}, fmt.Errorf("hour value %d:%02d out of range: %w", *v.Hour, minute, perrors.ErrInvalidInput)
		}
		y, m, d := day.In(loc).Date()
		return time.Date(y, m, d, *v.Hour, minute, 0, 0, loc), nil
	}
	return time.Time{}, err
}
