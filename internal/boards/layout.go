package boards

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layout names every board and column id the engine reads. Defaults match the
// production workspace; a YAML file can override any subset.
type Layout struct {
	// ProjectsBoardID is the fixed board listing all projects.
	ProjectsBoardID string `yaml:"projects_board_id"`

	// KitsBoardID is the fixed board listing selectable kits.
	KitsBoardID string `yaml:"kits_board_id"`

	// SyncingStatus is the project overview status text that enables discovery.
	SyncingStatus string `yaml:"syncing_status"`

	// ClosedStatus is the help request status text that clears a request.
	ClosedStatus string `yaml:"closed_status"`

	Projects        ProjectsColumns        `yaml:"projects"`
	ProjectOverview ProjectOverviewColumns `yaml:"project_overview"`
	RoomInfo        RoomInfoColumns        `yaml:"room_info"`
	Presentations   PresentationColumns    `yaml:"presentations"`
	HelpRequests    HelpRequestColumns     `yaml:"help_requests"`
}

// ProjectsColumns are the column ids of the projects board.
type ProjectsColumns struct {
	ProjectBoardID string `yaml:"project_board_id"`
}

// ProjectOverviewColumns are the column ids of a project overview item.
type ProjectOverviewColumns struct {
	SyncStatus        string `yaml:"sync_status"`
	PresentationBoard string `yaml:"presentation_board"`
	DashboardBoard    string `yaml:"dashboard_board"`
	ProjectID         string `yaml:"project_id"`
	HelpRequestsBoard string `yaml:"help_requests_board"`
	RoomInfoBoard     string `yaml:"room_info_board"`
	ProjectLogistics  string `yaml:"project_logistics_board"`
}

// RoomInfoColumns are the column ids of the room info board.
type RoomInfoColumns struct {
	KitAssigned          string `yaml:"kit_assigned"`
	SpeakerReadyAssigned string `yaml:"speaker_ready_assigned"`
}

// PresentationColumns are the column ids of the presentation management board.
type PresentationColumns struct {
	RoomKit              string `yaml:"room_kit"`
	RoomSpeakerReady     string `yaml:"room_speaker_ready"`
	Presenter            string `yaml:"presenter"`
	Designation          string `yaml:"designation"`
	SessionDate          string `yaml:"session_date"`
	StartTime            string `yaml:"start_time"`
	EndTime              string `yaml:"end_time"`
	AllowDemo            string `yaml:"allow_demo"`
	Record               string `yaml:"record"`
	Stream               string `yaml:"stream"`
	StreamAddress        string `yaml:"stream_address"`
	FilePath             string `yaml:"file_path"`
	PresenterPassword    string `yaml:"presenter_password"`
	SpeakerReadyFilePath string `yaml:"speaker_ready_file_path"`
}

// HelpRequestColumns are the column ids of the help requests board.
type HelpRequestColumns struct {
	Timestamp string `yaml:"timestamp"`
	Status    string `yaml:"status"`
}

// DefaultLayout returns the production column ids.
func DefaultLayout() Layout {
	return Layout{
		ProjectsBoardID: "7885126203",
		KitsBoardID:     "7926688621",
		SyncingStatus:   "Syncing",
		ClosedStatus:    "Closed",
		Projects: ProjectsColumns{
			ProjectBoardID: "text_mkn1gxxq",
		},
		ProjectOverview: ProjectOverviewColumns{
			SyncStatus:        "status_mkmwnf9d",
			PresentationBoard: "text_mkmnf1qw",
			DashboardBoard:    "text_mkmnbbe0",
			ProjectID:         "text_mkmvqye8",
			HelpRequestsBoard: "text_mkmnbyjx",
			RoomInfoBoard:     "text_mkmntkc7",
			ProjectLogistics:  "text_mkmn3pq2",
		},
		RoomInfo: RoomInfoColumns{
			KitAssigned:          "connect_boards_mkn2a222",
			SpeakerReadyAssigned: "connect_boards_mkn2sr7d",
		},
		Presentations: PresentationColumns{
			RoomKit:              "connect_boards_mkn2244w",
			RoomSpeakerReady:     "connect_boards_mkn2srrm",
			Presenter:            "text__1",
			Designation:          "text9__1",
			SessionDate:          "date__1",
			StartTime:            "hour__1",
			EndTime:              "dup__of_start_time__1",
			AllowDemo:            "checkbox__1",
			Record:               "dup__of_allow_demo__1",
			Stream:               "dup__of_allow_records__1",
			StreamAddress:        "dup__of_notes__1",
			FilePath:             "text_mkn5fpth",
			PresenterPassword:    "text_mkn5pswd",
			SpeakerReadyFilePath: "text_mkn5srfp",
		},
		HelpRequests: HelpRequestColumns{
			Timestamp: "text_mkn7hrts",
			Status:    "status",
		},
	}
}

// LoadLayout reads a YAML layout file on top of the defaults. An empty path
// returns the defaults.
func LoadLayout(path string) (Layout, error) {
	if path == "" {
		return DefaultLayout(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("layout: read %s: %w", path, err)
	}
	layout, err := LoadLayoutBytes(raw)
	if err != nil {
		return Layout{}, fmt.Errorf("layout: %s: %w", path, err)
	}
	return layout, nil
}

// LoadLayoutBytes parses a YAML layout on top of the defaults.
func LoadLayoutBytes(data []byte) (Layout, error) {
	layout := DefaultLayout()
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &layout); err != nil {
		return Layout{}, fmt.Errorf("parse: %w", err)
	}
	if err := layout.Validate(); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

// Validate rejects layouts with blank required ids.
func (l Layout) Validate() error {
	required := map[string]string{
		"projects_board_id":              l.ProjectsBoardID,
		"syncing_status":                 l.SyncingStatus,
		"projects.project_board_id":      l.Projects.ProjectBoardID,
		"project_overview.sync_status":   l.ProjectOverview.SyncStatus,
		"project_overview.room_info":     l.ProjectOverview.RoomInfoBoard,
		"project_overview.presentations": l.ProjectOverview.PresentationBoard,
		"presentations.start_time":       l.Presentations.StartTime,
		"presentations.end_time":         l.Presentations.EndTime,
	}
	var missing []string
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("layout: missing ids: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ProjectsTable returns the projects board table.
func (l Layout) ProjectsTable() Table {
	return Table{l.Projects.ProjectBoardID: KeyProjectBoardID}
}

// ProjectOverviewTable returns the project overview item table.
func (l Layout) ProjectOverviewTable() Table {
	c := l.ProjectOverview
	return Table{
		c.SyncStatus:        KeySyncStatus,
		c.PresentationBoard: KeyPresentationBoard,
		c.DashboardBoard:    KeyDashboardBoard,
		c.ProjectID:         KeyProjectID,
		c.HelpRequestsBoard: KeyHelpRequestsBoard,
		c.RoomInfoBoard:     KeyRoomInfoBoard,
		c.ProjectLogistics:  KeyProjectLogistics,
	}
}

// HelpRequestsTable returns the help requests board table.
func (l Layout) HelpRequestsTable() Table {
	return Table{
		l.HelpRequests.Timestamp: KeyHelpTimestamp,
		l.HelpRequests.Status:    KeyHelpStatus,
	}
}

// presentationTable builds the presentation board table for a room column.
func (l Layout) presentationTable(roomColumn string) Table {
	c := l.Presentations
	return Table{
		roomColumn:             KeyRoomLink,
		c.Presenter:            KeyPresenter,
		c.Designation:          KeyDesignation,
		c.SessionDate:          KeySessionDate,
		c.StartTime:            KeyStartTime,
		c.EndTime:              KeyEndTime,
		c.AllowDemo:            KeyAllowDemo,
		c.Record:               KeyRecord,
		c.Stream:               KeyStream,
		c.StreamAddress:        KeyStreamAddress,
		c.FilePath:             KeyFilePath,
		c.PresenterPassword:    KeyPresenterPassword,
		c.SpeakerReadyFilePath: KeySpeakerReadyFilePath,
	}
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the environment value. Missing
// vars become empty strings.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
