package scheduler

import "time"

// Preset is a fixed, named pairing of a cron expression and a maximum
// uniform random delay added to each firing.
type Preset struct {
	Label    string
	CronExpr string
	MaxDelay time.Duration
}

// Presets is the fixed, closed set of schedule presets. Order mirrors
// the table a caller would present in a picker.
var Presets = []Preset{
	{Label: "Daily (morning)", CronExpr: "0 7 * * *", MaxDelay: 3 * time.Hour},
	{Label: "Daily (afternoon)", CronExpr: "0 12 * * *", MaxDelay: 3 * time.Hour},
	{Label: "Daily (evening)", CronExpr: "0 17 * * *", MaxDelay: 3 * time.Hour},
	{Label: "Weekdays (morning)", CronExpr: "0 7 * * 1-5", MaxDelay: 3 * time.Hour},
	{Label: "Weekdays (afternoon)", CronExpr: "0 12 * * 1-5", MaxDelay: 3 * time.Hour},
	{Label: "Weekdays (evening)", CronExpr: "0 17 * * 1-5", MaxDelay: 3 * time.Hour},
	{Label: "Weekly (morning)", CronExpr: "0 7 * * 1", MaxDelay: 3 * time.Hour},
	{Label: "Weekly (afternoon)", CronExpr: "0 12 * * 1", MaxDelay: 3 * time.Hour},
	{Label: "Weekly (evening)", CronExpr: "0 17 * * 1", MaxDelay: 3 * time.Hour},
}

// PresetByLabel looks up a Preset by its exact label, the second value
// reporting whether it was found.
func PresetByLabel(label string) (Preset, bool) {
	for _, p := range Presets {
		if p.Label == label {
			return p, true
		}
	}
	return Preset{}, false
}

// RunSummary is the most recent execution outcome recorded on a Schedule.
type RunSummary struct {
	Timestamp  string `json:"timestamp"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
}

// Schedule is one recurring headless-run definition.
type Schedule struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Prompt         string      `json:"prompt"`
	Cwd            string      `json:"cwd"`
	PresetLabel    string      `json:"presetLabel"`
	CronExpression string      `json:"cronExpression"`
	Enabled        bool        `json:"enabled"`
	CreatedAt      time.Time   `json:"createdAt"`
	LastRun        *RunSummary `json:"lastRun,omitempty"`
}

// RunRecord describes one on-disk run log, newest first when listed.
type RunRecord struct {
	ScheduleID string `json:"scheduleId"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"-"`
}

// RunCompleteEvent is broadcast once a run finalizes.
type RunCompleteEvent struct {
	ScheduleID string `json:"scheduleId"`
	Name       string `json:"name"`
	ExitCode   int    `json:"exitCode"`
	Timestamp  string `json:"timestamp"`
}

// Notifier receives schedule mutation and run-completion broadcasts. A
// nil-safe no-op implementation is used when the scheduler runs
// standalone (e.g. in tests).
type Notifier interface {
	ScheduleUpdated(s Schedule)
	ScheduleDeleted(id string)
	RunComplete(e RunCompleteEvent)
}

type noopNotifier struct{}

func (noopNotifier) ScheduleUpdated(Schedule)     {}
func (noopNotifier) ScheduleDeleted(string)        {}
func (noopNotifier) RunComplete(RunCompleteEvent) {}
