package campus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/nidhogg/campus-eval/internal/task"
	"go.uber.org/zap"
)

// Background data file names inside the data directory.
const (
	MapFile          = "map_v1.5.json"
	BibliographyFile = "bibliography.json"
	CampusDataFile   = "campus_data.json"
	CoursesFile      = "courses.json"
)

// Data is the static background the world is built from.
type Data struct {
	Map          MapData
	Bibliography Bibliography
	Campus       CampusData
	Courses      []Course
}

// DefaultData returns the built-in fallback background.
func DefaultData() Data {
	return Data{
		Map:          DefaultMap(),
		Bibliography: DefaultBibliography(),
		Campus:       DefaultCampusData(),
		Courses:      DefaultCourses(),
	}
}

// LoadData reads the background files from dir. A missing file falls back
// to its built-in default; a malformed file is an error.
func LoadData(dir string, logger *zap.Logger) (Data, error) {
	d := DefaultData()
	var courses struct {
		Courses []Course `json:"courses"`
	}
	files := []struct {
		name string
		dst  any
	}{
		{MapFile, &d.Map},
		{BibliographyFile, &d.Bibliography},
		{CampusDataFile, &d.Campus},
		{CoursesFile, &courses},
	}
	for _, f := range files {
		raw, err := os.ReadFile(filepath.Join(dir, f.name))
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("background file missing, using default", zap.String("file", f.name))
			continue
		}
		if err != nil {
			return Data{}, fmt.Errorf("read %s: %w", f.name, err)
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return Data{}, fmt.Errorf("decode %s: %w", f.name, err)
		}
	}
	if courses.Courses != nil {
		d.Courses = courses.Courses
	}
	return d, nil
}

// View is the read-only surface evaluators and the precheck inspect.
type View interface {
	SentEmails() []SentEmail
	LatestEmail() (SentEmail, bool)
	CalendarEvents(calendarID string) []Event
	Position() Position
	Bookings(taskID string) []Booking
	Draft() []DraftEntry
}

// World aggregates every campus subsystem.
type World struct {
	Email       *Email
	Calendar    *Calendar
	Map         *Map
	Geography   *Geography
	Reservation *Reservation
	Courses     *Registrar
	Information *Information

	day    string
	mu     sync.RWMutex
	logger *zap.Logger
}

var _ View = (*World)(nil)

// NewWorld builds a fresh world from background data.
func NewWorld(d Data, logger *zap.Logger) *World {
	m := NewMap(d.Map)
	return &World{
		Email:       NewEmail(logger),
		Calendar:    NewCalendar(logger),
		Map:         m,
		Geography:   NewGeography(m, logger),
		Reservation: NewReservation(m, logger),
		Courses:     NewRegistrar(d.Courses, logger),
		Information: NewInformation(d.Bibliography, d.Campus),
		logger:      logger,
	}
}

// DailyReset starts a new simulated day and sends the student home.
func (w *World) DailyReset(day string) {
	w.mu.Lock()
	w.day = day
	w.mu.Unlock()
	w.Geography.DailyReset()
	w.logger.Info("new simulation day", zap.String("day", day))
}

// CurrentDay returns the simulated day set by the last reset.
func (w *World) CurrentDay() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.day
}

// ApplyChanges mutates the world before a task starts. Unknown change types
// are logged and skipped.
func (w *World) ApplyChanges(changes []task.StateChange) {
	for _, c := range changes {
		switch {
		case c.ChangeType == "popularity_update":
			w.Courses.SetPopularity(c.CourseCode, c.NewValue)
		case c.ChangeType == "seats_left_update":
			w.Courses.SetSeatsLeft(c.CourseCode, c.NewValue)
		case c.ChangeType == "advisor_availability_set":
			if c.AdvisorID != "" && c.Date != "" && len(c.AvailableSlots) > 0 {
				w.Calendar.SetAdvisorAvailability(c.AdvisorID, c.Date, c.AvailableSlots)
			}
		case c.ChangeType == "email_received":
			w.Email.Receive(InboxEmail{From: c.From, Subject: c.Subject, Body: c.Body})
		case c.System == "reservation" && c.Action == "set_availability":
			if len(c.Parameters) > 0 {
				w.Reservation.SetAvailability(c.Parameters)
			}
		default:
			w.logger.Warn("unknown world state change",
				zap.String("change_type", c.ChangeType), zap.String("system", c.System), zap.String("action", c.Action))
		}
	}
}

// SetInitialLocation places the student before a task starts.
func (w *World) SetInitialLocation(buildingID string) ToolResult {
	return w.Geography.SetLocation(buildingID)
}

// CurrentLocationID returns the building the student is in.
func (w *World) CurrentLocationID() string {
	return w.Geography.Position().LocationID
}

// SetTaskContext attributes subsequent reservations to the task.
func (w *World) SetTaskContext(tc TaskContext) {
	w.Reservation.SetTaskContext(tc)
}

func (w *World) SentEmails() []SentEmail                  { return w.Email.Sent() }
func (w *World) LatestEmail() (SentEmail, bool)           { return w.Email.Latest() }
func (w *World) CalendarEvents(calendarID string) []Event { return w.Calendar.Events(calendarID) }
func (w *World) Position() Position                       { return w.Geography.Position() }
func (w *World) Bookings(taskID string) []Booking         { return w.Reservation.Bookings(taskID) }
func (w *World) Draft() []DraftEntry                      { return w.Courses.Draft() }

// Snapshot captures the mutable state of every subsystem.
func (w *World) Snapshot() Snapshot {
	return Snapshot{
		Version:     SnapshotVersion,
		CurrentDay:  w.CurrentDay(),
		Email:       w.Email.snapshot(),
		Calendar:    w.Calendar.snapshot(),
		Geography:   w.Geography.Position(),
		Reservation: w.Reservation.snapshot(),
		Courses:     w.Courses.snapshot(),
	}
}

// Restore replaces the mutable state of every subsystem.
func (w *World) Restore(s Snapshot) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: %d", ErrSnapshotVersion, s.Version)
	}
	w.mu.Lock()
	w.day = s.CurrentDay
	w.mu.Unlock()
	w.Email.restore(s.Email)
	w.Calendar.restore(s.Calendar)
	w.Geography.restore(s.Geography)
	w.Reservation.restore(s.Reservation)
	w.Courses.restore(s.Courses)
	return nil
}
