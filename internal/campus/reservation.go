package campus

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Booking is one confirmed reservation.
type Booking struct {
	LocationID string `json:"location_id"`
	Area       string `json:"area"`
	ItemName   string `json:"item_name"`
	SeatID     string `json:"seat_id,omitempty"`
	Date       string `json:"date"`
	TimeSlot   string `json:"time_slot"`
	TaskID     string `json:"booking_task_id"`
}

// TaskContext tells the reservation desk which task is running so bookings
// can be attributed and the task's target location gets a stable puzzle.
type TaskContext struct {
	TaskID     string           `json:"task_id"`
	Details    map[string]any   `json:"details,omitempty"`
	Targets    []map[string]any `json:"targets,omitempty"`
	TargetDate string           `json:"target_date,omitempty"`
}

type availabilityKey struct {
	Building string
	Item     string
}

var (
	targetDaySlots = []string{"09:00-10:30", "10:30-12:00", "14:00-15:30", "15:30-17:00"}
	otherDaySlots  = []string{"09:00-10:30", "10:30-12:00", "14:00-15:30", "15:30-17:00", "16:30-18:00"}
	roomTemplates  = []string{"Study Room", "Meeting Room", "Conference Room", "Seminar Room"}
	roomProperties = []string{"good_wifi", "projector", "whiteboard", "quiet"}
)

// Reservation manages bookable rooms and seats.
type Reservation struct {
	campus     *Map
	bookings   []Booking
	configured map[availabilityKey][]string
	task       *TaskContext
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewReservation creates an empty reservation desk.
func NewReservation(campus *Map, logger *zap.Logger) *Reservation {
	return &Reservation{
		campus:     campus,
		configured: make(map[availabilityKey][]string),
		logger:     logger,
	}
}

// SetAvailability pins the available times of one item in a building.
func (r *Reservation) SetAvailability(params map[string]any) {
	if params["item_name"] == nil || params["building_id"] == nil {
		return
	}
	item := fmt.Sprint(params["item_name"])
	building := fmt.Sprint(params["building_id"])
	times, _ := stringList(params["available_times"])
	r.mu.Lock()
	r.configured[availabilityKey{building, item}] = times
	r.mu.Unlock()
	r.logger.Debug("availability configured", zap.String("building", building), zap.String("item", item), zap.Strings("times", times))
}

// SetTaskContext attributes future bookings to a task.
func (r *Reservation) SetTaskContext(tc TaskContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.task = &tc
}

// QueryAvailability lists free items per time slot for a building and date.
func (r *Reservation) QueryAvailability(locationID, date string) ToolResult {
	if locationID == "" || date == "" {
		return Failure("Both location_id and date are required.")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]availabilityKey, 0, len(r.configured))
	for k := range r.configured {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Item < keys[j].Item })
	for _, k := range keys {
		if k.Building != locationID {
			continue
		}
		var relevant []string
		for _, t := range r.configured[k] {
			if strings.Contains(t, date) {
				relevant = append(relevant, t)
			}
		}
		if len(relevant) == 0 {
			continue
		}
		name := r.campus.Name(locationID)
		var sb strings.Builder
		avail := map[string]any{}
		for _, slot := range relevant {
			fmt.Fprintf(&sb, "\n- Time slot %s:\n  - Available facility: %s", slot, k.Item)
			avail[slot] = []map[string]any{{"item_name": k.Item}}
		}
		return Success(fmt.Sprintf("Availability query successful! %s on %s:%s", name, date, sb.String()), map[string]any{
			"location_id": locationID, "building_name": name, "date": date, "availability": avail,
		})
	}

	b, ok := r.campus.Building(locationID)
	if !ok {
		return Failure("Building '%s' not found.", locationID)
	}
	var slots []string
	var avail map[string][]map[string]any
	if r.isTarget(b, date) {
		slots, avail = r.targetAvailability(date)
	} else {
		slots, avail = otherDaySlots, randomAvailability(locationID, date)
	}

	var sb strings.Builder
	data := map[string]any{}
	for _, slot := range slots {
		items := avail[slot]
		data[slot] = items
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n- Time slot %s:", slot)
		for _, it := range items {
			if seat, ok := it["seat_id"]; ok {
				fmt.Fprintf(&sb, "\n  - Available seat: %v", seat)
			} else {
				fmt.Fprintf(&sb, "\n  - Available facility: %v", it["item_name"])
			}
		}
	}
	return Success(fmt.Sprintf("Availability query successful! %s on %s:%s", b.Name, date, sb.String()), map[string]any{
		"location_id": locationID, "building_name": b.Name, "date": date, "availability": data,
	})
}

func (r *Reservation) isTarget(b Building, date string) bool {
	if r.task == nil {
		return false
	}
	lib, _ := r.task.Details["target_library"].(string)
	return lib != "" && lib == b.Name && date == r.task.TargetDate
}

// targetAvailability builds the task's puzzle: the expected items appear in
// the requested slot next to distractors.
func (r *Reservation) targetAvailability(date string) ([]string, map[string][]map[string]any) {
	d := r.task.Details
	start, _ := d["task_time"].(string)
	if start == "" {
		start = "16:30"
	}
	hours := 1.5
	if v, ok := d["reservation_duration_hours"].(float64); ok {
		hours = v
	}
	target := slotFrom(start, hours)

	var items []map[string]any
	for _, t := range r.task.Targets {
		switch {
		case t["seat_id"] != nil:
			items = append(items, map[string]any{
				"seat_id": t["seat_id"], "item_name": "Periodicals Reading Room", "properties": []string{"good_wifi", "quiet"},
			})
		case t["item_name"] != nil:
			items = append(items, map[string]any{"item_name": t["item_name"], "properties": []string{"good_wifi", "projector"}})
		}
	}
	if reqs, ok := stringList(d["implied_requirements"]); ok && slices.Contains(reqs, "good_wifi") {
		items = append(items, map[string]any{
			"seat_id": "B001-STUDY_AREA-S005", "item_name": "Study Area", "properties": []string{"quiet"},
		})
	}
	for _, bk := range r.bookings {
		if bk.Date == r.task.TargetDate {
			items = append(items, map[string]any{
				"item_name": bk.ItemName, "properties": []string{"good_wifi"}, "status": "partially_booked",
			})
			break
		}
	}

	avail := map[string][]map[string]any{target: items}
	slots := []string{target}
	rng := seeded(r.task.TaskID, date)
	for _, s := range targetDaySlots {
		if s != target {
			avail[s] = randomItems(rng, 2)
			slots = append(slots, s)
		}
	}
	sort.Strings(slots)
	return slots, avail
}

func randomAvailability(locationID, date string) map[string][]map[string]any {
	rng := seeded(locationID, date)
	out := make(map[string][]map[string]any, len(otherDaySlots))
	for _, s := range otherDaySlots {
		out[s] = randomItems(rng, 1+rng.IntN(3))
	}
	return out
}

func seeded(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return rand.New(rand.NewPCG(h.Sum64(), 0))
}

func randomItems(rng *rand.Rand, n int) []map[string]any {
	items := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		props := rng.Perm(len(roomProperties))[:2]
		items = append(items, map[string]any{
			"item_name":  fmt.Sprintf("%s %d", roomTemplates[rng.IntN(len(roomTemplates))], 101+rng.IntN(199)),
			"properties": []string{roomProperties[props[0]], roomProperties[props[1]]},
		})
	}
	return items
}

func slotFrom(start string, hours float64) string {
	h, m, ok := clock(start)
	if !ok {
		return start + "-" + start
	}
	end := h*60 + m + int(math.Round(hours*60))
	return fmt.Sprintf("%s-%02d:%02d", start, end/60, end%60)
}

func clock(s string) (int, int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return h, m, true
}

func parseSlot(slot string) (int, int, bool) {
	a, b, found := strings.Cut(slot, "-")
	if !found {
		return 0, 0, false
	}
	h1, m1, ok1 := clock(a)
	h2, m2, ok2 := clock(b)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return h1*60 + m1, h2*60 + m2, true
}

// slotsOverlap treats unparsable slots as non-overlapping.
func slotsOverlap(a, b string) bool {
	s1, e1, ok1 := parseSlot(a)
	s2, e2, ok2 := parseSlot(b)
	if !ok1 || !ok2 {
		return false
	}
	return !(e1 <= s2 || e2 <= s1)
}

// MakeBooking reserves an item (or a seat within it) unless an overlapping
// booking already holds it.
func (r *Reservation) MakeBooking(locationID, itemName, date, timeSlot, seatID string) ToolResult {
	if locationID == "" || itemName == "" || date == "" || timeSlot == "" {
		return Failure("Location ID, item name, date, and time slot are all required.")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bk := range r.bookings {
		if bk.LocationID != locationID || bk.Date != date || !slotsOverlap(bk.TimeSlot, timeSlot) {
			continue
		}
		if (seatID != "" && bk.SeatID == seatID) || (seatID == "" && bk.ItemName == itemName) {
			return Failure("The requested %s is already booked for the specified time slot.", itemName)
		}
	}

	taskID := "unknown"
	if r.task != nil && r.task.TaskID != "" {
		taskID = r.task.TaskID
	}
	bk := Booking{
		LocationID: locationID, Area: "floor_1", ItemName: itemName, SeatID: seatID,
		Date: date, TimeSlot: timeSlot, TaskID: taskID,
	}
	r.bookings = append(r.bookings, bk)

	msg := fmt.Sprintf("Booking successful! You have successfully reserved %s for %s from %s.", itemName, date, timeSlot)
	if seatID != "" {
		msg = fmt.Sprintf("Booking successful! You have successfully reserved seat %s in %s for %s from %s.", seatID, itemName, date, timeSlot)
	}
	return Success(msg, map[string]any{
		"reservation_id": len(r.bookings),
		"location_id":    locationID,
		"item_name":      itemName,
		"seat_id":        seatID,
		"date":           date,
		"time_slot":      timeSlot,
	})
}

// Bookings returns reservations attributed to taskID; an empty id returns all.
func (r *Reservation) Bookings(taskID string) []Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Booking
	for _, bk := range r.bookings {
		if taskID == "" || bk.TaskID == taskID {
			out = append(out, bk)
		}
	}
	return out
}
