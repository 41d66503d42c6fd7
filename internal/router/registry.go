package router

import (
	"sort"
	"strings"

	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/task"
)

// Param describes one argument of an action.
type Param struct {
	Name     string
	Type     string
	Required bool
	Desc     string
}

// Handler invokes the owning subsystem with already renamed arguments.
type Handler func(w *campus.World, a Args) campus.ToolResult

// Action is one entry of the static action surface.
type Action struct {
	Name    string // namespaced, e.g. "email.send_email"
	System  string
	Method  string
	Summary string
	Params  []Param
	Renames map[string]string // agent-facing name -> parameter name
	Example string
	Handle  Handler
}

func (a Action) param(name string) bool {
	for _, p := range a.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Registry is an ordered, immutable set of actions.
type Registry struct {
	actions []Action
	index   map[string]int
}

// NewRegistry indexes actions by name. Later duplicates replace earlier ones.
func NewRegistry(actions ...Action) *Registry {
	r := &Registry{index: make(map[string]int, len(actions))}
	for _, a := range actions {
		if i, ok := r.index[a.Name]; ok {
			r.actions[i] = a
			continue
		}
		r.index[a.Name] = len(r.actions)
		r.actions = append(r.actions, a)
	}
	return r
}

// Lookup finds an action by its namespaced name.
func (r *Registry) Lookup(name string) (Action, bool) {
	i, ok := r.index[name]
	if !ok {
		return Action{}, false
	}
	return r.actions[i], true
}

// ForSystem returns a system's actions in registry order.
func (r *Registry) ForSystem(system string) []Action {
	var out []Action
	for _, a := range r.actions {
		if a.System == system {
			out = append(out, a)
		}
	}
	return out
}

// Names returns the sorted names of actions whose system passes keep.
func (r *Registry) Names(keep func(system string) bool) []string {
	var out []string
	for _, a := range r.actions {
		if keep(a.System) {
			out = append(out, a.Name)
		}
	}
	sort.Strings(out)
	return out
}

var defaultRegistry = NewRegistry(
	// email
	Action{
		Name: "email.send_email", System: task.SystemEmail, Method: "send_email",
		Summary: "Sends an email.",
		Params: []Param{
			{"recipient", "str", true, "The recipient's email address (may be passed as `to`)."},
			{"subject", "str", true, "The subject of the email."},
			{"body", "str", true, "The content of the email."},
			{"cc", "str", false, "Carbon copy address."},
		},
		Renames: map[string]string{"to": "recipient"},
		Example: `email.send_email(to="advisor.x@lau.edu", subject="Question about my schedule", body="Dear Advisor, ...")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Email.Send(a.Str("recipient"), a.Str("subject"), a.Str("body"), a.Str("cc"))
		},
	},
	Action{
		Name: "email.view_inbox", System: task.SystemEmail, Method: "view_inbox",
		Summary: "Views messages in your inbox.",
		Params:  []Param{{"filter_unread", "bool", false, "If True, shows only unread messages."}},
		Example: `email.view_inbox(filter_unread=True)`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Email.ViewInbox(a.Bool("filter_unread"))
		},
	},
	Action{
		Name: "email.reply_email", System: task.SystemEmail, Method: "reply_email",
		Summary: "Replies to a specific email.",
		Params: []Param{
			{"email_id", "str", true, "The ID of the email you are replying to."},
			{"body", "str", true, "The content of your reply."},
		},
		Example: `email.reply_email(email_id="email_012", body="Thank you for the information.")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Email.Reply(a.Str("email_id"), a.Str("body"))
		},
	},
	Action{
		Name: "email.delete_email", System: task.SystemEmail, Method: "delete_email",
		Summary: "Deletes an email from your inbox.",
		Params:  []Param{{"email_id", "str", true, "The ID of the email to delete."}},
		Example: `email.delete_email(email_id="email_013")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Email.Delete(a.Str("email_id"))
		},
	},

	// calendar
	Action{
		Name: "calendar.add_event", System: task.SystemCalendar, Method: "add_event",
		Summary: "Adds an event to a calendar.",
		Params: []Param{
			{"calendar_id", "str", true, "The ID of the calendar (`self`, `club_*`, `advisor_*`)."},
			{"event_title", "str", true, "The title of the event."},
			{"location", "str", true, "The location of the event."},
			{"time", "str", true, "The time of the event (format: 'Week X, Day, HH:MM-HH:MM')."},
			{"description", "str", false, "A detailed description for the event."},
		},
		Example: `calendar.add_event(calendar_id="self", event_title="Team Meeting", location="Library Room 201", time="Week 3, Monday, 15:00-16:00")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Calendar.AddEvent(a.Str("calendar_id"), a.Str("event_title"), a.Str("location"), a.Str("time"), a.Str("description"))
		},
	},
	Action{
		Name: "calendar.remove_event", System: task.SystemCalendar, Method: "remove_event",
		Summary: "Removes an event from a calendar.",
		Params: []Param{
			{"calendar_id", "str", true, "The ID of the calendar."},
			{"event_id", "str", true, "The ID of the event to remove."},
		},
		Example: `calendar.remove_event(calendar_id="self", event_id="event_005")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Calendar.RemoveEvent(a.Str("calendar_id"), a.Str("event_id"))
		},
	},
	Action{
		Name: "calendar.update_event", System: task.SystemCalendar, Method: "update_event",
		Summary: "Updates an existing event.",
		Params: []Param{
			{"calendar_id", "str", true, "The ID of the calendar."},
			{"event_id", "str", true, "The ID of the event to update."},
			{"new_details", "dict", true, `A dictionary with the new details (e.g. {"location": "New Location"}).`},
		},
		Example: `calendar.update_event(calendar_id="self", event_id="event_006", new_details={"location": "Orwell Hall, Room 101"})`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Calendar.UpdateEvent(a.Str("calendar_id"), a.Str("event_id"), a.Map("new_details"))
		},
	},
	Action{
		Name: "calendar.view_schedule", System: task.SystemCalendar, Method: "view_schedule",
		Summary: "Views all events on a specific date for a calendar.",
		Params: []Param{
			{"calendar_id", "str", true, "The ID of the calendar to view."},
			{"date", "str", true, "The date to view (format: 'Week X, Day')."},
		},
		Example: `calendar.view_schedule(calendar_id="self", date="Week 3, Monday")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Calendar.ViewSchedule(a.Str("calendar_id"), a.Str("date"))
		},
	},
	Action{
		Name: "calendar.query_advisor_availability", System: task.SystemCalendar, Method: "query_advisor_availability",
		Summary: "Checks an advisor's free/busy schedule.",
		Params: []Param{
			{"advisor_id", "str", true, "The ID of the advisor."},
			{"date", "str", true, "The date to query (format: 'Week X, Day')."},
		},
		Example: `calendar.query_advisor_availability(advisor_id="T0001", date="Week 4, Tuesday")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Calendar.QueryAdvisorAvailability(a.Str("advisor_id"), a.Str("date"))
		},
	},

	// map
	Action{
		Name: "map.find_building_id", System: task.SystemMap, Method: "find_building_id",
		Summary: "Finds a building's unique ID by its name.",
		Params:  []Param{{"building_name", "str", true, "The name or alias of the building."}},
		Example: `map.find_building_id(building_name="Grand Central Library")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Map.FindBuildingID(a.Str("building_name"))
		},
	},
	Action{
		Name: "map.get_building_details", System: task.SystemMap, Method: "get_building_details",
		Summary: "Gets all details for a building.",
		Params:  []Param{{"building_id", "str", true, "The ID of the building."}},
		Example: `map.get_building_details(building_id="B001")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Map.BuildingDetails(a.Str("building_id"))
		},
	},
	Action{
		Name: "map.find_room_location", System: task.SystemMap, Method: "find_room_location",
		Summary: "Finds the location of a specific room.",
		Params: []Param{
			{"room_query", "str", true, "The name or number of the room."},
			{"building_id", "str", false, "A specific building ID to search within."},
			{"zone", "str", false, "A campus zone to search within."},
		},
		Example: `map.find_room_location(room_query="Seminar Room 101", building_id="B014")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Map.FindRoomLocation(a.Str("room_query"), a.Str("building_id"), a.Str("zone"))
		},
	},
	Action{
		Name: "map.find_optimal_path", System: task.SystemMap, Method: "find_optimal_path",
		Summary: "Finds the best path between two buildings.",
		Params: []Param{
			{"source_building_id", "str", true, "The ID of the starting building."},
			{"target_building_id", "str", true, "The ID of the destination building."},
			{"constraints", "dict", false, `A dictionary of path properties to prefer (e.g. {"rain_exposure": "Covered"}).`},
		},
		Example: `map.find_optimal_path(source_building_id="B083", target_building_id="B001")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Map.FindOptimalPath(a.Str("source_building_id"), a.Str("target_building_id"), a.Map("constraints"))
		},
	},
	Action{
		Name: "map.query_buildings_by_property", System: task.SystemMap, Method: "query_buildings_by_property",
		Summary: "Queries buildings by zone, building_type or amenity.",
		Params: []Param{
			{"zone", "str", false, "Campus zone."},
			{"building_type", "str", false, "Building type."},
			{"amenity", "str", false, "An amenity inside the building."},
		},
		Example: `map.query_buildings_by_property(amenity="Coffee Shop")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Map.QueryBuildingsByProperty(a.Str("zone"), a.Str("building_type"), a.Str("amenity"))
		},
	},
	Action{
		Name: "map.get_building_complex_info", System: task.SystemMap, Method: "get_building_complex_info",
		Summary: "Tells whether a building belongs to a connected complex.",
		Params:  []Param{{"building_id", "str", true, "The ID of the building."}},
		Example: `map.get_building_complex_info(building_id="B014")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Map.ComplexInfo(a.Str("building_id"))
		},
	},
	Action{
		Name: "map.list_valid_query_properties", System: task.SystemMap, Method: "list_valid_query_properties",
		Summary: "Lists the zones and building types that can be queried.",
		Example: `map.list_valid_query_properties()`,
		Handle: func(w *campus.World, _ Args) campus.ToolResult {
			return w.Map.ValidQueryProperties()
		},
	},

	// geography
	Action{
		Name: "geography.get_current_location", System: task.SystemGeography, Method: "get_current_location",
		Summary: "Gets your current building location.",
		Example: `geography.get_current_location()`,
		Handle: func(w *campus.World, _ Args) campus.ToolResult {
			return w.Geography.CurrentLocation()
		},
	},
	Action{
		Name: "geography.set_location", System: task.SystemGeography, Method: "set_location",
		Summary: "Sets your current building directly.",
		Params:  []Param{{"building_id", "str", true, "The ID of the building."}},
		Example: `geography.set_location(building_id="B083")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Geography.SetLocation(a.Str("building_id"))
		},
	},
	Action{
		Name: "geography.walk_to", System: task.SystemGeography, Method: "walk_to",
		Summary: "Moves you along a calculated path.",
		Params:  []Param{{"path_info", "dict", true, "The full path object returned by find_optimal_path."}},
		Example: `geography.walk_to(path_info={'path': ['B083', 'B014', 'B001']})`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Geography.WalkTo(a["path_info"])
		},
	},

	// reservation
	Action{
		Name: "reservation.query_availability", System: task.SystemReservation, Method: "query_availability",
		Summary: "Queries the availability of bookable spaces in a location.",
		Params: []Param{
			{"location_id", "str", true, "The ID of the building or location."},
			{"date", "str", true, "The date to query (format: 'Week X, Day')."},
		},
		Example: `reservation.query_availability(location_id="B001", date="Week 4, Saturday")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Reservation.QueryAvailability(a.Str("location_id"), a.Str("date"))
		},
	},
	Action{
		Name: "reservation.make_booking", System: task.SystemReservation, Method: "make_booking",
		Summary: "Books a specific room or seat.",
		Params: []Param{
			{"location_id", "str", true, "The ID of the building."},
			{"item_name", "str", true, "The name of the room or area."},
			{"date", "str", true, "The date for the booking (format: 'Week X, Day')."},
			{"time_slot", "str", true, "The time slot to book (e.g. '14:00-16:00')."},
			{"seat_id", "str", false, "The specific seat ID if booking a seat."},
		},
		Example: `reservation.make_booking(location_id="B001", item_name="Group Study Room 201", date="Week 4, Saturday", time_slot="14:00-16:00")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Reservation.MakeBooking(a.Str("location_id"), a.Str("item_name"), a.Str("date"), a.Str("time_slot"), a.Str("seat_id"))
		},
	},

	// bibliography
	Action{
		Name: "bibliography.list_chapters", System: task.SystemBibliography, Method: "list_chapters",
		Summary: "Lists all chapters in a book.",
		Params:  []Param{{"book_title", "str", true, "The title of the book."}},
		Example: `bibliography.list_chapters(book_title="Student Handbook")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Information.ListChapters(a.Str("book_title"))
		},
	},
	Action{
		Name: "bibliography.list_sections", System: task.SystemBibliography, Method: "list_sections",
		Summary: "Lists all sections in a chapter.",
		Params: []Param{
			{"book_title", "str", true, "The title of the book."},
			{"chapter_title", "str", true, "The title of the chapter."},
		},
		Example: `bibliography.list_sections(book_title="Student Handbook", chapter_title="Chapter 1: Academic Policies")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Information.ListSections(a.Str("book_title"), a.Str("chapter_title"))
		},
	},
	Action{
		Name: "bibliography.list_articles", System: task.SystemBibliography, Method: "list_articles",
		Summary: "Lists all articles in a section.",
		Params: []Param{
			{"book_title", "str", true, "The title of the book."},
			{"chapter_title", "str", true, "The title of the chapter."},
			{"section_title", "str", true, "The title of the section."},
		},
		Example: `bibliography.list_articles(book_title="Student Handbook", chapter_title="Chapter 1", section_title="Section 1.1")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Information.ListArticles(a.Str("book_title"), a.Str("chapter_title"), a.Str("section_title"))
		},
	},
	Action{
		Name: "bibliography.view_article", System: task.SystemBibliography, Method: "view_article",
		Summary: "Views the content of an article.",
		Params: []Param{
			{"identifier", "str", true, "The title or ID of the article."},
			{"by", "str", true, "'title' or 'id' (may be passed as `search_type`)."},
		},
		Renames: map[string]string{"search_type": "by"},
		Example: `bibliography.view_article(identifier="Breadth-First Search", search_type="title")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Information.ViewArticle(a.Str("identifier"), a.Str("by"))
		},
	},

	// data_system
	Action{
		Name: "data_system.list_by_category", System: task.SystemDataSystem, Method: "list_by_category",
		Summary: "Lists clubs or advisors by category.",
		Params: []Param{
			{"category", "str", true, "Club category or advisor research area."},
			{"entity_type", "str", true, "'club' or 'advisor'."},
			{"level", "str", false, "'level_1' or 'level_2' research area for advisors."},
		},
		Example: `data_system.list_by_category(category="Academic & Technological", entity_type="club")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Information.ListByCategory(a.Str("category"), a.Str("entity_type"), a.Str("level"))
		},
	},
	Action{
		Name: "data_system.query_by_identifier", System: task.SystemDataSystem, Method: "query_by_identifier",
		Summary: "Gets all details for a specific club or advisor.",
		Params: []Param{
			{"identifier", "str", true, "The name or ID."},
			{"by", "str", true, "'name' or 'id' (may be passed as `search_type`)."},
			{"entity_type", "str", true, "'club' or 'advisor'."},
		},
		Renames: map[string]string{"search_type": "by"},
		Example: `data_system.query_by_identifier(identifier="C071", search_type="id", entity_type="club")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Information.QueryByIdentifier(a.Str("identifier"), a.Str("by"), a.Str("entity_type"))
		},
	},
	Action{
		Name: "data_system.list_books_by_category", System: task.SystemDataSystem, Method: "list_books_by_category",
		Summary: "Lists all library books in a specific category.",
		Params:  []Param{{"category", "str", true, "The category to filter by."}},
		Example: `data_system.list_books_by_category(category="Computer Science")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Information.ListBooksByCategory(a.Str("category"))
		},
	},
	Action{
		Name: "data_system.search_books", System: task.SystemDataSystem, Method: "search_books",
		Summary: "Searches library books by title or author.",
		Params: []Param{
			{"query", "str", true, "The search query string."},
			{"search_type", "str", false, "'title' (default) or 'author'."},
		},
		Example: `data_system.search_books(query="Artificial Intelligence", search_type="title")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Information.SearchBooks(a.Str("query"), a.Str("search_type"))
		},
	},

	// courses
	Action{
		Name: "course_selection.browse_courses", System: task.SystemCourseSelection, Method: "browse_courses",
		Summary: "Browses available courses. S-Pass always registers; A-Pass needs popularity below 95; B-Pass below 85.",
		Params:  []Param{{"filters", "dict", false, `Filters: course_code, course_name, credits (e.g. {"credits": "<=3"}).`}},
		Example: `course_selection.browse_courses(filters={"course_name": "Introduction", "credits": "<=3"})`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Courses.Browse(a.Map("filters"))
		},
	},
	Action{
		Name: "draft.add_course", System: task.SystemDraft, Method: "add_course",
		Summary: "Adds a course to your draft schedule.",
		Params:  []Param{{"section_id", "str", true, "The course code."}},
		Example: `draft.add_course(section_id="WXK003111107")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Courses.AddCourse(a.Str("section_id"))
		},
	},
	Action{
		Name: "draft.remove_course", System: task.SystemDraft, Method: "remove_course",
		Summary: "Removes a course from your draft.",
		Params:  []Param{{"section_id", "str", true, "The course code."}},
		Example: `draft.remove_course(section_id="WXK003111107")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Courses.RemoveCourse(a.Str("section_id"))
		},
	},
	Action{
		Name: "draft.assign_pass", System: task.SystemDraft, Method: "assign_pass",
		Summary: "Assigns a priority pass to a drafted course.",
		Params: []Param{
			{"section_id", "str", true, "The course code."},
			{"pass_type", "str", true, "'S-Pass', 'A-Pass' or 'B-Pass'."},
		},
		Example: `draft.assign_pass(section_id="SHK003111017", pass_type="A-Pass")`,
		Handle: func(w *campus.World, a Args) campus.ToolResult {
			return w.Courses.AssignPass(a.Str("section_id"), a.Str("pass_type"))
		},
	},
	Action{
		Name: "draft.view", System: task.SystemDraft, Method: "view_draft",
		Summary: "Views your current draft schedule.",
		Example: `draft.view()`,
		Handle: func(w *campus.World, _ Args) campus.ToolResult {
			return w.Courses.ViewDraft()
		},
	},
	Action{
		Name: "registration.submit_draft", System: task.SystemRegistration, Method: "submit_draft",
		Summary: "Submits your draft schedule for registration.",
		Example: `registration.submit_draft()`,
		Handle: func(w *campus.World, _ Args) campus.ToolResult {
			return w.Courses.SubmitDraft()
		},
	},
)

// Default returns the campus action surface.
func Default() *Registry { return defaultRegistry }

// Args are the decoded keyword arguments of one call.
type Args map[string]any

// Str returns an argument as a string; absent or null is "".
func (a Args) Str(key string) string {
	return task.AsString(a[key])
}

// Bool accepts true booleans and the strings "true"/"True".
func (a Args) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// Map returns a dict argument, or nil.
func (a Args) Map(key string) map[string]any {
	m, _ := a[key].(map[string]any)
	return m
}
