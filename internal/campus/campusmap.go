package campus

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"
)

// Building is one node of the campus map.
type Building struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Aliases           []string            `json:"aliases,omitempty"`
	Type              string              `json:"type,omitempty"`
	Zone              string              `json:"zone,omitempty"`
	InternalAmenities map[string][]string `json:"internal_amenities,omitempty"`
}

// Path is a walkable connection between two buildings.
type Path struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	TimeCost   float64        `json:"time_cost"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Complex groups buildings that connect internally at no cost.
type Complex struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// MapData is the on-disk campus map.
type MapData struct {
	Nodes     []Building `json:"nodes"`
	Edges     []Path     `json:"edges"`
	Complexes []Complex  `json:"building_complexes"`
}

// DefaultMap is used when no map file is available.
func DefaultMap() MapData {
	return MapData{Nodes: []Building{{
		ID:      HomeBuildingID,
		Name:    HomeBuildingName,
		Aliases: []string{"Dorm", "Dormitory"},
		Type:    "Residential",
		Zone:    "Residential Area",
		InternalAmenities: map[string][]string{
			"floor_1": {"Lobby", "Common Room"},
			"floor_2": {"Student Rooms (201-220)"},
		},
	}}}
}

// constraintPenalty scales an edge cost per unmet path constraint.
const constraintPenalty = 0.5

// Map answers read-only lookups over the campus map.
type Map struct {
	data  MapData
	index map[string]int
}

// NewMap indexes map data by building id.
func NewMap(data MapData) *Map {
	m := &Map{data: data, index: make(map[string]int, len(data.Nodes))}
	for i, n := range data.Nodes {
		m.index[n.ID] = i
	}
	return m
}

// Building looks up a building by id.
func (m *Map) Building(id string) (Building, bool) {
	i, ok := m.index[id]
	if !ok {
		return Building{}, false
	}
	return m.data.Nodes[i], true
}

// Name returns a building's display name, or the id when unknown.
func (m *Map) Name(id string) string {
	if b, ok := m.Building(id); ok {
		return b.Name
	}
	return id
}

func floors(b Building) []string {
	keys := make([]string, 0, len(b.InternalAmenities))
	for k := range b.InternalAmenities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b Building) data() map[string]any {
	return map[string]any{
		"id": b.ID, "name": b.Name, "aliases": b.Aliases, "type": b.Type,
		"zone": b.Zone, "internal_amenities": b.InternalAmenities,
	}
}

// FindBuildingID resolves a building name or alias, case-insensitively.
func (m *Map) FindBuildingID(name string) ToolResult {
	if name == "" {
		return Failure("Building name is required.")
	}
	for _, n := range m.data.Nodes {
		data := map[string]any{"building_id": n.ID, "building_name": n.Name}
		if strings.EqualFold(n.Name, name) {
			return Success(fmt.Sprintf("Found building '%s' with ID '%s'.", n.Name, n.ID), data)
		}
		for _, alias := range n.Aliases {
			if strings.EqualFold(alias, name) {
				return Success(fmt.Sprintf("Found building '%s' with ID '%s' (matched alias '%s').", n.Name, n.ID, alias), data)
			}
		}
	}
	return Failure("Building '%s' not found.", name)
}

// BuildingDetails describes one building.
func (m *Map) BuildingDetails(id string) ToolResult {
	if id == "" {
		return Failure("Building ID is required.")
	}
	b, ok := m.Building(id)
	if !ok {
		return Failure("Building with ID '%s' not found.", id)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Building Details for %s (ID: %s):", b.Name, id)
	fmt.Fprintf(&sb, "\n- Type: %s", orUnknown(b.Type))
	fmt.Fprintf(&sb, "\n- Zone: %s", orUnknown(b.Zone))
	fmt.Fprintf(&sb, "\n- Aliases: %s", strings.Join(b.Aliases, ", "))
	if len(b.InternalAmenities) > 0 {
		sb.WriteString("\n- Internal Amenities:")
		for _, f := range floors(b) {
			fmt.Fprintf(&sb, "\n  %s: %s", f, strings.Join(b.InternalAmenities[f], ", "))
		}
	}
	return Success(sb.String(), b.data())
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// FindRoomLocation searches amenities by substring, optionally within one
// building or zone.
func (m *Map) FindRoomLocation(query, buildingID, zone string) ToolResult {
	if query == "" {
		return Failure("Room query is required.")
	}
	q := strings.ToLower(query)
	var rooms []map[string]any
	for _, n := range m.data.Nodes {
		if (buildingID != "" && n.ID != buildingID) || (zone != "" && n.Zone != zone) {
			continue
		}
		for _, f := range floors(n) {
			for _, item := range n.InternalAmenities[f] {
				if strings.Contains(strings.ToLower(item), q) {
					rooms = append(rooms, map[string]any{
						"building_id": n.ID, "building_name": n.Name, "floor": f, "room_name": item,
					})
				}
			}
		}
	}
	switch len(rooms) {
	case 0:
		return Failure("No rooms found matching '%s'.", query)
	case 1:
		r := rooms[0]
		return Success(fmt.Sprintf("Found room '%s' on %s of %s (ID: %s).",
			r["room_name"], r["floor"], r["building_name"], r["building_id"]), map[string]any{"rooms": rooms})
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d rooms matching '%s':", len(rooms), query)
	for _, r := range rooms {
		fmt.Fprintf(&sb, "\n- %s on %s of %s (ID: %s)", r["room_name"], r["floor"], r["building_name"], r["building_id"])
	}
	return Success(sb.String(), map[string]any{"rooms": rooms})
}

// FindOptimalPath runs a constraint-penalised shortest path search.
func (m *Map) FindOptimalPath(source, target string, constraints map[string]any) ToolResult {
	if source == "" || target == "" {
		return Failure("Both source and target building IDs are required.")
	}
	path, cost, ok := m.shortestPath(source, target, constraints)
	if !ok {
		return Failure("No path could be found from %s to %s.", source, target)
	}
	names := make([]string, len(path))
	for i, id := range path {
		names[i] = m.Name(id)
	}
	return Success(fmt.Sprintf("Optimal path found: %s.", strings.Join(names, " -> ")), map[string]any{
		"path":            path,
		"path_names":      names,
		"total_time_cost": cost,
	})
}

type arc struct {
	to      string
	cost    float64
	props   map[string]any
	complex bool
}

type searchItem struct {
	priority float64
	length   int
	realCost float64
	node     string
	path     []string
}

type searchQueue []searchItem

func (q searchQueue) Len() int { return len(q) }
func (q searchQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	if q[i].length != q[j].length {
		return q[i].length < q[j].length
	}
	return q[i].node < q[j].node
}
func (q searchQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *searchQueue) Push(x any)   { *q = append(*q, x.(searchItem)) }
func (q *searchQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

func (m *Map) shortestPath(source, target string, constraints map[string]any) ([]string, float64, bool) {
	if _, ok := m.index[source]; !ok {
		return nil, 0, false
	}
	if _, ok := m.index[target]; !ok {
		return nil, 0, false
	}

	graph := make(map[string][]arc, len(m.data.Nodes))
	for _, e := range m.data.Edges {
		if _, ok := m.index[e.Source]; !ok {
			continue
		}
		if _, ok := m.index[e.Target]; !ok {
			continue
		}
		graph[e.Source] = append(graph[e.Source], arc{to: e.Target, cost: e.TimeCost, props: e.Properties})
		graph[e.Target] = append(graph[e.Target], arc{to: e.Source, cost: e.TimeCost, props: e.Properties})
	}
	for _, c := range m.data.Complexes {
		for i, u := range c.MemberIDs {
			for _, v := range c.MemberIDs[i+1:] {
				_, okU := m.index[u]
				_, okV := m.index[v]
				if okU && okV {
					graph[u] = append(graph[u], arc{to: v, complex: true})
					graph[v] = append(graph[v], arc{to: u, complex: true})
				}
			}
		}
	}

	type best struct {
		priority float64
		length   int
	}
	settled := make(map[string]best)
	q := &searchQueue{{length: 1, node: source, path: []string{source}}}
	for q.Len() > 0 {
		cur := heap.Pop(q).(searchItem)
		if b, ok := settled[cur.node]; ok && !better(cur.priority, cur.length, b.priority, b.length) {
			continue
		}
		settled[cur.node] = best{cur.priority, cur.length}
		if cur.node == target {
			return cur.path, cur.realCost, true
		}
		for _, a := range graph[cur.node] {
			unmet := 0
			if !a.complex {
				unmet = unmetConstraints(a.props, constraints)
			}
			base := a.cost
			if base <= 0 {
				base = 0.01
			}
			next := searchItem{
				priority: cur.priority + base*(1+float64(unmet)*constraintPenalty),
				length:   cur.length + 1,
				realCost: cur.realCost + a.cost,
				node:     a.to,
			}
			if b, ok := settled[a.to]; ok && !better(next.priority, next.length, b.priority, b.length) {
				continue
			}
			next.path = append(append(make([]string, 0, len(cur.path)+1), cur.path...), a.to)
			heap.Push(q, next)
		}
	}
	return nil, 0, false
}

func better(p float64, l int, bp float64, bl int) bool {
	return p < bp || (p == bp && l < bl)
}

func unmetConstraints(props, constraints map[string]any) int {
	unmet := 0
	for key, want := range constraints {
		got, ok := props[key]
		switch {
		case !ok || got == nil:
			unmet++
		case key == "rain_exposure":
			if fmt.Sprint(want) == "Covered" && strings.Contains(fmt.Sprint(got), "Exposed") {
				unmet++
			}
		case fmt.Sprint(got) != fmt.Sprint(want):
			unmet++
		}
	}
	return unmet
}

// QueryBuildingsByProperty filters buildings by zone, type and amenity.
func (m *Map) QueryBuildingsByProperty(zone, buildingType, amenity string) ToolResult {
	var found []map[string]any
	var sb strings.Builder
	for _, n := range m.data.Nodes {
		if (zone != "" && n.Zone != zone) || (buildingType != "" && n.Type != buildingType) {
			continue
		}
		if amenity != "" && !hasAmenity(n, amenity) {
			continue
		}
		found = append(found, map[string]any{"id": n.ID, "name": n.Name, "type": n.Type, "zone": n.Zone})
		fmt.Fprintf(&sb, "\n- %s (ID: %s, Type: %s, Zone: %s)", n.Name, n.ID, n.Type, n.Zone)
	}
	if len(found) == 0 {
		return Failure("No buildings found matching the specified criteria.")
	}
	return Success(fmt.Sprintf("Found %d building(s) matching criteria:%s", len(found), sb.String()),
		map[string]any{"buildings": found})
}

func hasAmenity(b Building, amenity string) bool {
	a := strings.ToLower(amenity)
	for _, items := range b.InternalAmenities {
		for _, item := range items {
			if strings.Contains(strings.ToLower(item), a) {
				return true
			}
		}
	}
	return false
}

// ComplexInfo reports which complex, if any, a building belongs to.
func (m *Map) ComplexInfo(id string) ToolResult {
	if id == "" {
		return Failure("Building ID is required.")
	}
	for _, c := range m.data.Complexes {
		for _, member := range c.MemberIDs {
			if member != id {
				continue
			}
			name := c.Name
			if name == "" {
				name = "Unnamed"
			}
			return Success(fmt.Sprintf("Building %s is part of the '%s' complex. Complex members: %s.",
				id, name, strings.Join(c.MemberIDs, ", ")), map[string]any{"name": c.Name, "member_ids": c.MemberIDs})
		}
	}
	return Success(fmt.Sprintf("Building %s is not part of any building complex.", id), map[string]any{"is_complex_member": false})
}

// ValidQueryProperties lists the zones and building types on the map.
func (m *Map) ValidQueryProperties() ToolResult {
	zones, types := map[string]bool{}, map[string]bool{}
	for _, n := range m.data.Nodes {
		if n.Zone != "" {
			zones[n.Zone] = true
		}
		if n.Type != "" {
			types[n.Type] = true
		}
	}
	z, t := sortedKeys(zones), sortedKeys(types)
	return Success(fmt.Sprintf("Available query properties:\n- Zones: %s\n- Building Types: %s",
		strings.Join(z, ", "), strings.Join(t, ", ")), map[string]any{"zones": z, "building_types": t})
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
