package campus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// The student wakes up here every simulated day.
const (
	HomeBuildingID   = "B083"
	HomeBuildingName = "Lakeside Dormitory"
)

// Position is the student's location and the walks taken today.
type Position struct {
	LocationID   string     `json:"current_location_id"`
	LocationName string     `json:"current_location_name"`
	WalkHistory  [][]string `json:"walk_history"`
}

// Visited returns every building touched by today's walks, in order, without
// repeats. The starting location is always included.
func (p Position) Visited() []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, walk := range p.WalkHistory {
		for _, id := range walk {
			add(id)
		}
	}
	add(p.LocationID)
	return out
}

// Geography tracks where the student is.
type Geography struct {
	campus *Map
	pos    Position
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewGeography places the student at the dormitory.
func NewGeography(campus *Map, logger *zap.Logger) *Geography {
	return &Geography{
		campus: campus,
		pos:    Position{LocationID: HomeBuildingID, LocationName: HomeBuildingName},
		logger: logger,
	}
}

// DailyReset sends the student home and clears the walk history.
func (g *Geography) DailyReset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pos = Position{LocationID: HomeBuildingID, LocationName: HomeBuildingName}
}

// SetLocation teleports the student to a known building.
func (g *Geography) SetLocation(buildingID string) ToolResult {
	b, ok := g.campus.Building(buildingID)
	if !ok {
		return Failure("Cannot set location to unknown building '%s'.", buildingID)
	}
	g.mu.Lock()
	g.pos.LocationID, g.pos.LocationName = b.ID, b.Name
	g.mu.Unlock()
	return Success(fmt.Sprintf("You are now located at %s.", b.Name), nil)
}

// WalkTo follows a path whose first hop is the current location.
func (g *Geography) WalkTo(pathInfo any) ToolResult {
	info, ok := pathInfo.(map[string]any)
	if !ok {
		return Failure("Invalid path_info format. Must be a dictionary with 'path' key.")
	}
	raw, ok := info["path"]
	if !ok {
		return Failure("Invalid path_info format. Must be a dictionary with 'path' key.")
	}
	path, ok := stringList(raw)
	if !ok || len(path) < 2 {
		return Failure("Invalid path. Must be a list with at least 2 locations.")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if path[0] != g.pos.LocationID {
		return Failure("Path starting location '%s' does not match current location '%s'.", path[0], g.pos.LocationID)
	}
	dest := path[len(path)-1]
	b, ok := g.campus.Building(dest)
	if !ok {
		return Failure("Invalid destination building '%s'.", dest)
	}
	g.pos.LocationID, g.pos.LocationName = b.ID, b.Name
	g.pos.WalkHistory = append(g.pos.WalkHistory, path)

	g.logger.Debug("walked", zap.Strings("path", path))
	return Success(fmt.Sprintf("Successfully walked to %s. You are now at %s.", b.Name, b.Name), map[string]any{
		"new_location_id":   b.ID,
		"new_location_name": b.Name,
		"path_taken":        path,
	})
}

// CurrentLocation describes where the student is.
func (g *Geography) CurrentLocation() ToolResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Success(fmt.Sprintf("You are currently at %s (ID: %s).", g.pos.LocationName, g.pos.LocationID), map[string]any{
		"building_id":   g.pos.LocationID,
		"building_name": g.pos.LocationName,
	})
}

// Position returns a copy of the current state.
func (g *Geography) Position() Position {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p := g.pos
	p.WalkHistory = make([][]string, len(g.pos.WalkHistory))
	for i, w := range g.pos.WalkHistory {
		p.WalkHistory[i] = append([]string(nil), w...)
	}
	return p
}

func stringList(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return l, true
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
