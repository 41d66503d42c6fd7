package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/cascade"
)

// Graph mirrors prerequisite failures of one run into Neo4j as
// (:Task)-[:BLOCKS]->(:Task) edges.
type Graph struct {
	driver neo4j.DriverWithContext
	runID  string
	logger *zap.Logger
}

var _ cascade.Sink = (*Graph)(nil)

// New connects to Neo4j and scopes the graph to runID.
func New(ctx context.Context, uri, user, password, runID string, logger *zap.Logger) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j: %w", err)
	}
	return &Graph{driver: driver, runID: runID, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// EnsureSchema creates the task lookup index.
func (g *Graph) EnsureSchema(ctx context.Context) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`CREATE INDEX task_run_id IF NOT EXISTS FOR (t:Task) ON (t.run_id, t.id)`, nil)
	if err != nil {
		return fmt.Errorf("create task index: %w", err)
	}
	return nil
}

// RecordFailure stores failedID -[:BLOCKS]-> each dependent.
func (g *Graph) RecordFailure(ctx context.Context, failedID string, dependents []string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (f:Task {run_id: $run, id: $failed})
		 SET f.failed = true
		 WITH f
		 UNWIND $deps AS dep
		 MERGE (t:Task {run_id: $run, id: dep})
		 MERGE (f)-[r:BLOCKS]->(t)
		 ON CREATE SET r.recorded_at = datetime()`,
		map[string]interface{}{
			"run":    g.runID,
			"failed": failedID,
			"deps":   dependents,
		})
	if err != nil {
		return fmt.Errorf("record failure %s: %w", failedID, err)
	}
	g.logger.Debug("failure edge mirrored",
		zap.String("task", failedID), zap.Strings("blocks", dependents))
	return nil
}

// Downstream returns every task transitively blocked by taskID.
func (g *Graph) Downstream(ctx context.Context, taskID string) ([]string, error) {
	return g.ids(ctx,
		`MATCH (:Task {run_id: $run, id: $id})-[:BLOCKS*1..]->(t:Task)
		 RETURN DISTINCT t.id AS id ORDER BY id`, taskID)
}

// Upstream returns every failed task that transitively blocks taskID.
func (g *Graph) Upstream(ctx context.Context, taskID string) ([]string, error) {
	return g.ids(ctx,
		`MATCH (f:Task)-[:BLOCKS*1..]->(:Task {run_id: $run, id: $id})
		 WHERE f.run_id = $run
		 RETURN DISTINCT f.id AS id ORDER BY id`, taskID)
}

func (g *Graph) ids(ctx context.Context, cypher, taskID string) ([]string, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, map[string]interface{}{"run": g.runID, "id": taskID})
	if err != nil {
		return nil, fmt.Errorf("query graph: %w", err)
	}

	var out []string
	for result.Next(ctx) {
		v, _ := result.Record().Get("id")
		if id, ok := v.(string); ok {
			out = append(out, id)
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	return out, nil
}
