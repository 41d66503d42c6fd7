//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// Smoke tests against a running campus server started with -serve.

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("CAMPUS_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func getJSON(t *testing.T, path string, v any) int {
	t.Helper()
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.Unmarshal(raw, v); err != nil {
			t.Fatalf("unmarshal %s: %v (body: %s)", path, err, raw)
		}
	}
	return resp.StatusCode
}

func TestStatus(t *testing.T) {
	var st struct {
		RunID string `json:"run_id"`
		State string `json:"state"`
		Total int    `json:"total"`
	}
	if code := getJSON(t, "/api/status", &st); code != http.StatusOK {
		t.Fatalf("got %d", code)
	}
	if st.RunID == "" {
		t.Error("empty run id")
	}
	switch st.State {
	case "pending", "running", "done", "cancelled":
	default:
		t.Errorf("unexpected state %q", st.State)
	}
	t.Logf("run %s: %s, %d tasks", st.RunID, st.State, st.Total)
}

func TestResultsConsistentWithSummary(t *testing.T) {
	var results []struct {
		TaskID  string `json:"task_id"`
		Outcome string `json:"outcome"`
	}
	if code := getJSON(t, "/api/results", &results); code != http.StatusOK {
		t.Fatalf("got %d", code)
	}
	var sum struct {
		Total    int `json:"total"`
		Triggers int `json:"trigger_tasks"`
	}
	getJSON(t, "/api/summary", &sum)
	if sum.Total+sum.Triggers != len(results) {
		t.Errorf("summary counts %d+%d, results list %d", sum.Total, sum.Triggers, len(results))
	}

	for _, r := range results {
		var one struct {
			TaskID string `json:"task_id"`
		}
		if code := getJSON(t, "/api/results/"+r.TaskID, &one); code != http.StatusOK || one.TaskID != r.TaskID {
			t.Errorf("%s: got %d %q", r.TaskID, code, one.TaskID)
		}
	}
}

func TestUnknownTask(t *testing.T) {
	if code := getJSON(t, "/api/results/no-such-task", nil); code != http.StatusNotFound {
		t.Errorf("got %d, want 404", code)
	}
}
