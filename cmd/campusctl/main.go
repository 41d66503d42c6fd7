package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/mattn/go-runewidth"
)

var client = &http.Client{Timeout: 15 * time.Second}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	headStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
)

func main() {
	server := flag.String("server", "http://localhost:8080", "campus-eval status API URL")
	flag.Parse()

	fmt.Println("campus-eval console")
	fmt.Printf("Server: %s\n", *server)
	fmt.Println("Commands: /status, /results [outcome], /task <id>, /runs, exit")
	fmt.Println("---")

	fetchStatus(*server)

	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     filepath.Join(home, ".campusctl_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		printError("readline: %v", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			break
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		case "/status":
			fetchStatus(*server)
		case "/results":
			outcome := ""
			if len(fields) > 1 {
				outcome = fields[1]
			}
			fetchResults(*server, outcome)
		case "/task":
			if len(fields) < 2 {
				printError("usage: /task <id>")
				continue
			}
			fetchTask(*server, fields[1])
		case "/runs":
			fetchRuns(*server)
		default:
			printError("unknown command %q", fields[0])
		}
	}
}

type summary struct {
	Total     int     `json:"total"`
	Correct   int     `json:"correct"`
	Incorrect int     `json:"incorrect"`
	Unknown   int     `json:"unknown"`
	Triggers  int     `json:"trigger_tasks"`
	Accuracy  float64 `json:"accuracy"`
}

type result struct {
	TaskID     string         `json:"task_id"`
	TaskType   string         `json:"task_type"`
	Outcome    string         `json:"outcome"`
	TaskOutput string         `json:"task_output"`
	Detail     map[string]any `json:"detail"`
}

func fetchStatus(server string) {
	var st struct {
		RunID       string  `json:"run_id"`
		State       string  `json:"state"`
		Total       int     `json:"total"`
		Completed   int     `json:"completed"`
		Skipped     int     `json:"skipped"`
		CurrentTask string  `json:"current_task"`
		Day         string  `json:"day"`
		Summary     summary `json:"summary"`
	}
	if !getJSON(server+"/api/status", &st) {
		return
	}
	fmt.Println(headStyle.Render(fmt.Sprintf("Run %s: %s", st.RunID, st.State)))
	fmt.Printf("  progress  %d/%d (%d resumed)\n", st.Completed, st.Total, st.Skipped)
	if st.CurrentTask != "" {
		fmt.Printf("  current   %s\n", st.CurrentTask)
	}
	if st.Day != "" {
		fmt.Printf("  day       %s\n", st.Day)
	}
	s := st.Summary
	fmt.Printf("  accuracy  %.1f%% (%d correct, %d incorrect, %d unknown, %d triggers)\n",
		s.Accuracy*100, s.Correct, s.Incorrect, s.Unknown, s.Triggers)
}

func fetchResults(server, outcome string) {
	url := server + "/api/results"
	if outcome != "" {
		url += "?outcome=" + outcome
	}
	var results []result
	if !getJSON(url, &results) {
		return
	}
	if len(results) == 0 {
		fmt.Println("No results yet.")
		return
	}
	for _, r := range results {
		fmt.Printf("  %s %s %s\n", icon(r.Outcome), runewidth.FillRight(r.TaskID, 28), r.TaskType)
	}
}

func fetchTask(server, id string) {
	var r result
	if !getJSON(server+"/api/results/"+id, &r) {
		return
	}
	fmt.Printf("%s %s (%s)\n", icon(r.Outcome), r.TaskID, r.TaskType)
	if r.TaskOutput != "" {
		fmt.Printf("  output: %s\n", r.TaskOutput)
	}
	detail, _ := json.MarshalIndent(r.Detail, "  ", "  ")
	fmt.Printf("  detail: %s\n", detail)
}

func fetchRuns(server string) {
	var runs []struct {
		ID        string   `json:"id"`
		State     string   `json:"state"`
		Completed int      `json:"completed"`
		Total     int      `json:"total"`
		Summary   *summary `json:"summary"`
	}
	if !getJSON(server+"/api/runs", &runs) {
		return
	}
	for _, r := range runs {
		acc := "-"
		if r.Summary != nil {
			acc = fmt.Sprintf("%.1f%%", r.Summary.Accuracy*100)
		}
		fmt.Printf("  %s %-9s %d/%d %s\n", r.ID, r.State, r.Completed, r.Total, acc)
	}
}

func getJSON(url string, v any) bool {
	resp, err := client.Get(url)
	if err != nil {
		printError("Request failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		printError("Failed to parse response: %v", err)
		return false
	}
	return true
}

func icon(outcome string) string {
	switch outcome {
	case "correct":
		return okStyle.Render("✓")
	case "incorrect":
		return failStyle.Render("✗")
	default:
		return warnStyle.Render("?")
	}
}

func printError(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, failStyle.Render(fmt.Sprintf(format, args...)))
}
