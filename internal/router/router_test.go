package router

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/nidhogg/campus-eval/internal/campus"
	"go.uber.org/zap"
)

func newWorld() *campus.World {
	return campus.NewWorld(campus.DefaultData(), zap.NewNop())
}

func TestExecuteDeliversArgsVerbatim(t *testing.T) {
	var got Args
	reg := NewRegistry(Action{
		Name: "ns.method", System: "ns", Method: "method",
		Params: []Param{{Name: "a", Required: true}, {Name: "b"}},
		Handle: func(_ *campus.World, a Args) campus.ToolResult {
			got = a
			return campus.Success("ok", nil)
		},
	})
	r := NewWithRegistry(reg, nil, []string{"ns"}, zap.NewNop())

	res := r.Execute(`ns.method(a="x", b=1)`)
	if !res.OK() {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := Args{"a": "x", "b": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got args %v, want %v", got, want)
	}
}

func TestExecuteSendEmailRename(t *testing.T) {
	w := newWorld()
	r := New(w, []string{"email"}, zap.NewNop())

	res := r.Execute(`email.send_email(to="a@b.com", subject="Hi", body="Hello")`)
	if !res.OK() {
		t.Fatalf("send failed: %+v", res)
	}
	latest, ok := w.LatestEmail()
	if !ok || latest.Recipient != "a@b.com" || latest.Subject != "Hi" {
		t.Errorf("got %+v", latest)
	}
}

func TestExecuteSearchTypeRename(t *testing.T) {
	r := New(newWorld(), nil, zap.NewNop())
	res := r.Execute(`bibliography.view_article(identifier="cs_intro_001", search_type="id")`)
	if !res.OK() {
		t.Errorf("got %+v", res)
	}
}

func TestExecuteUnknownAction(t *testing.T) {
	r := New(newWorld(), []string{"email"}, zap.NewNop())
	res := r.Execute(`email.fly_away()`)
	if res.Status != campus.StatusFailure {
		t.Fatalf("got status %s, want failure", res.Status)
	}
	want := "Action 'email.fly_away' is not available. Available actions: email.delete_email, email.reply_email, email.send_email, email.view_inbox"
	if res.Message != want {
		t.Errorf("got %q\nwant %q", res.Message, want)
	}
}

func TestExecuteSystemNotAllowed(t *testing.T) {
	r := New(newWorld(), []string{"email"}, zap.NewNop())
	res := r.Execute(`map.find_building_id(building_name="Library")`)
	if res.Status != campus.StatusFailure {
		t.Fatalf("got status %s, want failure", res.Status)
	}
	if !strings.HasPrefix(res.Message, "System 'map' is not available for this task. Available systems: email") {
		t.Errorf("got %q", res.Message)
	}
}

func TestExecuteEmptyAllowList(t *testing.T) {
	r := New(newWorld(), []string{}, zap.NewNop())
	if res := r.Execute(`email.view_inbox()`); res.OK() {
		t.Error("empty allow-list permitted an action")
	}
	if got := r.Actions(); len(got) != 0 {
		t.Errorf("got actions %v, want none", got)
	}
}

func TestExecuteMalformed(t *testing.T) {
	r := New(newWorld(), nil, zap.NewNop())
	res := r.Execute(`no parens here`)
	if res.Status != campus.StatusError {
		t.Fatalf("got status %s, want error", res.Status)
	}
	if !strings.HasPrefix(res.Message, "Failed to execute action 'no parens here'") {
		t.Errorf("got %q", res.Message)
	}
}

func TestExecuteArgumentErrors(t *testing.T) {
	r := New(newWorld(), nil, zap.NewNop())
	tests := []string{
		`email.send_email(subject="Hi", body="Hello")`,
		`email.delete_email(email_id="e1", force=True)`,
		`map.get_building_details("B001", "B002")`,
	}
	for _, text := range tests {
		if res := r.Execute(text); res.Status != campus.StatusError {
			t.Errorf("%s: got status %s, want error", text, res.Status)
		}
	}
}

func TestExecutePositional(t *testing.T) {
	r := New(newWorld(), nil, zap.NewNop())
	res := r.Execute(`map.get_building_details("B083")`)
	if !res.OK() {
		t.Errorf("got %+v", res)
	}
}

func TestExecutePositionalOrderBeyondTen(t *testing.T) {
	var params []Param
	var args []string
	for i := 0; i < 12; i++ {
		params = append(params, Param{Name: fmt.Sprintf("p%d", i)})
		args = append(args, fmt.Sprintf(`"v%d"`, i))
	}
	var got Args
	reg := NewRegistry(Action{
		Name: "ns.many", System: "ns", Method: "many", Params: params,
		Handle: func(_ *campus.World, a Args) campus.ToolResult {
			got = a
			return campus.Success("ok", nil)
		},
	})
	r := NewWithRegistry(reg, nil, []string{"ns"}, zap.NewNop())

	if res := r.Execute("ns.many(" + strings.Join(args, ", ") + ")"); !res.OK() {
		t.Fatalf("got %+v", res)
	}
	for i := 0; i < 12; i++ {
		key, want := fmt.Sprintf("p%d", i), fmt.Sprintf("v%d", i)
		if got[key] != want {
			t.Errorf("%s: got %v, want %s", key, got[key], want)
		}
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	reg := NewRegistry(Action{
		Name: "ns.boom", System: "ns", Method: "boom",
		Handle: func(*campus.World, Args) campus.ToolResult { panic("kaboom") },
	})
	r := NewWithRegistry(reg, nil, []string{"ns"}, zap.NewNop())
	res := r.Execute(`ns.boom()`)
	if res.Status != campus.StatusError || !strings.Contains(res.Message, "kaboom") {
		t.Errorf("got %+v", res)
	}
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt([]string{"map", "geography"})
	if !strings.Contains(p, "find_optimal_path(") || !strings.Contains(p, "walk_to(path_info: dict)") {
		t.Error("prompt missing map or geography tools")
	}
	if strings.Contains(p, "send_email") {
		t.Error("prompt lists a disallowed system")
	}
	if n := strings.Count(p, "Map & Geography Tools"); n != 1 {
		t.Errorf("got %d map headers, want 1", n)
	}
	if all := SystemPrompt(nil); !strings.Contains(all, "submit_draft()") {
		t.Error("full prompt missing registration tools")
	}
}
