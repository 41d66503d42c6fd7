package action

import (
	"reflect"
	"testing"
)

func TestParseInvalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"I think I should go to the library first.",
		"Let me send_email to the advisor",
		"<action>nothing here</action>",
	} {
		got := Parse(raw)
		if got.Kind != Invalid {
			t.Errorf("Parse(%q) = %v, want invalid", raw, got.Kind)
		}
		if got.Reason == "" {
			t.Errorf("Parse(%q) has no reason", raw)
		}
	}
}

func TestParseFinish(t *testing.T) {
	for _, raw := range []string{
		"Action: finish()",
		"<action>Action: finish()</action>",
		"Done.\n<ACTION>\n  Action: FINISH()\n</ACTION>",
		"All set, calling finish() now",
		"<action>finish( )</action>",
	} {
		if got := Parse(raw); got.Kind != Finish {
			t.Errorf("Parse(%q) = %+v, want finish", raw, got)
		}
	}
}

func TestParseAnswer(t *testing.T) {
	got := Parse("Thinking...\nAnswer: c")
	if got.Kind != Answer || got.Content != "C" || got.Reason != "quiz_answer" {
		t.Fatalf("got %+v", got)
	}

	got = Parse("Answer: F")
	if got.Kind != Invalid {
		t.Fatalf("letter F should be invalid, got %+v", got)
	}
	want := "Invalid answer letter 'F'. Must be A, B, C, D, or E."
	if got.Reason != want {
		t.Errorf("reason = %q, want %q", got.Reason, want)
	}
}

func TestParseTagDiscardsOutside(t *testing.T) {
	raw := `Action: map.find_building_id(building_name="Gym")
<action>Action: geography.get_current_location()</action>`
	got := Parse(raw)
	if got.Kind != Execute || got.Content != "geography.get_current_location()" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseStrictNestedParens(t *testing.T) {
	raw := `Action: email.send_email(to="a@b.com", subject="Hi (draft)", body="see (1) and (2)")`
	got := Parse(raw)
	want := `email.send_email(to="a@b.com", subject="Hi (draft)", body="see (1) and (2)")`
	if got.Kind != Execute || got.Content != want {
		t.Fatalf("got %+v", got)
	}
}

func TestParseLooseFallback(t *testing.T) {
	got := Parse(`I'll do it. Action: geography.walk_to(path_info={"path": ["B083"]}) then report.`)
	if got.Kind != Execute {
		t.Fatalf("got %+v", got)
	}
	if got.Content != `geography.walk_to(path_info={"path": ["B083"]})` {
		t.Errorf("content = %q", got.Content)
	}
}

func TestParseLooseFallbackMultiline(t *testing.T) {
	raw := "Action: email.send_email(recipient=\"a@b.com\",\n  subject=\"Hi\",\n  body=\"x\")"
	got := Parse(raw)
	if got.Kind != Execute {
		t.Fatalf("got %+v, want execute", got)
	}
	c, err := ParseCall(got.Content)
	if err != nil {
		t.Fatalf("parse call: %v", err)
	}
	if c.Name != "email.send_email" || c.Args["subject"] != "Hi" || c.Args["body"] != "x" {
		t.Errorf("got %+v", c)
	}
}

func TestParseCallRoundTrip(t *testing.T) {
	c, err := ParseCall(`ns.method(a="x", b=1)`)
	if err != nil {
		t.Fatalf("ParseCall: %v", err)
	}
	if c.Name != "ns.method" {
		t.Errorf("name = %q", c.Name)
	}
	want := map[string]any{"a": "x", "b": 1}
	if !reflect.DeepEqual(c.Args, want) {
		t.Errorf("args = %#v, want %#v", c.Args, want)
	}
}

func TestParseCallLiterals(t *testing.T) {
	c, err := ParseCall(`t.m("pos", flag=True, none=None, ratio=0.5, items=['a', "b"], pair=(1, 2), opts={"k": false, 'n': -3}, who=self, msg="line\nnext A")`)
	if err != nil {
		t.Fatalf("ParseCall: %v", err)
	}
	want := map[string]any{
		"arg_0": "pos",
		"flag":  true,
		"none":  nil,
		"ratio": 0.5,
		"items": []any{"a", "b"},
		"pair":  []any{1, 2},
		"opts":  map[string]any{"k": false, "n": -3},
		"who":   "self",
		"msg":   "line\nnext A",
	}
	if !reflect.DeepEqual(c.Args, want) {
		t.Errorf("args = %#v\nwant %#v", c.Args, want)
	}
}

func TestParseCallFallback(t *testing.T) {
	c, err := ParseCall(`email.send_email(to="a@b.com", subject="Hi", body="x" extra junk, urgent=true, count=2)`)
	if err != nil {
		t.Fatalf("ParseCall: %v", err)
	}
	want := map[string]any{"to": "a@b.com", "subject": "Hi", "body": "x", "urgent": true, "count": 2}
	if !reflect.DeepEqual(c.Args, want) {
		t.Errorf("args = %#v, want %#v", c.Args, want)
	}
}

func TestParseCallMalformed(t *testing.T) {
	if _, err := ParseCall("no parens here"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := ParseCall("(x=1)"); err == nil {
		t.Fatal("expected error for empty name")
	}
}
