package engine

import (
	"errors"
	"testing"

	"github.com/tatianab/dicetale/internal/commands"
	"github.com/tatianab/dicetale/internal/models"
	"github.com/tidwall/gjson"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		path string
		want string
	}{
		{"single quotes", `{'a': 'b'}`, "a", "b"},
		{"trailing commas", `{"a": [1, 2,], "b": "x",}`, "b", "x"},
		{"bare keys", `{description: "x", options: []}`, "description", "x"},
		{"unclosed", `{"description": "x", "options": [{"id": 1`, "options.0.id", "1"},
		{"missing comma", `{"a": "x" "b": "y"}`, "b", "y"},
		{"python literal", `{"ok": True, "none": None}`, "ok", "true"},
		{"raw newline", "{\"a\": \"line1\nline2\"}", "a", "line1\nline2"},
		{"unclosed string", `{"a": "open`, "a", "open"},
		{"stray closer", `{"a": 1}]`, "a", "1"},
		{"inner double quote", `{'say': 'he said "hi"'}`, "say", `he said "hi"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := repairJSON(tt.in)
			if !gjson.Valid(out) {
				t.Fatalf("repairJSON(%q) = %q, not valid JSON", tt.in, out)
			}
			if got := gjson.Get(out, tt.path).String(); got != tt.want {
				t.Errorf("%s = %q, want %q (out %q)", tt.path, got, tt.want, out)
			}
		})
	}
}

func TestRepairJSONKeepsValidInput(t *testing.T) {
	in := `{"a": [1, 2], "b": {"c": null}}`
	if out := repairJSON(in); out != in {
		t.Errorf("repairJSON changed valid input: %q", out)
	}
}

func TestParseReplyCleanup(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain", `{"description": "Rain.", "options": [{"id": 1, "text": "Wait"}]}`},
		{"fenced", "Sure!\n```json\n{\"description\": \"Rain.\", \"options\": [{\"id\": 1, \"text\": \"Wait\"}]}\n```"},
		{"full width", `｛"description"：“Rain.”，"options"：［｛"id"：1，"text"："Wait"｝］｝`},
		{"array wrapped", `[{"description": "Rain.", "options": [{"id": 1, "text": "Wait"}]}]`},
		{"string wrapped", `"{\"description\": \"Rain.\", \"options\": [{\"id\": 1, \"text\": \"Wait\"}]}"`},
		{"sloppy", `{description: 'Rain.', options: [{id: '1', text: 'Wait',},],`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseReply(tt.raw, false)
			if err != nil {
				t.Fatalf("parseReply: %v", err)
			}
			if r.Description != "Rain." {
				t.Errorf("description = %q", r.Description)
			}
			if len(r.Options) != 1 || r.Options[0].ID != 1 || r.Options[0].Text != "Wait" {
				t.Errorf("options = %+v", r.Options)
			}
			if r.Options[0].Type != models.OptionNormal {
				t.Errorf("type = %q, want normal", r.Options[0].Type)
			}
		})
	}
}

func TestParseReplyErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose", "I cannot continue the story."},
		{"no description", `{"options": [{"id": 1, "text": "Wait"}]}`},
		{"no options", `{"description": "Rain."}`},
		{"only bad options", `{"description": "Rain.", "options": [{"id": "one", "text": "Wait"}]}`},
		{"empty array", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseReply(tt.raw, false)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
		})
	}
}

func TestParseReplyNoOptions(t *testing.T) {
	r, err := parseReply(`{"description": "Rain."}`, true)
	if err != nil {
		t.Fatalf("parseReply: %v", err)
	}
	if len(r.Options) != 1 {
		t.Fatalf("options = %+v, want the placeholder", r.Options)
	}
	o := r.Options[0]
	if o.Type != models.OptionMust || o.MainFactor != models.Luck || o.Difficulty != 99999 {
		t.Errorf("placeholder = %+v", o)
	}
}

func TestParseOptionCoercion(t *testing.T) {
	raw := `{"description": "d", "options": [
		{"id": "2", "text": "Climb", "type": "CHECK", "main_factor": "str", "difficulty": "25", "base_probability": "0.4"},
		{"id": 3, "text": "Read", "type": "must", "difficulty": 30},
		{"id": 4, "text": "Leave", "type": "teleport"},
		{"id": 5, "text": "Bad", "difficulty": "hard"},
		"not an option"
	]}`
	r, err := parseReply(raw, false)
	if err != nil {
		t.Fatalf("parseReply: %v", err)
	}
	if len(r.Options) != 3 {
		t.Fatalf("got %d options, want 3: %+v", len(r.Options), r.Options)
	}

	climb := r.Options[0]
	if climb.ID != 2 || climb.Type != models.OptionCheck || climb.MainFactor != "STR" || climb.Difficulty != 25 {
		t.Errorf("climb = %+v", climb)
	}
	if climb.Probability == nil || *climb.Probability != 0.4 {
		t.Errorf("climb probability = %v, want 0.4", climb.Probability)
	}

	read := r.Options[1]
	if read.MainFactor != models.Luck || read.Probability != nil {
		t.Errorf("read = %+v, want LUK threshold and no probability", read)
	}
	if leave := r.Options[2]; leave.Type != models.OptionNormal {
		t.Errorf("unknown type became %q, want normal", leave.Type)
	}
}

func TestParseReplyCommands(t *testing.T) {
	raw := `{"description": "d", "options": [{"id": 1, "text": "x"}],
		"commands": [{"command": "add_item", "value": {"Rope": "hemp"}}, {"command": "bogus"}]}`
	r, err := parseReply(raw, false)
	if err != nil {
		t.Fatalf("parseReply: %v", err)
	}
	if len(r.Commands) != 2 {
		t.Fatalf("commands = %+v", r.Commands)
	}
	if _, ok := r.Commands[0].(commands.AddItem); !ok {
		t.Errorf("commands[0] = %T, want AddItem", r.Commands[0])
	}
	if _, ok := r.Commands[1].(commands.Malformed); !ok {
		t.Errorf("commands[1] = %T, want Malformed", r.Commands[1])
	}
}

func TestParseClassification(t *testing.T) {
	c, err := parseClassification(`{"type": "check", "main_factor": "dex", "difficulty": 22, "base_probability": 0.6}`)
	if err != nil {
		t.Fatalf("parseClassification: %v", err)
	}
	if c.Type != models.OptionCheck || c.MainFactor != "DEX" || c.Difficulty != 22 || c.BaseProbability != 0.6 {
		t.Errorf("got %+v", c)
	}

	c, err = parseClassification(`{}`)
	if err != nil {
		t.Fatalf("parseClassification({}): %v", err)
	}
	if c.Type != models.OptionNormal || c.MainFactor != models.Luck || c.Difficulty != 0 || c.BaseProbability != 0.3 {
		t.Errorf("defaults = %+v", c)
	}

	if _, err := parseClassification(`{"difficulty": "very"}`); err == nil {
		t.Errorf("non-numeric difficulty accepted")
	}
}

func TestParseCompaction(t *testing.T) {
	c, err := parseCompaction(`{"summary": "It rained.", "useless_items": ["Stick", ""], "useless_vars": []}`)
	if err != nil {
		t.Fatalf("parseCompaction: %v", err)
	}
	if c.Summary != "It rained." || len(c.UselessItems) != 1 || c.UselessItems[0] != "Stick" || len(c.UselessVars) != 0 {
		t.Errorf("got %+v", c)
	}

	for _, raw := range []string{
		`{"useless_items": [], "useless_vars": []}`,
		`{"summary": "x", "useless_vars": []}`,
		`{"summary": "x", "useless_items": []}`,
	} {
		if _, err := parseCompaction(raw); err == nil {
			t.Errorf("parseCompaction(%s) accepted", raw)
		}
	}
}

func TestParseValidity(t *testing.T) {
	tests := []struct {
		raw     string
		want    bool
		wantErr bool
	}{
		{`{"is_valid": 1}`, true, false},
		{`{"is_valid": 0}`, false, false},
		{`{"is_valid": true}`, true, false},
		{`{"valid": 1}`, false, true},
		{`nope`, false, true},
	}
	for _, tt := range tests {
		got, err := parseValidity(tt.raw)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseValidity(%s) = %v, %v", tt.raw, got, err)
		}
	}
}
