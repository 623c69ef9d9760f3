package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tatianab/dicetale/internal/commands"
	"github.com/tatianab/dicetale/internal/models"
	"github.com/tidwall/gjson"
	"golang.org/x/text/width"
)

// ErrNoObject is returned when a response holds no JSON object.
var ErrNoObject = errors.New("no JSON object in response")

// ParseError reports a model response that could not be used. The request
// is regenerated when it happens.
type ParseError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse response: %s: %v", e.Reason, e.Err)
	}
	return "parse response: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

var quoteFolder = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`,
	"‘", "'", "’", "'",
)

// foldPunctuation maps full-width and typographic punctuation to ASCII so
// that responses written in CJK locales still parse.
func foldPunctuation(s string) string {
	return quoteFolder.Replace(width.Narrow.String(s))
}

// extractObject returns the text from the first '{' to the last '}'. Text
// without such a pair is returned as is.
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

const maxUnwrap = 8

// decodeObject runs the whole cleanup pipeline on a raw response and
// returns the top-level object. Arrays are unwrapped to their first
// element and strings are parsed again.
func decodeObject(raw string) (gjson.Result, error) {
	text := clean(foldPunctuation(raw))
	for range maxUnwrap {
		if !gjson.Valid(text) {
			return gjson.Result{}, &ParseError{Reason: "invalid JSON", Raw: raw}
		}
		r := gjson.Parse(text)
		switch {
		case r.IsObject():
			return r, nil
		case r.IsArray():
			arr := r.Array()
			if len(arr) == 0 {
				return gjson.Result{}, &ParseError{Reason: "empty array", Raw: raw, Err: ErrNoObject}
			}
			text = arr[0].Raw
		case r.Type == gjson.String:
			text = clean(r.Str)
		default:
			return gjson.Result{}, &ParseError{Reason: "top level is " + r.Type.String(), Raw: raw, Err: ErrNoObject}
		}
	}
	return gjson.Result{}, &ParseError{Reason: "too deeply wrapped", Raw: raw, Err: ErrNoObject}
}

// clean returns s if it is valid JSON, and otherwise the repaired object
// found inside it.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if gjson.Valid(s) {
		return s
	}
	return repairJSON(extractObject(s))
}

// reply is a validated turn response.
type reply struct {
	Description string
	Summary     string
	Options     []models.Option
	Commands    []commands.Command
}

// noOptionsPlaceholder is offered in no-options mode. Its threshold can
// never be met, so only a custom action moves the story on.
var noOptionsPlaceholder = models.Option{
	ID:         0,
	Text:       "Describe your own action to continue",
	Type:       models.OptionMust,
	MainFactor: models.Luck,
	Difficulty: 99999,
}

// parseReply decodes a turn response. description is always required;
// options are required unless noOptions is set.
func parseReply(raw string, noOptions bool) (*reply, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	r := &reply{
		Description: strings.TrimSpace(obj.Get("description").String()),
		Summary:     strings.TrimSpace(obj.Get("summary").String()),
		Commands:    commands.Parse(obj.Get("commands")),
	}
	if r.Description == "" {
		return nil, &ParseError{Reason: "missing description", Raw: raw}
	}

	if noOptions {
		r.Options = []models.Option{noOptionsPlaceholder}
		return r, nil
	}
	obj.Get("options").ForEach(func(_, v gjson.Result) bool {
		if o, ok := parseOption(v); ok {
			r.Options = append(r.Options, o)
		}
		return true
	})
	if len(r.Options) == 0 {
		return nil, &ParseError{Reason: "missing options", Raw: raw}
	}
	return r, nil
}

// parseOption coerces one option. Options whose id or difficulty is not a
// number are dropped.
func parseOption(v gjson.Result) (models.Option, bool) {
	if !v.IsObject() {
		return models.Option{}, false
	}
	id, ok := toInt(v.Get("id"))
	if !ok {
		return models.Option{}, false
	}
	diff, ok := toInt(v.Get("difficulty"))
	if !ok {
		return models.Option{}, false
	}
	base, _ := toFloat(v.Get("base_probability"))

	o := models.Option{
		ID:              id,
		Text:            strings.TrimSpace(v.Get("text").String()),
		Type:            optionType(v.Get("type").String()),
		MainFactor:      strings.ToUpper(strings.TrimSpace(v.Get("main_factor").String())),
		Difficulty:      diff,
		BaseProbability: base,
		NextPreview:     v.Get("next_preview").String(),
	}
	o.Normalize()
	return o, true
}

func optionType(s string) models.OptionType {
	switch t := models.OptionType(strings.ToLower(strings.TrimSpace(s))); t {
	case models.OptionCheck, models.OptionMust:
		return t
	}
	return models.OptionNormal
}

// toInt accepts numbers and numeric strings. A missing value is 0.
func toInt(v gjson.Result) (int, bool) {
	f, ok := toFloat(v)
	return int(f), ok
}

func toFloat(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Null:
		return 0, true
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// Classification is how the model says a custom action should resolve.
type Classification struct {
	Type            models.OptionType
	MainFactor      string
	Difficulty      int
	BaseProbability float64
}

func parseClassification(raw string) (Classification, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return Classification{}, err
	}
	c := Classification{
		Type:            models.OptionNormal,
		MainFactor:      models.Luck,
		BaseProbability: 0.3,
	}
	if t := obj.Get("type"); t.Exists() {
		c.Type = optionType(t.String())
	}
	if f := strings.ToUpper(strings.TrimSpace(obj.Get("main_factor").String())); f != "" {
		c.MainFactor = f
	}
	if d, ok := toInt(obj.Get("difficulty")); ok {
		c.Difficulty = d
	} else {
		return c, &ParseError{Reason: "difficulty is not a number", Raw: raw}
	}
	if p := obj.Get("base_probability"); p.Exists() {
		f, ok := toFloat(p)
		if !ok {
			return c, &ParseError{Reason: "base_probability is not a number", Raw: raw}
		}
		c.BaseProbability = f
	}
	return c, nil
}

// compaction is the response to a summary prompt.
type compaction struct {
	Summary      string
	UselessItems []string
	UselessVars  []string
}

func parseCompaction(raw string) (compaction, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return compaction{}, err
	}
	summary := obj.Get("summary")
	if summary.Type != gjson.String || strings.TrimSpace(summary.Str) == "" {
		return compaction{}, &ParseError{Reason: "missing summary", Raw: raw}
	}
	c := compaction{Summary: strings.TrimSpace(summary.Str)}
	for _, key := range []string{"useless_items", "useless_vars"} {
		if v := obj.Get(key); !v.Exists() || !v.IsArray() {
			return compaction{}, &ParseError{Reason: "missing " + key, Raw: raw}
		}
	}
	c.UselessItems = stringList(obj.Get("useless_items"))
	c.UselessVars = stringList(obj.Get("useless_vars"))
	return c, nil
}

func stringList(v gjson.Result) []string {
	var out []string
	for _, el := range v.Array() {
		if s := strings.TrimSpace(el.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseValidity reads {"is_valid": 1}.
func parseValidity(raw string) (bool, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return false, err
	}
	v := obj.Get("is_valid")
	if !v.Exists() {
		return false, &ParseError{Reason: "missing is_valid", Raw: raw}
	}
	return v.Int() == 1 || v.Type == gjson.True, nil
}
