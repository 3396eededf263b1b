package llm

import (
	"encoding/json"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/nhle/inbox-companion/internal/apperr"
)

const (
	maxListItems = 3

	// uncategorized is always accepted; the prompt tells the model to use
	// it when no allowed label fits.
	uncategorized = "uncategorized"
)

// Analysis is a model reply that satisfied the analysis contract. Values
// are already clamped into range.
type Analysis struct {
	Lang             string   `json:"lang"`
	Bullets          []string `json:"bullets"`
	KeyActions       []string `json:"key_actions"`
	Urgency          int      `json:"urgency"`
	Importance       int      `json:"importance"`
	Labels           []string `json:"labels"`
	Confidence       float64  `json:"confidence"`
	Notes            string   `json:"notes"`
	Truncated        bool     `json:"truncated"`
	Model            string   `json:"model"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
}

// reply is the wire shape of the model's JSON. Pointer fields are
// required; the rest default when absent. A priority field, if sent, is
// ignored.
type reply struct {
	Lang       string   `json:"lang"`
	Bullets    []string `json:"bullets"`
	KeyActions []string `json:"key_actions"`
	Urgency    *float64 `json:"urgency"`
	Importance *float64 `json:"importance"`
	Labels     []string `json:"labels"`
	Confidence *float64 `json:"confidence"`
	Notes      string   `json:"notes"`
}

var (
	thinkBlock    = regexp.MustCompile(`(?is)<think>.*?</think>`)
	codeFence     = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseAnalysis extracts the JSON object from a model reply and validates
// it. Labels are normalized and filtered to allowed when allowed is not
// empty.
func ParseAnalysis(content string, allowed []string) (*Analysis, error) {
	const op = "llm.parse"

	raw, ok := extractJSON(content)
	if !ok {
		return nil, apperr.Validationf(op, "no JSON object in model reply")
	}

	var r reply
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&r); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, err, "invalid JSON from model")
	}

	var missing []string
	if r.Urgency == nil {
		missing = append(missing, "urgency")
	}
	if r.Importance == nil {
		missing = append(missing, "importance")
	}
	if r.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if len(missing) > 0 {
		return nil, apperr.Validationf(op, "model reply missing required fields: %s", strings.Join(missing, ", "))
	}

	return &Analysis{
		Lang:       strings.ToLower(strings.TrimSpace(r.Lang)),
		Bullets:    cleanList(r.Bullets, maxListItems),
		KeyActions: cleanList(r.KeyActions, maxListItems),
		Urgency:    clampLevel(*r.Urgency),
		Importance: clampLevel(*r.Importance),
		Labels:     normalizeLabels(r.Labels, allowed),
		Confidence: clampUnit(*r.Confidence),
		Notes:      strings.TrimSpace(r.Notes),
	}, nil
}

// extractJSON strips reasoning blocks and markdown fences, then returns
// the outermost object with trailing commas removed.
func extractJSON(content string) (string, bool) {
	s := thinkBlock.ReplaceAllString(content, "")
	s = codeFence.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") && json.Valid([]byte(s)) {
		return s, true
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return trailingComma.ReplaceAllString(s[start:end+1], "$1"), true
}

func clampLevel(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(5, v))))
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// cleanList trims entries, drops empty ones and keeps at most n.
func cleanList(items []string, n int) []string {
	out := make([]string, 0, min(len(items), n))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		out = append(out, it)
		if len(out) == n {
			break
		}
	}
	return out
}

// normalizeLabels lowercases, dedupes and filters labels, keeping at most
// three in the order the model gave them.
func normalizeLabels(labels, allowed []string) []string {
	out := make([]string, 0, maxListItems)
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || slices.Contains(out, l) {
			continue
		}
		if len(allowed) > 0 && l != uncategorized && !slices.Contains(allowed, l) {
			continue
		}
		out = append(out, l)
		if len(out) == maxListItems {
			break
		}
	}
	return out
}

func normalizeAllowed(labels []string) []string {
	var out []string
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}
