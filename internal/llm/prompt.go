package llm

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nhle/inbox-companion/internal/model"
)

// maxMemoryChars bounds the memory block appended to the system prompt.
const maxMemoryChars = 3000

const systemPrompt = `You are a precise, privacy-preserving email triage assistant.
Read one email and output STRICT JSON with these fields:
lang, bullets (at most 3), key_actions (imperatives, at most 3),
urgency (integer 0..5), importance (integer 0..5),
labels (at most 3, chosen only from ALLOWED_LABELS), confidence (0..1), notes (string, optional).

DEFINITIONS
- Urgency: time pressure. 0 = none; 5 = same-day or immediate risk.
- Importance: relevance and impact for the reader, such as VIPs, finance, legal or prior commitments.
- Key actions: 1 to 3 concrete steps for the reader (e.g. "Reply: send availability Tue/Wed").
- Labels: pick ONLY from ALLOWED_LABELS. If nothing matches, use "uncategorized".
- Language: detect the primary language code such as "nl" or "en".

CONSTRAINTS
- Do NOT include any reasoning or extra text. Return ONLY JSON.
- Do NOT echo the email body.
- Newsletters and marketing with no action needed get importance at most 1 unless memory says otherwise.
- If the sender asks the reader for information or a decision, importance is at least 3.`

const schemaHint = `{"lang":"en","bullets":[],"key_actions":[],"urgency":0,"importance":0,"labels":[],"confidence":0,"notes":""}`

// SystemPrompt returns the triage instructions followed by the memory
// block, if any.
func SystemPrompt(memory string) string {
	if memory == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\nMEMORY:\n<<<\n" + memory + "\n>>>"
}

// UserPrompt renders the message to analyze. body must already be
// truncated.
func UserPrompt(allowed []string, req Request, body string, truncated bool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "ALLOWED_LABELS: [%s]\n", strings.Join(allowed, ", "))
	sb.WriteString("EMAIL:\n<<<\n")
	fmt.Fprintf(&sb, "Subject: %s\n", req.Subject)
	fmt.Fprintf(&sb, "From: %s <%s>\n", req.FromName, req.FromEmail)
	if !req.Date.IsZero() {
		fmt.Fprintf(&sb, "Date: %s\n", req.Date.Format("2006-01-02 15:04 MST"))
	}
	sb.WriteString("Body:\n")
	sb.WriteString(body)
	sb.WriteString("\n>>>\n")
	if truncated {
		sb.WriteString("NOTE: The body text was clipped.\n")
	}
	sb.WriteString("Schema reminder: ")
	sb.WriteString(schemaHint)

	return sb.String()
}

// MemoryBlock renders memory items grouped under [KIND] headers, in the
// given order, stopping before the block would exceed maxChars.
func MemoryBlock(items []model.MemoryItem, maxChars int) string {
	if len(items) == 0 {
		return ""
	}

	var lines []string
	current := ""
	used := 0
	for _, it := range items {
		kind := it.Kind
		if kind == "" {
			kind = "fact"
		}
		header := ""
		if kind != current {
			header = "[" + strings.ToUpper(kind) + "]"
		}
		line := fmt.Sprintf("- %s: %s", it.Key, strings.ReplaceAll(strings.TrimSpace(it.Value), "\n", " "))

		need := len(line) + 1
		if header != "" {
			need += len(header) + 1
		}
		if used+need > maxChars {
			break
		}
		if header != "" {
			lines = append(lines, header)
			current = kind
		}
		lines = append(lines, line)
		used += need
	}
	return strings.Join(lines, "\n")
}

// TruncateBody keeps the leading maxChars runes of body, cutting back to
// a word boundary when one is close. It reports whether anything was cut.
func TruncateBody(body string, maxChars int) (string, bool) {
	runes := []rune(body)
	if maxChars <= 0 || len(runes) <= maxChars {
		return body, false
	}

	cut := runes[:maxChars]
	for i := len(cut) - 1; i >= maxChars*9/10; i-- {
		if unicode.IsSpace(cut[i]) {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace), true
}
