// Package extract turns raw RFC 5322 messages into normalized plain text,
// a snippet, a preview and the header fields the store indexes.
package extract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"
)

const (
	DefaultSnippetChars = 200
	DefaultPreviewChars = 1200
)

// Headers holds the decoded header fields of a message.
type Headers struct {
	MessageID  string
	Subject    string
	FromName   string
	FromEmail  string
	Date       time.Time
	InReplyTo  string
	References string
}

// Extracted is the normalized content of one message.
type Extracted struct {
	Headers Headers
	Text    string
	Snippet string
	Preview string
	Hash    string

	// FromHTML is set when Text was derived from an HTML part.
	FromHTML bool
}

// Extractor converts a raw message into normalized text.
type Extractor interface {
	Extract(raw []byte) (*Extracted, error)
}

// MIMEExtractor walks MIME parts with go-message, preferring text/plain
// and falling back to HTML converted to text.
type MIMEExtractor struct {
	SnippetChars int
	PreviewChars int
}

// New returns a MIMEExtractor with the default budgets.
func New() *MIMEExtractor {
	return &MIMEExtractor{
		SnippetChars: DefaultSnippetChars,
		PreviewChars: DefaultPreviewChars,
	}
}

// Extract parses raw and derives text, snippet, preview and hash. A
// message go-message cannot parse is treated as a plain-text body with
// empty headers rather than an error.
func (e *MIMEExtractor) Extract(raw []byte) (*Extracted, error) {
	out := &Extracted{}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		out.Text = Normalize(string(raw))
		e.finish(out)
		return out, nil
	}
	defer mr.Close()

	out.Headers = readHeaders(&mr.Header)

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && plain == "":
			plain = string(body)
		case strings.HasPrefix(contentType, "text/html") && html == "":
			html = string(body)
		}
	}

	switch {
	case strings.TrimSpace(plain) != "":
		out.Text = Normalize(plain)
	case html != "":
		out.Text = HTMLToText(html)
		out.FromHTML = true
	}

	e.finish(out)
	return out, nil
}

func (e *MIMEExtractor) finish(out *Extracted) {
	out.Snippet = Truncate(strings.Join(strings.Fields(out.Text), " "), e.SnippetChars)
	out.Preview = Truncate(out.Text, e.PreviewChars)
	out.Hash = Hash(out.Text)
}

func readHeaders(h *mail.Header) Headers {
	var hd Headers

	if subject, err := h.Subject(); err == nil {
		hd.Subject = strings.TrimSpace(subject)
	} else {
		hd.Subject = strings.TrimSpace(h.Get("Subject"))
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		hd.FromName = strings.TrimSpace(from[0].Name)
		hd.FromEmail = strings.ToLower(strings.TrimSpace(from[0].Address))
	} else {
		hd.FromName = strings.TrimSpace(h.Get("From"))
	}

	if date, err := h.Date(); err == nil {
		hd.Date = date
	}
	if id, err := h.MessageID(); err == nil {
		hd.MessageID = id
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil {
		hd.InReplyTo = strings.Join(ids, " ")
	}
	if ids, err := h.MsgIDList("References"); err == nil {
		hd.References = strings.Join(ids, " ")
	}

	return hd
}

// HTMLToText strips markup from an HTML body and normalizes the result.
func HTMLToText(html string) string {
	return Normalize(html2text.HTML2Text(html))
}

// Normalize converts line endings to \n, trims trailing whitespace on
// each line, keeps at most one blank line between paragraphs and trims
// the result.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\u00a0", " ")

	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		result = append(result, line)
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}

// Truncate returns at most limit runes of s. When a cut is needed it
// backs off to the last whitespace if that keeps at least half the budget.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	cut := string(runes[:limit])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 && len([]rune(cut[:i])) >= limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace)
}

// Hash returns the hex SHA-256 of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
