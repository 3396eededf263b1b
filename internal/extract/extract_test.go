package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimPrefix(s, "\n"), "\n", "\r\n"))
}

func TestExtractPlainText(t *testing.T) {
	raw := crlf(`
From: "Alice Example" <Alice@Example.org>
To: bob@example.org
Subject: =?UTF-8?B?UXVhcnRlcmx5IHJlcG9ydCDinJM=?=
Date: Tue, 03 Sep 2024 10:15:00 +0200
Message-ID: <abc123@example.org>
In-Reply-To: <parent@example.org>
References: <root@example.org> <parent@example.org>
Content-Type: text/plain; charset=utf-8

Hi Bob,


Please review the attached numbers before Friday.   
Thanks
`)

	got, err := New().Extract(raw)
	require.NoError(t, err)

	assert.Equal(t, "Quarterly report ✓", got.Headers.Subject)
	assert.Equal(t, "Alice Example", got.Headers.FromName)
	assert.Equal(t, "alice@example.org", got.Headers.FromEmail)
	assert.Equal(t, "abc123@example.org", got.Headers.MessageID)
	assert.Equal(t, "parent@example.org", got.Headers.InReplyTo)
	assert.Equal(t, "root@example.org parent@example.org", got.Headers.References)
	assert.True(t, got.Headers.Date.Equal(time.Date(2024, 9, 3, 8, 15, 0, 0, time.UTC)))

	assert.Equal(t, "Hi Bob,\n\nPlease review the attached numbers before Friday.\nThanks", got.Text)
	assert.Equal(t, "Hi Bob, Please review the attached numbers before Friday. Thanks", got.Snippet)
	assert.Equal(t, got.Text, got.Preview)
	assert.Equal(t, Hash(got.Text), got.Hash)
	assert.False(t, got.FromHTML)
}

func TestExtractPrefersPlainOverHTML(t *testing.T) {
	raw := crlf(`
From: news@example.org
Subject: Weekly digest
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/html; charset=utf-8

<p>HTML <b>version</b></p>
--b1
Content-Type: text/plain; charset=utf-8

Plain version
--b1--
`)

	got, err := New().Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, "Plain version", got.Text)
	assert.False(t, got.FromHTML)
}

func TestExtractHTMLOnly(t *testing.T) {
	raw := crlf(`
From: shop@example.org
Subject: Your order
Content-Type: text/html; charset=utf-8

<html><body><h1>Order shipped</h1><p>Tracking number <a href="https://t.example/1">XYZ</a></p></body></html>
`)

	got, err := New().Extract(raw)
	require.NoError(t, err)
	assert.True(t, got.FromHTML)
	assert.Contains(t, got.Text, "Order shipped")
	assert.Contains(t, got.Text, "Tracking number")
	assert.NotContains(t, got.Text, "<p>")
	assert.NotContains(t, got.Text, "\r")
}

func TestExtractSkipsAttachments(t *testing.T) {
	raw := crlf(`
From: a@example.org
Subject: Invoice
Content-Type: multipart/mixed; boundary="m"

--m
Content-Type: text/plain

See attached invoice.
--m
Content-Type: application/pdf
Content-Disposition: attachment; filename="invoice.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQK
--m--
`)

	got, err := New().Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, "See attached invoice.", got.Text)
}

func TestExtractUnparsableFallsBackToText(t *testing.T) {
	got, err := New().Extract([]byte("no header separator here"))
	require.NoError(t, err)
	assert.NotEmpty(t, got.Hash)
}

func TestExtractPreviewBudget(t *testing.T) {
	body := strings.Repeat("word ", 600)
	raw := crlf("\nFrom: a@example.org\nSubject: long\nContent-Type: text/plain\n\n" + body)

	got, err := New().Extract(raw)
	require.NoError(t, err)

	assert.LessOrEqual(t, len([]rune(got.Preview)), DefaultPreviewChars)
	assert.Greater(t, len([]rune(got.Preview)), DefaultPreviewChars-len("word "))
	assert.LessOrEqual(t, len([]rune(got.Snippet)), DefaultSnippetChars)
	assert.True(t, strings.HasPrefix(got.Text, got.Preview))
}

func TestTruncateWordBoundary(t *testing.T) {
	s := "alpha beta gamma delta epsilon"

	assert.Equal(t, s, Truncate(s, 100))
	assert.Equal(t, "alpha beta", Truncate(s, 13))
	assert.Equal(t, "", Truncate(s, 0))

	// No whitespace in the leading half: hard cut.
	assert.Equal(t, "abcdefgh", Truncate("abcdefghijkl mnop", 8))

	// Deterministic.
	assert.Equal(t, Truncate(s, 17), Truncate(s, 17))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo wörld", 7))
	assert.Equal(t, "日本語", Truncate("日本語テキスト", 3))
}

func TestNormalize(t *testing.T) {
	in := "line one  \r\n\r\n\r\n\r\nline two x\r\n"
	assert.Equal(t, "line one\n\nline two x", Normalize(in))
}
