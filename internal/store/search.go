package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nhle/inbox-companion/internal/model"
)

const defaultSearchLimit = 50

// searchColumns are the indexed message fields used for substring matches.
var searchColumns = []string{"subject", "from_name", "from_email", "snippet", "body_preview"}

// Search returns messages whose indexed fields contain every query term.
// Whole-term matches from the FTS index come first, ordered by bm25;
// substring-only matches (e.g. "voice" in "invoice") follow. Ties break
// on date then id, both descending, so identical inputs give identical
// output.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]model.Message, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	match := ftsMatchExpr(terms)

	// The tokenizer folds diacritics and splits on punctuation, so index
	// hits are narrowed to rows that contain every term literally.
	literal, likeArgs := literalMatch(terms)

	var exact []model.Message
	args := append([]any{match}, likeArgs...)
	args = append(args, limit)
	err := s.db.SelectContext(ctx, &exact, `
		SELECT `+prefixed("m", messageColumns)+`
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		WHERE messages_fts MATCH ?
		AND `+literal+`
		ORDER BY bm25(messages_fts), m.date DESC, m.id DESC
		LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("searching index for %q: %w", query, err)
	}
	if len(exact) >= limit {
		return exact, nil
	}

	args = append(slices.Clone(likeArgs), match, limit-len(exact))

	var partial []model.Message
	err = s.db.SelectContext(ctx, &partial, `
		SELECT `+prefixed("m", messageColumns)+`
		FROM messages m
		WHERE `+literal+`
		AND m.id NOT IN (SELECT rowid FROM messages_fts WHERE messages_fts MATCH ?)
		ORDER BY m.date DESC, m.id DESC
		LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("searching substrings for %q: %w", query, err)
	}

	return append(exact, partial...), nil
}

// literalMatch builds a predicate requiring each term to appear as a
// substring of at least one indexed column, with its bind arguments.
func literalMatch(terms []string) (string, []any) {
	conds := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms)*len(searchColumns))
	for _, term := range terms {
		pattern := "%" + escapeLike(term) + "%"
		ors := make([]string, 0, len(searchColumns))
		for _, col := range searchColumns {
			ors = append(ors, "m."+col+` LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	return strings.Join(conds, " AND "), args
}

// ftsMatchExpr quotes each term as an FTS5 string so user input is never
// parsed as query syntax. Terms are implicitly ANDed.
func ftsMatchExpr(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
