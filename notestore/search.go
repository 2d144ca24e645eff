package notestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// SearchNotes executes full-text search over note titles and content,
// best matches first.
func (s *Store) SearchNotes(ctx context.Context, queryText string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, nil
	}

	s.logger.Debug().
		Str("queryText", queryText).
		Int("limit", limit).
		Msg("SearchNotes: begin")

	rows, err := s.db.QueryContext(ctx, `
SELECT rowid, rank
FROM notes_fts
WHERE notes_fts MATCH ?
ORDER BY rank
LIMIT ?
`, ftsQuery(queryText), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("SearchNotes: FTS query failed")
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var ids []int64
	scores := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, err
		}
		ids = append(ids, id)
		// FTS5 rank is an inverted bm25: smaller (more negative) is better.
		scores[id] = -rank
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		s.logger.Debug().Msg("SearchNotes: no FTS matches")
		return nil, nil
	}

	notes, err := s.loadNotesByRowIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := lo.FilterMap(ids, func(id int64, _ int) (Result, bool) {
		note, ok := notes[id]
		if !ok {
			return Result{}, false
		}
		return Result{
			ID:      note.ID,
			Title:   note.Title,
			Preview: preview(note.Content),
			Score:   scores[id],
		}, true
	})

	s.logger.Info().
		Int("numResults", len(results)).
		Str("queryText", queryText).
		Msg("SearchNotes: completed")
	return results, nil
}

// KeywordSearch runs exact keyword and attribute search. Tokens prefixed
// with # match note attributes: "#label" requires the label to be present,
// "#label=value" requires an exact value. Remaining tokens must all appear
// in the title or content.
func (s *Store) KeywordSearch(ctx context.Context, queryText string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}

	attrFilters, keywords := splitAttributeQuery(queryText)
	if len(attrFilters) == 0 && len(keywords) == 0 {
		return nil, nil
	}

	candidates, err := s.keywordCandidates(ctx, keywords, limit*3)
	if err != nil {
		return nil, err
	}

	matched := lo.FilterMap(candidates, func(note *Note, _ int) (Result, bool) {
		if !matchesAttributes(note, attrFilters) {
			return Result{}, false
		}
		return Result{
			ID:      note.ID,
			Title:   note.Title,
			Preview: preview(note.Content),
			Score:   1.0,
		}, true
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	s.logger.Info().
		Int("numResults", len(matched)).
		Int("attrFilters", len(attrFilters)).
		Int("keywords", len(keywords)).
		Msg("KeywordSearch: completed")
	return matched, nil
}

// attributeFilter is one parsed #name or #name=value term.
type attributeFilter struct {
	name  string
	value string
	exact bool
}

func splitAttributeQuery(queryText string) ([]attributeFilter, []string) {
	var filters []attributeFilter
	var keywords []string
	for _, token := range strings.Fields(queryText) {
		if !strings.HasPrefix(token, "#") {
			keywords = append(keywords, token)
			continue
		}
		term := strings.TrimPrefix(token, "#")
		if term == "" {
			continue
		}
		if name, value, found := strings.Cut(term, "="); found {
			filters = append(filters, attributeFilter{name: name, value: value, exact: true})
		} else {
			filters = append(filters, attributeFilter{name: term})
		}
	}
	return filters, keywords
}

func matchesAttributes(note *Note, filters []attributeFilter) bool {
	for _, filter := range filters {
		found := false
		for _, attr := range note.Attributes {
			if !strings.EqualFold(attr.Name, filter.name) {
				continue
			}
			if filter.exact && attr.Value != filter.value {
				continue
			}
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

// keywordCandidates loads notes whose title or content contains every
// keyword. With no keywords every note is a candidate, bounded by limit.
func (s *Store) keywordCandidates(ctx context.Context, keywords []string, limit int) ([]*Note, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT " + strings.Join(noteColumns(), ", ") + " FROM notes")
	var args []any
	for i, keyword := range keywords {
		if i == 0 {
			builder.WriteString(" WHERE ")
		} else {
			builder.WriteString(" AND ")
		}
		builder.WriteString("(title LIKE ? OR content LIKE ?)")
		pattern := "%" + keyword + "%"
		args = append(args, pattern, pattern)
	}
	builder.WriteString(" ORDER BY updated_at DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("keyword query: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var notes []*Note
	for rows.Next() {
		note, err := loadNoteFromRow(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// loadNotesByRowIDs fetches notes by their SQLite rowids, keyed by rowid so
// callers can preserve ranking order.
func (s *Store) loadNotesByRowIDs(ctx context.Context, ids []int64) (map[int64]*Note, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := "SELECT rowid, " + strings.Join(noteColumns(), ", ") +
		" FROM notes WHERE rowid IN (" + placeholders + ")"

	args := lo.Map(ids, func(id int64, _ int) any { return id })
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	notes := make(map[int64]*Note)
	for rows.Next() {
		var rowID int64
		var (
			noteID, title, typ, content string
			parentID, attrsJSON         sql.NullString
			createdAt, updatedAt        int64
		)
		if err := rows.Scan(&rowID, &noteID, &parentID, &title, &typ, &content,
			&attrsJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		notes[rowID] = noteFromColumns(noteID, parentID, title, typ, content, attrsJSON, createdAt, updatedAt)
	}
	return notes, rows.Err()
}

// ftsQuery quotes each token so user input cannot inject FTS5 operators.
func ftsQuery(queryText string) string {
	tokens := strings.Fields(queryText)
	quoted := lo.Map(tokens, func(token string, _ int) string {
		return `"` + strings.ReplaceAll(token, `"`, `""`) + `"`
	})
	return strings.Join(quoted, " ")
}
