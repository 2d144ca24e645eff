package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/llm"
)

// Note is a full note as returned by read_note.
type Note struct {
	ID      string `json:"noteId"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NoteResult is a single hit from a note search or listing.
type NoteResult struct {
	ID      string  `json:"noteId"`
	Title   string  `json:"title"`
	Preview string  `json:"preview,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// NoteService is the narrow surface of the note subsystem the tools
// consume. The real implementation lives with the note storage; tests use
// a fake.
type NoteService interface {
	// SearchNotes runs semantic search over note content.
	SearchNotes(ctx context.Context, query string, limit int) ([]NoteResult, error)

	// KeywordSearch runs exact keyword and attribute search. Queries may
	// use attribute syntax such as #label or #label=value.
	KeywordSearch(ctx context.Context, query string, limit int) ([]NoteResult, error)

	// ListNotes lists child notes under a parent, or top-level notes when
	// parentID is empty.
	ListNotes(ctx context.Context, parentID string, limit int) ([]NoteResult, error)

	// ReadNote fetches one note by id.
	ReadNote(ctx context.Context, noteID string) (*Note, error)
}

const defaultSearchLimit = 10

// RegisterNoteTools registers the built-in note tools against a
// NoteService.
func RegisterNoteTools(registry *Registry, notes NoteService, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "note_tools").Logger()

	register := func(tool *Tool) error {
		return registry.Register(tool)
	}

	if err := register(&Tool{
		Definition: definition("search_notes",
			"Search notes semantically by meaning. Use this for conceptual queries where exact wording is unknown.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Natural language search query",
					},
					"maxResults": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results to return",
					},
				},
				"required": []string{"query"},
			}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			limit := intArg(args, "maxResults", defaultSearchLimit)
			logger.Info().Str("query", query).Int("limit", limit).Msg("search_notes")
			results, err := notes.SearchNotes(ctx, query, limit)
			if err != nil {
				return nil, err
			}
			return searchPayload(results), nil
		},
	}); err != nil {
		return err
	}

	if err := register(&Tool{
		Definition: definition("keyword_search_notes",
			"Search notes by exact keywords or attributes. Supports attribute syntax like #label or #label=value.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Keyword or attribute search expression",
					},
					"maxResults": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results to return",
					},
				},
				"required": []string{"query"},
			}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			limit := intArg(args, "maxResults", defaultSearchLimit)
			logger.Info().Str("query", query).Int("limit", limit).Msg("keyword_search_notes")
			results, err := notes.KeywordSearch(ctx, query, limit)
			if err != nil {
				return nil, err
			}
			return searchPayload(results), nil
		},
	}); err != nil {
		return err
	}

	if err := register(&Tool{
		Definition: definition("list_notes",
			"List notes under a parent note, or top-level notes when no parent is given.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"parentNoteId": map[string]any{
						"type":        "string",
						"description": "Parent note id; omit for top-level notes",
					},
					"maxResults": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results to return",
					},
				},
			}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			parentID, _ := args["parentNoteId"].(string)
			limit := intArg(args, "maxResults", defaultSearchLimit)
			logger.Info().Str("parent", parentID).Int("limit", limit).Msg("list_notes")
			results, err := notes.ListNotes(ctx, parentID, limit)
			if err != nil {
				return nil, err
			}
			return searchPayload(results), nil
		},
	}); err != nil {
		return err
	}

	return register(&Tool{
		Definition: definition("read_note",
			"Read the full content of a note by its id.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"noteId": map[string]any{
						"type":        "string",
						"description": "Id of the note to read",
					},
				},
				"required": []string{"noteId"},
			}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			noteID, err := stringArg(args, "noteId")
			if err != nil {
				return nil, err
			}
			logger.Info().Str("noteId", noteID).Msg("read_note")
			note, err := notes.ReadNote(ctx, noteID)
			if err != nil {
				return nil, err
			}
			return note, nil
		},
		// A found note is never empty even if its body is short.
		IsEmpty: func(string) bool { return false },
	})
}

func definition(name, description string, parameters map[string]any) llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

func searchPayload(results []NoteResult) map[string]any {
	return map[string]any{
		"count":   len(results),
		"results": results,
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("missing required parameter '%s'", key)
	}
	return val, nil
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return fallback
}
