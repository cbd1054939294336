package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/papo-dev/papo/internal/archive"
	"github.com/papo-dev/papo/internal/journal"
)

// Dependencies holds the stores the inspection tools read from.
type Dependencies struct {
	Archive *archive.DB
	Journal *journal.Journal
}

// RegisterAll registers the inspection tools with the given server.
func RegisterAll(server *Server, deps *Dependencies) {
	server.RegisterTool(Tool{
		Name:        "recent_transcript",
		Description: "Get the most recent messages from the channel transcript, oldest first.",
		Properties: map[string]Property{
			"channel_id": {Type: "string", Description: "Channel to read. Optional - all channels if omitted."},
			"count":      {Type: "number", Description: "Number of messages to return (default 20)"},
		},
	}, func(args map[string]any) (string, error) {
		msgs, err := deps.Archive.RecentMessages(stringArg(args, "channel_id"), intArg(args, "count", 20))
		if err != nil {
			return "", err
		}
		return marshalResult(msgs)
	})

	server.RegisterTool(Tool{
		Name:        "recent_decisions",
		Description: "Get the most recent batch decisions (respond/ignore/wait with reason codes), newest first.",
		Properties: map[string]Property{
			"channel_id": {Type: "string", Description: "Channel to read. Optional - all channels if omitted."},
			"count":      {Type: "number", Description: "Number of decisions to return (default 20)"},
		},
	}, func(args map[string]any) (string, error) {
		decisions, err := deps.Archive.RecentDecisions(stringArg(args, "channel_id"), intArg(args, "count", 20))
		if err != nil {
			return "", err
		}
		return marshalResult(decisions)
	})

	server.RegisterTool(Tool{
		Name:        "search_transcript",
		Description: "Search the transcript for messages containing the given text.",
		Properties: map[string]Property{
			"query": {Type: "string", Description: "Text to search for in message content"},
			"count": {Type: "number", Description: "Maximum matches to return (default 20)"},
		},
		Required: []string{"query"},
	}, func(args map[string]any) (string, error) {
		query := stringArg(args, "query")
		if query == "" {
			return "", fmt.Errorf("query is required")
		}
		msgs, err := deps.Archive.SearchMessages(query, intArg(args, "count", 20))
		if err != nil {
			return "", err
		}
		return marshalResult(msgs)
	})

	if deps.Journal != nil {
		server.RegisterTool(Tool{
			Name:        "journal_recent",
			Description: "Get recent decision journal entries, including wait-loop counts and reply excerpts.",
			Properties: map[string]Property{
				"count": {Type: "number", Description: "Number of entries to return (default 20)"},
			},
		}, func(args map[string]any) (string, error) {
			entries, err := deps.Journal.Recent(intArg(args, "count", 20))
			if err != nil {
				return "", err
			}
			return marshalResult(entries)
		})

		server.RegisterTool(Tool{
			Name:        "journal_today",
			Description: "Get all decision journal entries from today.",
			Properties:  map[string]Property{},
		}, func(args map[string]any) (string, error) {
			entries, err := deps.Journal.Today()
			if err != nil {
				return "", err
			}
			return marshalResult(entries)
		})
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

func marshalResult(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
