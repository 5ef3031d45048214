package conversations

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hetulpatel/dbcheck/internal/config"
	"github.com/hetulpatel/dbcheck/internal/queryrunner"
)

const DefaultLimit = 10

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is the part of a conversations row the report shows.
type Conversation struct {
	UserID    string    `json:"user_id"`
	Stage     string    `json:"stage"`
	History   []Message `json:"history"`
	UpdatedAt time.Time `json:"updated_at"`
}

const recentPostgres = `SELECT user_id, stage, history, updated_at FROM conversations WHERE jsonb_array_length(history) > 0 ORDER BY updated_at DESC LIMIT $1`

const recentSQLite = `SELECT user_id, stage, history, updated_at FROM conversations WHERE json_array_length(history) > 0 ORDER BY updated_at DESC LIMIT ?`

// RecentQuery returns the statement selecting the most recently updated
// conversations with a non-empty history, for the given driver. The limit is
// passed as the single bind parameter.
func RecentQuery(driver string) string {
	if driver == config.DriverSQLite {
		return recentSQLite
	}
	return recentPostgres
}

// FromRow decodes one result row. History may arrive decoded ([]any) or as raw JSON.
func FromRow(row queryrunner.Row) (Conversation, error) {
	var c Conversation
	c.UserID = stringValue(row["user_id"])
	c.Stage = stringValue(row["stage"])

	switch ts := row["updated_at"].(type) {
	case time.Time:
		c.UpdatedAt = ts
	case nil, queryrunner.Unbounded:
	default:
		return Conversation{}, fmt.Errorf("conversation %s: updated_at is %T, want time", c.UserID, ts)
	}

	history, err := decodeHistory(row["history"])
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation %s: %w", c.UserID, err)
	}
	c.History = history
	return c, nil
}

// FromRows decodes every record of a Rows result.
func FromRows(rows queryrunner.Rows) ([]Conversation, error) {
	out := make([]Conversation, 0, len(rows.Records))
	for _, r := range rows.Records {
		c, err := FromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeHistory(v any) ([]Message, error) {
	var raw []byte
	switch h := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = []byte(h)
	case []byte:
		raw = h
	default:
		// Decoded JSON; round-trip through encoding/json to reach the typed form.
		b, err := json.Marshal(h)
		if err != nil {
			return nil, fmt.Errorf("encode history: %w", err)
		}
		raw = b
	}
	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return msgs, nil
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}
