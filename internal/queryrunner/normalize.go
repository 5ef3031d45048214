package queryrunner

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Unbounded stands in for an infinite timestamp or date, which has no
// time.Time equivalent.
type Unbounded int

const (
	NegativeInfinity Unbounded = -1
	PositiveInfinity Unbounded = 1
)

func (u Unbounded) String() string {
	if u < 0 {
		return "-infinity"
	}
	return "infinity"
}

func isTimeType(name string) bool {
	return strings.HasPrefix(name, "timestamp") || name == "date" || name == "datetime"
}

func isJSONType(name string) bool {
	return name == "json" || name == "jsonb"
}

// normalize converts driver values so timestamp columns come back as
// time.Time and JSON columns as decoded []any / map[string]any.
func normalize(col Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	typ := strings.ToLower(strings.TrimSpace(col.DatabaseType))
	switch {
	case isTimeType(typ):
		return toTime(v)
	case isJSONType(typ):
		return toJSON(v)
	}
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

func toTime(v any) (any, error) {
	var raw string
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	case string:
		raw = t
	case []byte:
		raw = string(t)
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case Unbounded:
		return t, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to time", v)
	}
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "infinity":
		return PositiveInfinity, nil
	case "-infinity":
		return NegativeInfinity, nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return nil, fmt.Errorf("unrecognized time format %q", raw)
}

func toJSON(v any) (any, error) {
	var raw []byte
	switch t := v.(type) {
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	case json.RawMessage:
		raw = t
	default:
		// Already decoded by the driver.
		return v, nil
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return out, nil
}
