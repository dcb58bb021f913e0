package keyset

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// MaxCursorLength bounds the size of a token accepted by Decode.
const MaxCursorLength = 2048

// Encode serializes the values of exactly the columns in spec into an opaque,
// URL-safe token. It fails if a value is missing or of the wrong type.
func Encode(spec Spec, values Values) (string, error) {
	payload := make(map[string]any, len(spec))
	for _, k := range spec {
		name := k.Column.Name
		v, ok := values[name]
		if !ok {
			return "", fmt.Errorf("keyset: missing cursor value for %q", name)
		}
		switch k.Column.Kind {
		case KindInt:
			n, ok := v.(int64)
			if !ok {
				return "", fmt.Errorf("keyset: %q expects int64, got %T", name, v)
			}
			payload[name] = n
		case KindFloat:
			f, ok := v.(float64)
			if !ok {
				return "", fmt.Errorf("keyset: %q expects float64, got %T", name, v)
			}
			payload[name] = f
		case KindTime:
			ts, ok := v.(time.Time)
			if !ok {
				return "", fmt.Errorf("keyset: %q expects time.Time, got %T", name, v)
			}
			payload[name] = ts.UTC().Format(time.RFC3339Nano)
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("keyset: marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a token produced by Encode for the given spec. It returns
// false for an empty, malformed or oversized token and for a token that lacks
// a well-typed value for any column of spec. Callers treat false as "no
// cursor" and start from the first page.
func Decode(token string, spec Spec) (Values, bool) {
	if token == "" || len(token) > MaxCursorLength {
		return nil, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return nil, false
	}

	values := make(Values, len(spec))
	for _, k := range spec {
		v, ok := payload[k.Column.Name]
		if !ok {
			return nil, false
		}
		parsed, ok := parseValue(k.Column.Kind, v)
		if !ok {
			return nil, false
		}
		values[k.Column.Name] = parsed
	}
	return values, true
}

func parseValue(kind Kind, v any) (any, bool) {
	switch kind {
	case KindInt:
		n, ok := v.(json.Number)
		if !ok {
			return nil, false
		}
		i, err := n.Int64()
		if err != nil {
			return nil, false
		}
		return i, true
	case KindFloat:
		n, ok := v.(json.Number)
		if !ok {
			return nil, false
		}
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	case KindTime:
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, false
		}
		return ts, true
	default:
		return nil, false
	}
}
