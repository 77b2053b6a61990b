package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"bloomboard/internal/model"
)

// FragmentPrefix marks an import payload in a URL fragment.
const FragmentPrefix = "#bb="

// Sentinel errors, one per decoding stage.
var (
	ErrEncoding = errors.New("payload is not valid base64")
	ErrText     = errors.New("payload is not valid UTF-8 text")
	ErrJSON     = errors.New("payload is not valid JSON")
	ErrShape    = errors.New("payload is not a JSON array of habits")
)

// Encode serialises habits as base64(UTF-8 JSON). A nil slice encodes as an empty array.
func Encode(habits []model.Habit) (string, error) {
	if habits == nil {
		habits = []model.Habit{}
	}
	raw, err := json.Marshal(habits)
	if err != nil {
		return "", fmt.Errorf("failed to encode habits: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Fragment builds "#bb=<payload>".
func Fragment(habits []model.Habit) (string, error) {
	payload, err := Encode(habits)
	if err != nil {
		return "", err
	}
	return FragmentPrefix + payload, nil
}

// PayloadFromFragment extracts the encoded payload from "#bb=…", "bb=…" or a
// full URL carrying such a fragment. ok is false when no payload is present.
func PayloadFromFragment(s string) (payload string, ok bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[i+1:]
	}
	rest, found := strings.CutPrefix(s, "bb=")
	if !found || rest == "" {
		return "", false
	}
	// Shared links may escape '=' and '+'.
	if unescaped, err := url.PathUnescape(rest); err == nil {
		rest = unescaped
	}
	return rest, true
}

// Decode runs the import pipeline. Every failure wraps exactly one of the
// stage sentinels so callers can tell them apart with errors.Is.
func Decode(payload string) ([]model.Habit, error) {
	raw, err := decodeBase64(payload)
	if err != nil {
		return nil, err
	}
	if err := validUTF8(raw); err != nil {
		return nil, err
	}
	items, err := parseJSON(raw)
	if err != nil {
		return nil, err
	}
	return validateShape(items)
}

// DecodeFragment is PayloadFromFragment followed by Decode.
func DecodeFragment(fragment string) ([]model.Habit, error) {
	payload, ok := PayloadFromFragment(fragment)
	if !ok {
		return nil, fmt.Errorf("%w: no %s payload", ErrEncoding, FragmentPrefix)
	}
	return Decode(payload)
}

func decodeBase64(payload string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrEncoding)
	}

	raw, err := base64.StdEncoding.DecodeString(clean)
	if err == nil {
		return raw, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(clean); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
}

func validUTF8(raw []byte) error {
	if !utf8.Valid(raw) {
		return ErrText
	}
	return nil
}

func parseJSON(raw []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSON, err)
	}
	// More reports false for a stray ']' or '}', so the tail is read as a token.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after value", ErrJSON)
	}
	return v, nil
}

func validateShape(v any) ([]model.Habit, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrShape, kindOf(v))
	}

	habits := make([]model.Habit, 0, len(items))
	for i, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return nil, fmt.Errorf("%w: element %d is %s", ErrShape, i, kindOf(item))
		}
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrShape, i, err)
		}
		var h model.Habit
		if err := json.Unmarshal(b, &h); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrShape, i, err)
		}
		habits = append(habits, h)
	}
	return habits, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
