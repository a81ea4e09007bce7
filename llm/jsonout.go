package llm

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoJSON is returned when a completion carries no parsable JSON value.
var ErrNoJSON = errors.New("no JSON value in completion")

// ExtractJSON finds the JSON object or array in a completion. Models often
// wrap JSON in markdown fences or prose, so the outermost balanced value is
// located and validated before it is returned.
func ExtractJSON(text string) (gjson.Result, error) {
	s := stripFences(strings.TrimSpace(text))
	if s == "" {
		return gjson.Result{}, ErrNoJSON
	}
	if gjson.Valid(s) {
		res := gjson.Parse(s)
		if res.IsObject() || res.IsArray() {
			return res, nil
		}
	}
	pairs := [][2]byte{{'{', '}'}, {'[', ']'}}
	if arr, obj := strings.IndexByte(s, '['), strings.IndexByte(s, '{'); arr >= 0 && (obj < 0 || arr < obj) {
		pairs[0], pairs[1] = pairs[1], pairs[0]
	}
	for _, pair := range pairs {
		if raw, ok := balanced(s, pair[0], pair[1]); ok && gjson.Valid(raw) {
			return gjson.Parse(raw), nil
		}
	}
	return gjson.Result{}, ErrNoJSON
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// balanced returns the first substring that opens with openCh and closes at
// the matching closeCh, skipping brackets inside string literals.
func balanced(s string, openCh, closeCh byte) (string, bool) {
	start := strings.IndexByte(s, openCh)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
