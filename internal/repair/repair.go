// Package repair recovers a JSON object from raw language-model output that
// may be wrapped in prose or cut off mid-token by a length limit.
//
// The repair is a single greedy pass: it closes an open string, truncates a
// dangling key or value back to the last safe delimiter, then closes every
// open brace and bracket. Content is never reordered.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoJSONFound is returned when the input has no opening brace.
	ErrNoJSONFound = errors.New("no JSON object found in response")
	// ErrMalformedJSON matches any *MalformedJSONError via errors.Is.
	ErrMalformedJSON = errors.New("malformed JSON")
)

// MalformedJSONError is returned when the healed text still fails to parse.
type MalformedJSONError struct {
	Healed string
	Err    error
}

func (e *MalformedJSONError) Error() string {
	return fmt.Sprintf("malformed JSON: %v", e.Err)
}

func (e *MalformedJSONError) Unwrap() error {
	return e.Err
}

func (e *MalformedJSONError) Is(target error) bool {
	return target == ErrMalformedJSON
}

// Result describes what Heal did to the candidate text.
type Result struct {
	Text         string
	ClosedString bool
	Backtracked  bool
	ClosedCount  int
}

// Healed reports whether any repair was applied.
func (r Result) Healed() bool {
	return r.ClosedString || r.Backtracked || r.ClosedCount > 0
}

// Parse locates, heals and decodes the JSON object in raw.
func Parse(raw string) (any, error) {
	v, _, err := ParseResult(raw)
	return v, err
}

// ParseResult is Parse that also reports how the text was healed.
func ParseResult(raw string) (any, Result, error) {
	res, err := Heal(raw)
	if err != nil {
		return nil, res, err
	}
	var v any
	if err := json.Unmarshal([]byte(res.Text), &v); err != nil {
		return nil, res, &MalformedJSONError{Healed: res.Text, Err: err}
	}
	return v, res, nil
}

// Heal returns the candidate object text with truncation repaired. It does
// not validate the result; Parse does.
func Heal(raw string) (Result, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return Result{}, ErrNoJSONFound
	}
	candidate := raw[start:]
	if end := strings.LastIndexByte(candidate, '}'); end > 0 {
		candidate = candidate[:end+1]
	}

	sc := scan(candidate)
	res := Result{Text: candidate}
	if !sc.inString && len(sc.closers) == 0 {
		return res, nil
	}

	healed := candidate
	if sc.inString {
		healed += `"`
		res.ClosedString = true
	}

	if danglingToken(healed) {
		healed = healed[:sc.lastSafe+1]
		res.Backtracked = true
	}
	healed = dropTrailingComma(healed)

	var b strings.Builder
	b.WriteString(healed)
	for i := len(sc.closers) - 1; i >= 0; i-- {
		b.WriteByte(sc.closers[i])
	}
	res.ClosedCount = len(sc.closers)
	res.Text = b.String()
	return res, nil
}

type scanState struct {
	inString bool
	closers  []byte
	// lastSafe is the index of the last structural delimiter seen outside a
	// string: one of , { [ } ]
	lastSafe int
}

func scan(s string) scanState {
	st := scanState{}
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && st.inString {
			escaped = true
			continue
		}
		if c == '"' {
			st.inString = !st.inString
			continue
		}
		if st.inString {
			continue
		}
		switch c {
		case '{':
			st.closers = append(st.closers, '}')
			st.lastSafe = i
		case '[':
			st.closers = append(st.closers, ']')
			st.lastSafe = i
		case '}', ']':
			if n := len(st.closers); n > 0 && st.closers[n-1] == c {
				st.closers = st.closers[:n-1]
			}
			st.lastSafe = i
		case ',':
			st.lastSafe = i
		}
	}
	return st
}

// danglingToken reports whether s ends in what looks like an incomplete key
// or value: an alphanumeric character, whitespace, or a colon.
func danglingToken(s string) bool {
	if s == "" {
		return false
	}
	c := s[len(s)-1]
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == ':', c == ' ', c == '\t', c == '\n', c == '\r':
		return true
	}
	return false
}

func dropTrailingComma(s string) string {
	trimmed := strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(trimmed, ",") {
		return trimmed[:len(trimmed)-1]
	}
	return s
}
