package repair

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestParse_ValidInputRoundTrips(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"tasks":[]}`,
		`{"tasks":[{"title":"A","durationMinutes":30,"priority":"high"}]}`,
		`{"nested":{"list":[1,2,{"deep":[true,false,null]}]},"s":"brace } and [ in string"}`,
		`{"escaped":"quote \" and backslash \\","unicode":"\u00e9"}`,
		"{\n  \"pretty\": [\n    1,\n    2\n  ]\n}",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got, err := Parse(in)
			require.NoError(t, err)
			assert.Equal(t, mustDecode(t, in), got)

			res, err := Heal(in)
			require.NoError(t, err)
			assert.False(t, res.Healed(), "valid input should not be healed")
		})
	}
}

func TestParse_MissingClosers(t *testing.T) {
	in := `{"tasks":[{"title":"A","durationMinutes":30,"priority":"high"}`
	got, err := Parse(in)
	require.NoError(t, err)
	assert.Equal(t, mustDecode(t, `{"tasks":[{"title":"A","durationMinutes":30,"priority":"high"}]}`), got)
}

func TestParse_LeadingProse(t *testing.T) {
	got, err := Parse(`Sure! {"tasks":[]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tasks": []any{}}, got)
}

func TestParse_TrailingProseAndFence(t *testing.T) {
	got, err := Parse("```json\n{\"tasks\":[{\"title\":\"A\"}]}\n```\nLet me know!")
	require.NoError(t, err)
	assert.Equal(t, mustDecode(t, `{"tasks":[{"title":"A"}]}`), got)
}

func TestParse_NoJSON(t *testing.T) {
	for _, in := range []string{"", "no braces here", "[1,2,3]", "}"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrNoJSONFound, "input %q", in)
	}
}

func TestHeal(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		want         string
		closedString bool
		backtracked  bool
	}{
		{
			name:         "truncated inside string value",
			input:        `{"tasks":[{"title":"Buy te`,
			want:         `{"tasks":[{"title":"Buy te"}]}`,
			closedString: true,
		},
		{
			name:        "truncated number value",
			input:       `{"tasks":[{"title":"A","durationMinutes":3`,
			want:        `{"tasks":[{"title":"A"}]}`,
			backtracked: true,
		},
		{
			name:        "truncated after colon",
			input:       `{"tasks":[{"title":"A","priority":`,
			want:        `{"tasks":[{"title":"A"}]}`,
			backtracked: true,
		},
		{
			name:        "truncated literal",
			input:       `{"tasks":[{"title":"A","done":tr`,
			want:        `{"tasks":[{"title":"A"}]}`,
			backtracked: true,
		},
		{
			name:        "trailing whitespace after comma",
			input:       `{"tags":["a", `,
			want:        `{"tags":["a"]}`,
			backtracked: true,
		},
		{
			name:  "dangling comma",
			input: `{"tags":["a",`,
			want:  `{"tags":["a"]}`,
		},
		{
			name:  "text after last closing brace is ignored",
			input: `{"tasks":[{"title":"A"}, `,
			want:  `{"tasks":[{"title":"A"}]}`,
		},
		{
			name:  "open array only",
			input: `{"tasks":[`,
			want:  `{"tasks":[]}`,
		},
		{
			name:         "escaped quote before truncation",
			input:        `{"tasks":[{"title":"say \"hi`,
			want:         `{"tasks":[{"title":"say \"hi"}]}`,
			closedString: true,
		},
		{
			name:  "second element dropped at last closing brace",
			input: `{"tasks":[{"title":"A"},{"title":"B`,
			want:  `{"tasks":[{"title":"A"}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Heal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Text)
			assert.Equal(t, tt.closedString, res.ClosedString, "ClosedString")
			assert.Equal(t, tt.backtracked, res.Backtracked, "Backtracked")
			assert.True(t, json.Valid([]byte(res.Text)), "healed text should be valid JSON: %s", res.Text)
		})
	}
}

func TestParse_MalformedAfterHealing(t *testing.T) {
	_, err := Parse(`{"tasks": [1 2]}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedJSON)

	var malformed *MalformedJSONError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, `{"tasks": [1 2]}`, malformed.Healed)

	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr), "original parse error should be preserved")
}

func TestParse_DanglingKeyIsBestEffort(t *testing.T) {
	// A key cut off mid-name is closed as a string and left without a value,
	// which cannot parse. This is accepted best-effort behavior.
	_, err := Parse(`{"tasks":[{"title":"A","dura`)
	assert.ErrorIs(t, err, ErrMalformedJSON)
}
