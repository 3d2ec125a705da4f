package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type panicky struct{}

func (panicky) String() string { panic("boom") }

func TestValidate_RequiredEmptyString(t *testing.T) {
	res := Validate(Required("query"), map[string]any{"query": ""})
	require.Equal(t, Result{Valid: false, Error: "Input is required", Field: "query"}, res)
}

func TestValidate_AllPresent(t *testing.T) {
	res := Validate(Required("query", "session_id"), map[string]any{"query": "hello", "session_id": "sid-123"})
	require.True(t, res.Valid)
	require.Empty(t, res.Error)
	require.NoError(t, res.Err())
}

func TestValidate_MissingRequired(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
	}{
		{name: "nil payload", payload: nil},
		{name: "absent key", payload: map[string]any{"other": "x"}},
		{name: "nil value", payload: map[string]any{"topic": nil}},
		{name: "blank", payload: map[string]any{"topic": "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Validate(Required("topic"), tc.payload)
			require.False(t, res.Valid)
			require.NotEmpty(t, res.Error)
			require.Equal(t, "topic", res.Field)
		})
	}
}

func TestValidate_FirstViolationWins(t *testing.T) {
	rules := Rules{
		{Field: "topic", Required: true, Message: "Please enter a story topic"},
		{Field: "session_id", Required: true},
	}
	res := Validate(rules, map[string]any{})
	require.False(t, res.Valid)
	require.Equal(t, "Please enter a story topic", res.Error)
}

func TestValidate_MinLength(t *testing.T) {
	rules := Rules{{Field: "prompt", MinLength: 3}}

	res := Validate(rules, map[string]any{"prompt": "ab"})
	require.False(t, res.Valid)
	require.Equal(t, "prompt must be at least 3 characters", res.Error)

	res = Validate(rules, map[string]any{"prompt": "abc"})
	require.True(t, res.Valid)

	// optional field may be absent
	res = Validate(rules, map[string]any{})
	require.True(t, res.Valid)
}

func TestValidate_MinLengthCountsRunes(t *testing.T) {
	res := Validate(Rules{{Field: "q", MinLength: 2}}, map[string]any{"q": "日本"})
	require.True(t, res.Valid)
}

func TestValidate_NonStringValues(t *testing.T) {
	res := Validate(Required("count", "data"), map[string]any{"count": 12, "data": []byte("x")})
	require.True(t, res.Valid)
}

func TestValidate_NegativeMinLengthIgnored(t *testing.T) {
	res := Validate(Rules{{Field: "q", MinLength: -4}}, map[string]any{"q": ""})
	require.True(t, res.Valid)
}

func TestValidate_UnexpectedErrorDowngraded(t *testing.T) {
	res := Validate(Required("q"), map[string]any{"q": panicky{}})
	require.False(t, res.Valid)
	require.Equal(t, UnexpectedMessage, res.Error)
}

func TestResult_Err(t *testing.T) {
	err := Result{Valid: false, Error: "Input is required", Field: "query"}.Err()
	require.Error(t, err)

	var vErr *Error
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, "query", vErr.Field)
	require.Equal(t, "validation failed for query: Input is required", err.Error())
}
