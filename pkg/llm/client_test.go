package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare text", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"uppercase tag", "```JSON\n{\"a\":1}\n```", `{"a":1}`},
		{"inner fence untouched", "before ```code``` after", "before ```code``` after"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripFences(tc.in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		A int `json:"a"`
	}
	require.NoError(t, DecodeJSON("```json\n{\"a\":7}\n```", &out))
	assert.Equal(t, 7, out.A)

	err := DecodeJSON("I cannot answer that.", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))
}

func TestRateLimitedCancelled(t *testing.T) {
	inner := GenerateFunc(func(ctx context.Context, req Request) (string, error) {
		t.Fatal("inner client should not run")
		return "", nil
	})
	// Zero capacity: Wait can never succeed, so cancellation must surface.
	c := NewRateLimited(inner, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Generate(ctx, Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))
}
