// Package llm is the stateless facade over the text generation engine.
// The core treats returned text as an opaque string; call sites that expect
// JSON parse it themselves and treat a parse failure exactly like a
// generation failure.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Role tags a message in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry in the ordered prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Image is binary evidence passed through to vision-capable engines.
type Image struct {
	Name      string `json:"name,omitempty"`
	MediaType string `json:"media_type"`
	Base64    string `json:"data"`
}

// Request is one generation call. MaxTokens falls back to DefaultMaxTokens
// when zero.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Images      []Image
}

// DefaultMaxTokens is the output budget applied when a request carries none.
const DefaultMaxTokens = 2000

// ErrGeneration wraps every engine-side failure so callers can apply the
// uniform fallback policy without inspecting provider details.
var ErrGeneration = errors.New("generation failed")

// Client is implemented by every generation back end.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GenerateFunc adapts a plain function into a Client.
type GenerateFunc func(ctx context.Context, req Request) (string, error)

func (f GenerateFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var fenceRe = regexp.MustCompile("(?is)^```(?:json)?\\s*(.*?)\\s*```$")

// StripFences removes a markdown code-fence wrapper some engines put around
// JSON output.
func StripFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(cleaned); m != nil {
		return strings.TrimSpace(m[1])
	}
	return cleaned
}

// DecodeJSON strips fences and unmarshals the completion into v. A decode
// failure is reported as a generation failure.
func DecodeJSON(text string, v any) error {
	if err := json.Unmarshal([]byte(StripFences(text)), v); err != nil {
		return fmt.Errorf("%w: decode completion: %v", ErrGeneration, err)
	}
	return nil
}
