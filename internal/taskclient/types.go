package taskclient

import (
	"bytes"
	"encoding/json"
	"time"
)

// Well-known model identifiers.
const (
	ModelPro       = "gemini-2.5-pro"
	ModelFlash     = "gemini-2.5-flash"
	ModelFlashLite = "gemini-2.5-flash-lite"
)

// Request is one text-generation call.
type Request struct {
	// Prompt is the main input text for the model
	Prompt string `json:"prompt"`

	// Model selects the model; empty means the client default
	Model string `json:"model,omitempty"`

	// Temperature controls randomness (0.0 = deterministic)
	Temperature float64 `json:"temperature"`

	// MaxTokens limits the response length; 0 uses the client default
	MaxTokens int `json:"max_tokens,omitempty"`

	// SystemInstruction sets model-level instructions
	SystemInstruction string `json:"system_instruction,omitempty"`

	// NoCache forces a live call: the response is neither read from nor
	// stored in a response cache.
	NoCache bool `json:"-"`
}

// Response is the result of one call.
type Response struct {
	Content    Content       `json:"content"`
	Model      string        `json:"model"`
	TokensUsed int           `json:"tokens_used"`
	Latency    time.Duration `json:"latency"`
	Cached     bool          `json:"cached,omitempty"`
}

// Content is either a plain string or a wrapper object {"raw": "..."}.
// Both shapes round-trip through JSON unchanged; use ExtractText to read it.
type Content struct {
	text    string
	wrapped bool
}

// PlainContent creates content that is a bare string.
func PlainContent(s string) Content {
	return Content{text: s}
}

// RawContent creates content carried inside a {"raw": ...} wrapper.
func RawContent(s string) Content {
	return Content{text: s, wrapped: true}
}

// Wrapped reports whether the content used the wrapper shape.
func (c Content) Wrapped() bool {
	return c.wrapped
}

type rawWrapper struct {
	Raw string `json:"raw"`
}

// MarshalJSON implements json.Marshaler
func (c Content) MarshalJSON() ([]byte, error) {
	if c.wrapped {
		return json.Marshal(rawWrapper{Raw: c.text})
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var w rawWrapper
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*c = RawContent(w.Raw)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = PlainContent(s)
	return nil
}

// ExtractText returns the text of c regardless of its shape.
func ExtractText(c Content) string {
	return c.text
}
