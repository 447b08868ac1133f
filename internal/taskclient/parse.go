package taskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/felixgeelhaar/dramascope/internal/errors"
)

// maxErrorRunes bounds the response excerpt quoted in a ParseError.
const maxErrorRunes = 120

// ParseError is returned when a response cannot be decoded into the expected
// structure. Raw carries the offending text unchanged.
type ParseError struct {
	Raw   string
	Cause error
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if utf8.RuneCountInString(raw) > maxErrorRunes {
		raw = string([]rune(raw)[:maxErrorRunes]) + "..."
	}
	return fmt.Sprintf("unparseable response (%v): %q", e.Cause, raw)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ParseResult is either a decoded value or a parse error.
type ParseResult[T any] struct {
	Value T
	Err   *ParseError
}

// OK reports whether decoding succeeded.
func (r ParseResult[T]) OK() bool {
	return r.Err == nil
}

// Get returns the value or the parse error as an error.
func (r ParseResult[T]) Get() (T, error) {
	if r.Err != nil {
		return r.Value, r.Err
	}
	return r.Value, nil
}

// ParseJSON decodes the content of a response into T.
//
// Accepted forms, tried in order: the whole text; the body of a single
// fenced code block; the outermost {...} or [...] span. Nothing else is
// attempted, so a response that is not JSON is a ParseError.
func ParseJSON[T any](c Content) ParseResult[T] {
	raw := ExtractText(c)
	var zero T

	candidates := jsonCandidates(raw)
	if len(candidates) == 0 {
		return ParseResult[T]{Value: zero, Err: &ParseError{Raw: raw, Cause: fmt.Errorf("no JSON found")}}
	}

	var lastErr error
	for _, candidate := range candidates {
		var v T
		if err := json.Unmarshal([]byte(candidate), &v); err != nil {
			lastErr = err
			continue
		}
		return ParseResult[T]{Value: v}
	}
	return ParseResult[T]{Value: zero, Err: &ParseError{Raw: raw, Cause: lastErr}}
}

func jsonCandidates(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	candidates := []string{trimmed}

	if body, ok := fencedBody(trimmed); ok {
		candidates = append(candidates, body)
	}

	if span, ok := outermostSpan(trimmed); ok && span != trimmed {
		candidates = append(candidates, span)
	}

	return candidates
}

// fencedBody returns the contents of the first ``` fenced block.
func fencedBody(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return "", false
	}
	rest = rest[nl+1:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// outermostSpan returns the text between the first opening brace or bracket
// and the last matching closer.
func outermostSpan(s string) (string, bool) {
	open := strings.IndexAny(s, "{[")
	if open < 0 {
		return "", false
	}
	closer := byte('}')
	if s[open] == '[' {
		closer = ']'
	}
	end := bytes.LastIndexByte([]byte(s), closer)
	if end <= open {
		return "", false
	}
	return s[open : end+1], true
}

// GenerateText issues req and returns the extracted text.
func GenerateText(ctx context.Context, c Client, req Request) (string, error) {
	resp, err := c.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(ExtractText(resp.Content))
	if text == "" {
		Reject(c, req)
		return "", errors.New(errors.ErrCodeTaskEmpty, "empty response from "+resp.Model)
	}
	return text, nil
}

// GenerateJSON issues req and strictly decodes the response into T.
// A transport failure and a parse failure are both returned as errors;
// callers can tell them apart with errors.As(err, **ParseError). A response
// that fails to decode is rejected so a retry reaches the service again.
func GenerateJSON[T any](ctx context.Context, c Client, req Request) (T, error) {
	var zero T
	resp, err := c.Generate(ctx, req)
	if err != nil {
		return zero, err
	}
	parsed := ParseJSON[T](resp.Content)
	if !parsed.OK() {
		Reject(c, req)
	}
	return parsed.Get()
}
