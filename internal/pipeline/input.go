package pipeline

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
)

// MinTextLength is the minimum screenplay length in characters, after trimming.
const MinTextLength = 100

// Language is the language code of a screenplay.
type Language string

const (
	LanguageArabic  Language = "ar"
	LanguageEnglish Language = "en"
)

// Context describes where a screenplay comes from.
type Context struct {
	Title     string            `json:"title,omitempty" yaml:"title,omitempty"`
	Author    string            `json:"author,omitempty" yaml:"author,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Extra     map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Input is one analysis request.
type Input struct {
	ScreenplayText string   `json:"screenplay_text"`
	Language       Language `json:"language"`
	Context        *Context `json:"context,omitempty"`
}

// Normalize trims the text and defaults the language to Arabic.
func (in Input) Normalize() Input {
	in.ScreenplayText = strings.TrimSpace(in.ScreenplayText)
	if in.Language == "" {
		in.Language = LanguageArabic
	}
	return in
}

// Validate reports every problem with the input at once.
func (in Input) Validate() error {
	var problems []error

	if n := utf8.RuneCountInString(strings.TrimSpace(in.ScreenplayText)); n < MinTextLength {
		problems = append(problems, errors.New(errors.ErrCodeTextTooShort,
			fmt.Sprintf("screenplay text must be at least %d characters, got %d", MinTextLength, n)))
	}

	switch in.Language {
	case "", LanguageArabic, LanguageEnglish:
	default:
		problems = append(problems, errors.New(errors.ErrCodeLanguageInvalid,
			fmt.Sprintf("unsupported language %q (must be ar or en)", in.Language)))
	}

	if len(problems) > 0 {
		return errors.NewInputInvalidError(problems...)
	}
	return nil
}

// ProjectName returns the context title, or the default project label.
func (in Input) ProjectName() string {
	if in.Context != nil && strings.TrimSpace(in.Context.Title) != "" {
		return strings.TrimSpace(in.Context.Title)
	}
	return orchestrator.DefaultProjectName
}
