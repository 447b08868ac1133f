package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
	"github.com/felixgeelhaar/dramascope/internal/profiles"
)

func TestInputValidate(t *testing.T) {
	long := strings.Repeat("a", MinTextLength)

	tests := []struct {
		name    string
		input   Input
		wantErr []string
	}{
		{name: "valid arabic", input: Input{ScreenplayText: strings.Repeat("ن", MinTextLength), Language: LanguageArabic}},
		{name: "valid english", input: Input{ScreenplayText: long, Language: LanguageEnglish}},
		{name: "language defaults", input: Input{ScreenplayText: long}},
		{name: "short after trimming", input: Input{ScreenplayText: "  " + long[:MinTextLength-1] + "\n\n"}, wantErr: []string{"got 99"}},
		{name: "empty text", input: Input{}, wantErr: []string{"got 0"}},
		{name: "bad language", input: Input{ScreenplayText: long, Language: "de"}, wantErr: []string{`"de"`}},
		{name: "all problems reported", input: Input{ScreenplayText: "x", Language: "de"}, wantErr: []string{"got 1", `"de"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestInputNormalizeAndProjectName(t *testing.T) {
	in := Input{ScreenplayText: "  نص  "}.Normalize()
	assert.Equal(t, "نص", in.ScreenplayText)
	assert.Equal(t, LanguageArabic, in.Language)
	assert.Equal(t, orchestrator.DefaultProjectName, in.ProjectName())

	in.Context = &Context{Title: "  The Bakery ", Author: "A", CreatedAt: time.Now()}
	assert.Equal(t, "The Bakery", in.ProjectName())

	in.Context.Title = "   "
	assert.Equal(t, orchestrator.DefaultProjectName, in.ProjectName())
}

func TestConfigFromProfile(t *testing.T) {
	profile, err := profiles.Builtin("quick")
	assert.NoError(t, err)

	cfg := ConfigFromProfile(profile)

	assert.Equal(t, "gemini-2.5-flash", cfg.PrimaryModel)
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.FallbackModel)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.RetryDelay)
	assert.False(t, cfg.EnableDetailedLogging)
	assert.Equal(t, orchestrator.FailureContinue, cfg.FailurePolicy)
	assert.Equal(t, orchestrator.BackoffLinear, cfg.Backoff)
	assert.Nil(t, cfg.Stations)

	temp := 0.3
	profile.Stations.Temperature = &temp
	cfg = ConfigFromProfile(profile)
	if assert.NotNil(t, cfg.Stations) {
		assert.Equal(t, 0.3, *cfg.Stations.Temperature)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{RetryDelay: -time.Second}.withDefaults()

	assert.Equal(t, DefaultOutputDir, cfg.OutputDir)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Zero(t, cfg.RetryDelay)
	assert.Equal(t, "gemini-2.5-pro", cfg.PrimaryModel)
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.False(t, cfg.EnableRetry, "booleans are taken as given")

	rc := cfg.resilientConfig()
	assert.Equal(t, 1, rc.MaxRetries)
	assert.Equal(t, "gemini-2.5-flash", rc.FallbackModel)
}
