package log

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Format selects the zap encoder
type Format int

const (
	// FormatJSON uses the zap JSON encoder
	FormatJSON Format = iota
	// FormatText uses the zap console encoder
	FormatText
)

func (f Format) String() string {
	if f == FormatText {
		return "text"
	}
	return "json"
}

func lookupFormat(s string) (Format, bool) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, true
	case "text", "console":
		return FormatText, true
	}
	return FormatJSON, false
}

// ParseFormat parses a format name, falling back to JSON.
func ParseFormat(s string) Format {
	f, _ := lookupFormat(s)
	return f
}

// Set implements pflag.Value
func (f *Format) Set(s string) error {
	parsed, ok := lookupFormat(s)
	if !ok {
		return fmt.Errorf("unknown log format %q (want text or json)", s)
	}
	*f = parsed
	return nil
}

// Type implements pflag.Value
func (f *Format) Type() string { return "format" }

// Config holds configuration for the logger
type Config struct {
	Level  Level
	Format Format
	Output io.Writer

	// AddSource includes caller file and line number in logs
	AddSource bool

	// ServiceName and ServiceVersion are attached to every entry as
	// "service" and "version"
	ServiceName    string
	ServiceVersion string
}

// DefaultConfig logs at info level as JSON to stderr.
func DefaultConfig() Config {
	return Config{
		Level:          LevelInfo,
		Format:         FormatJSON,
		Output:         os.Stderr,
		ServiceName:    "dramascope",
		ServiceVersion: "dev",
	}
}

// DevelopmentConfig logs at debug level to the console with caller location.
func DevelopmentConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = LevelDebug
	cfg.Format = FormatText
	cfg.AddSource = true
	return cfg
}
