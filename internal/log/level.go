package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log message
type Level int

const (
	// LevelDebug logs every station attempt and task call
	LevelDebug Level = iota
	// LevelInfo logs run boundaries and station outcomes
	LevelInfo
	// LevelWarn logs retries, fallbacks and degraded health
	LevelWarn
	// LevelError logs failed stations and infrastructure errors
	LevelError
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

var zapLevels = map[Level]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
}

func (l Level) String() string {
	if _, ok := zapLevels[l]; !ok {
		return "UNKNOWN"
	}
	return strings.ToUpper(zapLevels[l].String())
}

// ToZapLevel converts l to the zap level; unknown levels map to info.
func (l Level) ToZapLevel() zapcore.Level {
	if z, ok := zapLevels[l]; ok {
		return z
	}
	return zapcore.InfoLevel
}

// ParseLevel parses a level name case-insensitively, falling back to info.
func ParseLevel(s string) Level {
	if l, ok := levelNames[strings.ToLower(s)]; ok {
		return l
	}
	return LevelInfo
}

// Set implements pflag.Value. Unlike ParseLevel it rejects unknown names.
func (l *Level) Set(s string) error {
	parsed, ok := levelNames[strings.ToLower(s)]
	if !ok {
		return fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
	*l = parsed
	return nil
}

// Type implements pflag.Value
func (l *Level) Type() string { return "level" }
