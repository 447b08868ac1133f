// Package station provides the template every analysis station runs inside.
//
// A station supplies only its domain logic (an Executor). The Template wraps
// it with a compliance pass, a confidence/uncertainty pass and metadata
// assembly, and converts every failure into a Failed Output so callers never
// see an error or a panic from a station.
package station

import (
	"context"
	"fmt"
	"time"
)

// Key identifies a station within the fixed sequence: "station1".."station7".
type Key string

// KeyFor returns the key of the n-th station.
func KeyFor(n int) Key {
	return Key(fmt.Sprintf("station%d", n))
}

// Status is the terminal status of one station execution.
type Status string

const (
	StatusSuccess Status = "Success"
	// StatusPartial marks a usable result whose compliance or uncertainty pass failed
	StatusPartial Status = "Partial"
	StatusFailed  Status = "Failed"
)

// Result is implemented by each station's typed result. The set of
// implementations is closed: one per station, see package stations.
type Result interface {
	StationKey() Key
	// NarrativeFields returns the natural-language fields inspected by
	// the compliance and uncertainty passes.
	NarrativeFields() []string
}

// Executor is the domain logic of one station.
type Executor interface {
	Number() int
	Name() string
	// Agents lists the sub-task identifiers the station may invoke.
	Agents() []string
	Execute(ctx context.Context, in Input, opts Options) (Result, error)
}

// Input is immutable for the duration of one station invocation.
type Input struct {
	Text        string
	ProjectName string
	Options     *Overrides
	// Prior holds the outputs of stations that already reached a terminal state in this run.
	Prior map[Key]*Output
	// Chunks optionally carries a pre-split version of Text.
	Chunks []string
}

// PriorResult returns the result of a successful earlier station, if any.
func (in Input) PriorResult(key Key) (Result, bool) {
	out, ok := in.Prior[key]
	if !ok || out == nil || out.Result == nil || out.Metadata.Status == StatusFailed {
		return nil, false
	}
	return out.Result, true
}

// Output is produced once per station execution.
type Output struct {
	Result   Result   `json:"-"`
	Metadata Metadata `json:"metadata"`
}

// Failed reports whether the station produced no usable result.
func (o *Output) Failed() bool {
	return o == nil || o.Metadata.Status == StatusFailed || o.Result == nil
}

// Metadata describes one station execution.
type Metadata struct {
	StationKey     Key                `json:"station_key"`
	StationNumber  int                `json:"station_number"`
	StationName    string             `json:"station_name"`
	Status         Status             `json:"status"`
	Duration       time.Duration      `json:"duration"`
	Error          string             `json:"error,omitempty"`
	AgentsUsed     []string           `json:"agents_used"`
	TokensEstimate int                `json:"tokens_estimate"`
	Options        Options            `json:"options"`
	Compliance     *ComplianceRecord  `json:"compliance,omitempty"`
	Uncertainty    *UncertaintyRecord `json:"uncertainty,omitempty"`
}
