package stations

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/dramascope/internal/station"
)

// Station keys in execution order.
const (
	KeyTextAnalysis station.Key = "station1"
	KeyConceptual   station.Key = "station2"
	KeyNetwork      station.Key = "station3"
	KeyEfficiency   station.Key = "station4"
	KeyDynamics     station.Key = "station5"
	KeyDiagnostics  station.Key = "station6"
	KeyFinalization station.Key = "station7"
)

// Station display names.
const (
	NameTextAnalysis = "Text Analysis"
	NameConceptual   = "Conceptual Analysis"
	NameNetwork      = "Network Builder"
	NameEfficiency   = "Efficiency Metrics"
	NameDynamics     = "Dynamic/Symbolic/Stylistic Analysis"
	NameDiagnostics  = "Diagnostics & Treatment"
	NameFinalization = "Finalization & Visualization"
)

// Count is the number of stations in the sequence.
const Count = 7

// Definition describes one station of the fixed sequence.
type Definition struct {
	Key    station.Key
	Number int
	Name   string
	// DependsOn lists the stations whose results this station reads.
	DependsOn []station.Key
}

var definitions = []Definition{
	{KeyTextAnalysis, 1, NameTextAnalysis, nil},
	{KeyConceptual, 2, NameConceptual, []station.Key{KeyTextAnalysis}},
	{KeyNetwork, 3, NameNetwork, []station.Key{KeyTextAnalysis}},
	{KeyEfficiency, 4, NameEfficiency, []station.Key{KeyNetwork}},
	{KeyDynamics, 5, NameDynamics, []station.Key{KeyTextAnalysis}},
	{KeyDiagnostics, 6, NameDiagnostics, []station.Key{KeyEfficiency, KeyDynamics}},
	{KeyFinalization, 7, NameFinalization, []station.Key{
		KeyTextAnalysis, KeyConceptual, KeyNetwork, KeyEfficiency, KeyDynamics, KeyDiagnostics,
	}},
}

// Definitions returns the station definitions in execution order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	for i, d := range definitions {
		d.DependsOn = append([]station.Key(nil), d.DependsOn...)
		out[i] = d
	}
	return out
}

// Lookup returns the definition of key.
func Lookup(key station.Key) (Definition, bool) {
	for _, d := range definitions {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Executors returns the domain logic of every station in order.
func Executors(deps Deps) []station.Executor {
	return []station.Executor{
		NewTextAnalysis(deps),
		NewConceptual(deps),
		NewNetwork(deps),
		NewEfficiency(deps),
		NewDynamics(deps),
		NewDiagnostics(deps),
		NewFinalization(deps),
	}
}

// Registry returns all stations wrapped in the station template, in order.
func Registry(deps Deps, opts ...station.Option) []*station.Template {
	execs := Executors(deps)
	out := make([]*station.Template, len(execs))
	for i, e := range execs {
		out[i] = station.New(e, opts...)
	}
	return out
}

// DecodeResult decodes a JSON-encoded result of the station identified by key.
func DecodeResult(key station.Key, raw []byte) (station.Result, error) {
	var r station.Result
	switch key {
	case KeyTextAnalysis:
		r = &TextAnalysisResult{}
	case KeyConceptual:
		r = &ConceptualResult{}
	case KeyNetwork:
		r = &NetworkResult{}
	case KeyEfficiency:
		r = &EfficiencyResult{}
	case KeyDynamics:
		r = &DynamicsResult{}
	case KeyDiagnostics:
		r = &DiagnosticsResult{}
	case KeyFinalization:
		r = &FinalizationResult{}
	default:
		return nil, fmt.Errorf("unknown station %q", key)
	}
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", key, err)
	}
	return r, nil
}
