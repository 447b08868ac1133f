package station

// Options are the effective per-run options of a station.
type Options struct {
	ComplianceCheck bool    `json:"compliance_check"`
	UncertaintyPass bool    `json:"uncertainty_pass"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
}

// DefaultOptions returns compliance on, uncertainty on, temperature 0.4, 4096 tokens.
func DefaultOptions() Options {
	return Options{
		ComplianceCheck: true,
		UncertaintyPass: true,
		Temperature:     0.4,
		MaxTokens:       4096,
	}
}

// Overrides carries caller-supplied options; nil fields keep the default.
type Overrides struct {
	ComplianceCheck *bool    `json:"compliance_check,omitempty" yaml:"compliance_check,omitempty"`
	UncertaintyPass *bool    `json:"uncertainty_pass,omitempty" yaml:"uncertainty_pass,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Merge applies ov over o.
func (o Options) Merge(ov *Overrides) Options {
	if ov == nil {
		return o
	}
	if ov.ComplianceCheck != nil {
		o.ComplianceCheck = *ov.ComplianceCheck
	}
	if ov.UncertaintyPass != nil {
		o.UncertaintyPass = *ov.UncertaintyPass
	}
	if ov.Temperature != nil {
		o.Temperature = *ov.Temperature
	}
	if ov.MaxTokens != nil && *ov.MaxTokens > 0 {
		o.MaxTokens = *ov.MaxTokens
	}
	return o
}
