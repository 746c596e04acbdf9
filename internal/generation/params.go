package generation

// Sampling defaults used for every story paragraph.
const (
	DefaultMaxNewTokens = 150
	DefaultNumSamples   = 1
	DefaultTemperature  = 0.9
)

// Params are the sampling parameters passed to a TextGenerator.
type Params struct {
	MaxNewTokens int
	NumSamples   int
	Temperature  float64
}

// DefaultParams returns the baseline sampling parameters.
func DefaultParams() Params {
	return Params{
		MaxNewTokens: DefaultMaxNewTokens,
		NumSamples:   DefaultNumSamples,
		Temperature:  DefaultTemperature,
	}
}

// withDefaults fills zero fields with the baseline values. Configured values
// are never zero here: config.LoadConfig rejects non-positive ones.
func (p Params) withDefaults() Params {
	if p.MaxNewTokens <= 0 {
		p.MaxNewTokens = DefaultMaxNewTokens
	}
	if p.NumSamples <= 0 {
		p.NumSamples = DefaultNumSamples
	}
	if p.Temperature <= 0 {
		p.Temperature = DefaultTemperature
	}
	return p
}

// UsageInfo reports token usage of one completion.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Estimated        bool // true when counted locally instead of reported by the backend
}
