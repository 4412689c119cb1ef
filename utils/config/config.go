package config

// RuntimeConfig wraps the parsed Config with derived values the rest of
// the simulator reads, so defaults are resolved once here instead of at
// every call site.
type RuntimeConfig struct {
	All Config  // full parsed configuration
	C   Control // global control section

	// DT is the externally visible step interval in seconds.
	DT float64
	// GridlockTicks and BlindRetry with defaults applied.
	GridlockTicks int32
	BlindRetry    float64
}

const (
	defaultGridlockTicks = 10
	defaultBlindRetry    = 5.0
)

// NewRuntimeConfig resolves defaults and derived fields from a parsed
// Config.
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	rc.All = config
	rc.C = config.Control
	rc.DT = config.Control.Step.Interval
	rc.GridlockTicks = config.Control.GridlockTicks
	if rc.GridlockTicks <= 0 {
		rc.GridlockTicks = defaultGridlockTicks
	}
	rc.BlindRetry = config.Control.BlindRetry
	if rc.BlindRetry <= 0 {
		rc.BlindRetry = defaultBlindRetry
	}

	return rc
}
