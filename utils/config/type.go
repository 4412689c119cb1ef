package config

// InputPath names one input document's source: a MongoDB db/collection
// pair, or a local file that takes priority over the database, with an
// optional local cache so repeated runs don't hit the network.
type InputPath struct {
	DB        string `yaml:"db"`                   // database name
	Col       string `yaml:"col"`                  // collection name
	Cache     string `yaml:"cache,omitempty"`      // cache file name; empty uses {db}.{col}.bson
	OnlyCache bool   `yaml:"only_cache,omitempty"` // never touch the database, cache only
	File      string `yaml:"file,omitempty"`       // local file path (takes priority over MongoDB)
}

func (p InputPath) GetDb() string {
	return p.DB
}

func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath returns the cache file name, defaulting to {db}.{col}.bson
// when none is configured.
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".bson"
}

// Input names every document the simulator loads at startup.
type Input struct {
	URI      string     `yaml:"uri"`                // MongoDB connection string; empty disables database loading
	Map      InputPath  `yaml:"map"`                // road network bundle
	Scenario *InputPath `yaml:"scenario,omitempty"` // trip list; optional (an empty sim is valid)
}

// ControlStep sets the simulated time range and step interval.
type ControlStep struct {
	Start    int32   `yaml:"start"`    // first step number
	Total    int32   `yaml:"total"`    // number of steps to run
	Interval float64 `yaml:"interval"` // seconds of simulated time per step
}

// Control holds the simulation-wide knobs.
type Control struct {
	Step             ControlStep `yaml:"step"`
	PreferFixedLight bool        `yaml:"prefer_fixed_light,omitempty"` // use a fixed signal program when the intersection carries one; otherwise max pressure
	RandomSeed       uint64      `yaml:"random_seed,omitempty"`        // scenario seed; per-agent engines derive from it
	GridlockTicks    int32       `yaml:"gridlock_ticks,omitempty"`     // intersection updates with zero progress before declaring gridlock (0 uses the default)
	BlindRetry       float64     `yaml:"blind_retry,omitempty"`        // seconds to wait before retrying a spawn that found no room (0 uses the default)
	SavestateFreq    float64     `yaml:"savestate_freq,omitempty"`     // seconds between periodic savestates; 0 disables them
	GridlockPanic    bool        `yaml:"gridlock_panic,omitempty"`     // panic on gridlock instead of savestate-and-continue
}

// Config is the root of the YAML configuration file.
type Config struct {
	Input   Input   `yaml:"input"`   // input data sources
	Control Control `yaml:"control"` // simulation control
}
