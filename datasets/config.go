package datasets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the options of the folder datasets.
type Config struct {
	// FSIDs restricts the multi-task index to files whose stem is listed.
	// Nil means every file is indexed.
	FSIDs []string `yaml:"fsids" json:"fsids"`

	// ThreeD expands 2-D numpy samples of the "slo" and "bscan" tasks to
	// 3-D volumes with a singleton axis.
	ThreeD bool `yaml:"three_d" json:"three_d"`

	// Mapping converts raw label values of "semseg" tasks to 0-based class
	// indices.
	Mapping map[int]int `yaml:"mapping" json:"mapping"`

	// NumClasses is the number of segmentation classes. Informational: it is
	// checked against Mapping when both are set.
	NumClasses int `yaml:"num_classes" json:"num_classes"`

	// Prefixes prepended to a task's folder name (task -> prefix). Tasks
	// without an entry use no prefix.
	Prefixes map[string]string `yaml:"prefixes" json:"prefixes"`

	// MaxImages selects a random subset (seed 0) of at most this many
	// samples. Zero keeps every sample.
	MaxImages int `yaml:"max_images" json:"max_images"`

	// BatchSize of each Yield call. Default 32.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Infinite makes Yield loop forever instead of returning io.EOF after an
	// epoch.
	Infinite bool `yaml:"infinite" json:"infinite"`

	// Shuffle the order in which Yield visits samples, reshuffling on Reset.
	Shuffle bool `yaml:"shuffle" json:"shuffle"`

	// Seed for shuffling and for picking replacement indices after a load
	// failure. Zero uses a time based seed.
	Seed int64 `yaml:"seed" json:"seed"`

	// CacheSamples keeps loaded multi-task samples in memory, keyed by index.
	// The cache is never evicted. On in Defaults; a zero Config leaves it off.
	CacheSamples bool `yaml:"cache_samples" json:"cache_samples"`

	// MaxLoadAttempts bounds how many indices are tried for one example before
	// giving up. Default 16.
	MaxLoadAttempts int `yaml:"max_load_attempts" json:"max_load_attempts"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		BatchSize:       32,
		CacheSamples:    true,
		MaxLoadAttempts: 16,
	}
}

// withDefaults fills zero fields that have a non-zero default.
func (c Config) withDefaults() Config {
	d := Defaults()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxLoadAttempts <= 0 {
		c.MaxLoadAttempts = d.MaxLoadAttempts
	}
	return c
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	if c.MaxImages < 0 {
		return errors.Errorf("max_images must be >= 0, got %d", c.MaxImages)
	}
	if c.NumClasses > 0 {
		for value, class := range c.Mapping {
			if class < 0 || class >= c.NumClasses {
				return errors.Errorf("mapping %d -> %d outside of [0, %d)", value, class, c.NumClasses)
			}
		}
	}
	return nil
}

// fsidSet returns FSIDs as a set, or nil when no filter is configured.
func (c Config) fsidSet() map[string]bool {
	if c.FSIDs == nil {
		return nil
	}
	set := make(map[string]bool, len(c.FSIDs))
	for _, id := range c.FSIDs {
		set[id] = true
	}
	return set
}

// LoadConfig reads a Config from a YAML or JSON file, starting from
// Defaults. The format is chosen by the file extension; anything other than
// ".json" is parsed as YAML.
func LoadConfig(path string) (Config, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &cfg)
	} else {
		err = yaml.Unmarshal(raw, &cfg)
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}
