package watcher

import "time"

type WatcherConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DebounceWindow  time.Duration `yaml:"debounce_window"`
	MaxBatchSize    int           `yaml:"max_batch_size"`
	IncludePatterns []string      `yaml:"include_patterns"`
	IgnorePatterns  []string      `yaml:"ignore_patterns"`
	WatchHidden     bool          `yaml:"watch_hidden"`
}

func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Enabled:        true,
		DebounceWindow: 500 * time.Millisecond,
		MaxBatchSize:   100,
		IncludePatterns: []string{
			"**/*.edgelist",
			"**/*.edges",
			"**/*.txt",
			"**/*.csv",
		},
		IgnorePatterns: []string{
			"**/.git/**",
			"**/*.tmp",
			"**/*.swp",
			"**/*~",
			"**/exports/**",
			"**/*.coords.csv",
		},
		WatchHidden: false,
	}
}
