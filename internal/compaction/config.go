// Package compaction implements the background compaction scheduler: a
// deduplicating admission queue, a global memory budget with scoped usage
// tokens, an ongoing-task limiter, and the single-consumer schedule loop
// that dispatches compaction workers.
package compaction

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default scheduler settings.
const (
	defaultScheduleChannelLen = 16
	defaultScheduleInterval   = 30 * time.Minute
	defaultMaxOngoingTasks    = 8
	defaultMaxUnflushed       = 5 * time.Hour
	defaultMemoryLimit        = 4 << 30 // 4 GiB

	// maxPendingCompactionTasks bounds the admission queue; older entries
	// are evicted on overflow.
	maxPendingCompactionTasks = 1024
)

// Duration is a time.Duration that parses from human-readable YAML strings
// such as "30m" or "5h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("compaction: parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Size is a byte count that parses from human-readable YAML strings such as
// "4GB" or "512MB" (binary units) or a plain byte count.
type Size uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := parseSize(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func parseSize(raw string) (Size, error) {
	str := strings.TrimSpace(strings.ToUpper(raw))
	mult := uint64(1)
	switch {
	case strings.HasSuffix(str, "TB"):
		mult, str = 1<<40, strings.TrimSuffix(str, "TB")
	case strings.HasSuffix(str, "GB"):
		mult, str = 1<<30, strings.TrimSuffix(str, "GB")
	case strings.HasSuffix(str, "MB"):
		mult, str = 1<<20, strings.TrimSuffix(str, "MB")
	case strings.HasSuffix(str, "KB"):
		mult, str = 1<<10, strings.TrimSuffix(str, "KB")
	case strings.HasSuffix(str, "B"):
		str = strings.TrimSuffix(str, "B")
	}
	n, err := strconv.ParseUint(strings.TrimSpace(str), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("compaction: parse size %q: %w", raw, err)
	}
	return Size(n * mult), nil
}

// SchedulerConfig configures the compaction scheduler. Every field has a
// default; zero values are replaced by them.
type SchedulerConfig struct {
	// ScheduleChannelLen is the depth of the command channel.
	ScheduleChannelLen int `yaml:"schedule_channel_len"`

	// ScheduleInterval is the period of the sweep timer.
	ScheduleInterval Duration `yaml:"schedule_interval"`

	// MaxOngoingTasks caps concurrent compaction workers.
	MaxOngoingTasks int `yaml:"max_ongoing_tasks"`

	// MaxUnflushedDuration is the threshold for the periodic flush trigger.
	MaxUnflushedDuration Duration `yaml:"max_unflushed_duration"`

	// MemoryLimit bounds estimated in-flight compaction memory.
	MemoryLimit Size `yaml:"memory_limit"`
}

// DefaultSchedulerConfig returns the default configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ScheduleChannelLen:   defaultScheduleChannelLen,
		ScheduleInterval:     Duration(defaultScheduleInterval),
		MaxOngoingTasks:      defaultMaxOngoingTasks,
		MaxUnflushedDuration: Duration(defaultMaxUnflushed),
		MemoryLimit:          defaultMemoryLimit,
	}
}

// ParseSchedulerConfig decodes YAML over the defaults.
func ParseSchedulerConfig(data []byte) (SchedulerConfig, error) {
	cfg := DefaultSchedulerConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SchedulerConfig{}, fmt.Errorf("compaction: parse scheduler config: %w", err)
	}
	return cfg.withDefaults(), nil
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.ScheduleChannelLen <= 0 {
		c.ScheduleChannelLen = defaultScheduleChannelLen
	}
	if c.ScheduleInterval <= 0 {
		c.ScheduleInterval = Duration(defaultScheduleInterval)
	}
	if c.MaxOngoingTasks <= 0 {
		c.MaxOngoingTasks = defaultMaxOngoingTasks
	}
	if c.MaxUnflushedDuration <= 0 {
		c.MaxUnflushedDuration = Duration(defaultMaxUnflushed)
	}
	if c.MemoryLimit == 0 {
		c.MemoryLimit = defaultMemoryLimit
	}
	return c
}
