// Package config loads node settings from an optional YAML file and
// layers command-line flag overrides on top, the way the teacher's
// deployment/discord-bridge/config.go layers environment variables on
// top of YAML defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File mirrors gossip.Config, minus the fields that only make sense as
// flags (Port, Bootstrap) or are computed at runtime. Every field is a
// pointer so an absent YAML key is distinguishable from an explicit
// zero, which Merge needs to tell "not set" from "set to 0".
type File struct {
	Fanout        *int    `yaml:"fanout"`
	TTL           *int    `yaml:"ttl"`
	PeerLimit     *int    `yaml:"peer_limit"`
	PingIntervalS *int    `yaml:"ping_interval_s"`
	PeerTimeoutS  *int    `yaml:"peer_timeout_s"`
	PullIntervalS *int    `yaml:"pull_interval_s"`
	MaxIHaveIDs   *int    `yaml:"max_ihave_ids"`
	PowDifficulty *int    `yaml:"pow_difficulty"`
	Seed          *int64  `yaml:"seed"`
	LogDir        *string `yaml:"log_dir"`
	ClusterSecret *string `yaml:"cluster_secret"`
	ClusterSalt   *string `yaml:"cluster_salt"`
	AdvertiseAddr *string `yaml:"advertise_addr"`
	ObsAddr       *string `yaml:"obs_addr"`
}

// Load reads and parses a YAML config file. The caller decides whether
// -config was given and only calls Load when it was; a path that cannot
// be read is an error.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// Overrides is the set of values explicitly passed on the command line.
// A nil field means "flag left at its zero value, defer to the config
// file or the gossip.Config default"; Merge never need know which flag
// package produced it.
type Overrides = File

// Merge layers file values under override values: override wins when
// set, file value wins otherwise, and an unset field in both is left
// nil so gossip.Config.withDefaults can apply its own defaults — this
// function never invents a default itself.
func Merge(file *File, override Overrides) File {
	var base File
	if file != nil {
		base = *file
	}
	mergeInt(&base.Fanout, override.Fanout)
	mergeInt(&base.TTL, override.TTL)
	mergeInt(&base.PeerLimit, override.PeerLimit)
	mergeInt(&base.PingIntervalS, override.PingIntervalS)
	mergeInt(&base.PeerTimeoutS, override.PeerTimeoutS)
	mergeInt(&base.PullIntervalS, override.PullIntervalS)
	mergeInt(&base.MaxIHaveIDs, override.MaxIHaveIDs)
	mergeInt(&base.PowDifficulty, override.PowDifficulty)
	mergeInt64(&base.Seed, override.Seed)
	mergeString(&base.LogDir, override.LogDir)
	mergeString(&base.ClusterSecret, override.ClusterSecret)
	mergeString(&base.ClusterSalt, override.ClusterSalt)
	mergeString(&base.AdvertiseAddr, override.AdvertiseAddr)
	mergeString(&base.ObsAddr, override.ObsAddr)
	return base
}

func mergeInt(base **int, override *int) {
	if override != nil {
		*base = override
	}
}

func mergeInt64(base **int64, override *int64) {
	if override != nil {
		*base = override
	}
}

func mergeString(base **string, override *string) {
	if override != nil {
		*base = override
	}
}

func IntOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}

func Int64Or(p *int64, fallback int64) int64 {
	if p == nil {
		return fallback
	}
	return *p
}

func StringOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
