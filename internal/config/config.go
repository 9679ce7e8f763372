// Package config loads elastiq's INI configuration file into a typed Config,
// applying the documented defaults for any key left unset.
package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// Elastiq holds the main-loop cadences and the scale-up/scale-down triggers.
type Elastiq struct {
	SleepInterval         time.Duration
	CheckQueueEvery       time.Duration
	CheckVMsEvery         time.Duration
	EstimatedVMDeployTime time.Duration
	WaitingJobsThreshold  int
	WaitingJobsTime       time.Duration
	NJobsPerVM            int
	IdleForTime           time.Duration
	BatchPlugin           string
	LogLevel              int
}

// EC2 holds the cloud endpoint and launch-template configuration.
type EC2 struct {
	APIURL          string
	APIVersion      string
	AccessKeyID     string
	SecretAccessKey string
	ImageID         string
	KeyName         string
	Flavour         string
	UserData        []byte
}

// Quota holds the pool-size floor and ceiling. A value <= 0 disables the
// corresponding bound.
type Quota struct {
	MinVMs int
	MaxVMs int
}

// Debug holds the dry-run switches.
type Debug struct {
	DryRunBootVMs     bool
	DryRunShutdownVMs bool
}

// Config is the fully parsed, defaulted configuration.
type Config struct {
	Elastiq Elastiq
	EC2     EC2
	Quota   Quota
	Debug   Debug

	// PluginSection carries the raw key/value pairs of the section named
	// after Elastiq.BatchPlugin, handed to the plugin's own Init
	// unparsed — elastiq's core never interprets plugin-specific keys.
	PluginSection map[string]string
}

// Load parses path and returns a Config with defaults applied to unset keys.
// Values are not validated: a numeric key that fails to parse keeps its
// default, and any parsed value is accepted as is.
func Load(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()

	sec := file.Section("elastiq")
	cfg.Elastiq.SleepInterval = seconds(sec, "sleep_s", cfg.Elastiq.SleepInterval)
	cfg.Elastiq.CheckQueueEvery = seconds(sec, "check_queue_every_s", cfg.Elastiq.CheckQueueEvery)
	cfg.Elastiq.CheckVMsEvery = seconds(sec, "check_vms_every_s", cfg.Elastiq.CheckVMsEvery)
	cfg.Elastiq.EstimatedVMDeployTime = seconds(sec, "estimated_vm_deploy_time_s", cfg.Elastiq.EstimatedVMDeployTime)
	cfg.Elastiq.WaitingJobsThreshold = intKey(sec, "waiting_jobs_threshold", cfg.Elastiq.WaitingJobsThreshold)
	cfg.Elastiq.WaitingJobsTime = seconds(sec, "waiting_jobs_time_s", cfg.Elastiq.WaitingJobsTime)
	cfg.Elastiq.NJobsPerVM = intKey(sec, "n_jobs_per_vm", cfg.Elastiq.NJobsPerVM)
	cfg.Elastiq.IdleForTime = seconds(sec, "idle_for_time_s", cfg.Elastiq.IdleForTime)
	cfg.Elastiq.BatchPlugin = stringKey(sec, "batch_plugin", cfg.Elastiq.BatchPlugin)
	cfg.Elastiq.LogLevel = intKey(sec, "log_level", cfg.Elastiq.LogLevel)

	ec2 := file.Section("ec2")
	cfg.EC2.APIURL = stringKey(ec2, "api_url", cfg.EC2.APIURL)
	cfg.EC2.APIVersion = stringKey(ec2, "api_version", cfg.EC2.APIVersion)
	cfg.EC2.AccessKeyID = stringKey(ec2, "aws_access_key_id", cfg.EC2.AccessKeyID)
	cfg.EC2.SecretAccessKey = stringKey(ec2, "aws_secret_access_key", cfg.EC2.SecretAccessKey)
	cfg.EC2.ImageID = stringKey(ec2, "image_id", cfg.EC2.ImageID)
	cfg.EC2.KeyName = stringKey(ec2, "key_name", cfg.EC2.KeyName)
	cfg.EC2.Flavour = stringKey(ec2, "flavour", cfg.EC2.Flavour)
	if raw := stringKey(ec2, "user_data_b64", ""); raw != "" {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			cfg.EC2.UserData = nil
		} else {
			cfg.EC2.UserData = decoded
		}
	}

	quota := file.Section("quota")
	cfg.Quota.MinVMs = intKey(quota, "min_vms", cfg.Quota.MinVMs)
	cfg.Quota.MaxVMs = intKey(quota, "max_vms", cfg.Quota.MaxVMs)

	debug := file.Section("debug")
	cfg.Debug.DryRunBootVMs = intKey(debug, "dry_run_boot_vms", 0) != 0
	cfg.Debug.DryRunShutdownVMs = intKey(debug, "dry_run_shutdown_vms", 0) != 0

	if file.HasSection(cfg.Elastiq.BatchPlugin) {
		pluginSec := file.Section(cfg.Elastiq.BatchPlugin)
		cfg.PluginSection = make(map[string]string, len(pluginSec.Keys()))
		for _, k := range pluginSec.Keys() {
			cfg.PluginSection[k.Name()] = k.Value()
		}
	}

	return cfg, nil
}

// defaults returns a Config populated with elastiq's documented defaults
// (spec.md §3, mirroring original_source's cf dictionary).
func defaults() *Config {
	return &Config{
		Elastiq: Elastiq{
			SleepInterval:         5 * time.Second,
			CheckQueueEvery:       15 * time.Second,
			CheckVMsEvery:         45 * time.Second,
			EstimatedVMDeployTime: 600 * time.Second,
			WaitingJobsThreshold:  10,
			WaitingJobsTime:       100 * time.Second,
			NJobsPerVM:            4,
			IdleForTime:           3600 * time.Second,
			BatchPlugin:           "htcondor",
			LogLevel:              0,
		},
		EC2: EC2{
			APIURL:  "https://dummy.ec2.server/ec2/",
			ImageID: "ami-00000000",
		},
		Quota: Quota{
			MinVMs: 0,
			MaxVMs: 3,
		},
	}
}

func stringKey(sec *ini.Section, name, fallback string) string {
	if sec == nil || !sec.HasKey(name) {
		return fallback
	}
	return sec.Key(name).Value()
}

func intKey(sec *ini.Section, name string, fallback int) int {
	if sec == nil || !sec.HasKey(name) {
		return fallback
	}
	v, err := sec.Key(name).Int()
	if err != nil {
		return fallback
	}
	return v
}

func seconds(sec *ini.Section, name string, fallback time.Duration) time.Duration {
	if sec == nil || !sec.HasKey(name) {
		return fallback
	}
	v, err := sec.Key(name).Float64()
	if err != nil {
		return fallback
	}
	return time.Duration(v * float64(time.Second))
}
