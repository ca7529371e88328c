// Package config loads the collaborator-supplied policy table —
// resource caps, the PRB cost-per-operator table, plan TTL ceilings,
// the revocation-visibility window, and the cohort-size threshold —
// from a YAML file or environment variables.
//
// Layered with github.com/spf13/viper (defaults, file, env).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ResourceLimits are the Plan VM sandbox caps.
type ResourceLimits struct {
	CPUMillis     int64
	MemoryBytes   int64
	WallMillis    int64
	BatteryPctMax float64
}

// DefaultResourceLimits returns the built-in policy caps:
// cpu <= 30s, memory <= 100MB, wall <= 60s, battery <= 10%.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		CPUMillis:     30_000,
		MemoryBytes:   100 * 1024 * 1024,
		WallMillis:    60_000,
		BatteryPctMax: 10.0,
	}
}

// OperatorCost is the PRB cost charged for one application of an
// operator. Costs are expressed in the same unit as PrivacyRiskBudget
// allocations (an opaque epsilon-style scalar scaled by 10000, i.e. the
// same fixed-point representation as money.Amount but conceptually a
// privacy budget, not currency).
type OperatorCost struct {
	BaseCost      string // parsed with money.Parse by callers
	PerFieldCost  string
	PerRecordCost string
}

// Policy is the full collaborator-supplied policy table.
type Policy struct {
	ResourceLimits ResourceLimits

	// PlanMaxTTL is the maximum plan.ttl - now duration (default 24h).
	PlanMaxTTL time.Duration

	// RevocationVisibilityWindow is the maximum staleness of a cached
	// consent decision before a fresh check is forced (60s).
	RevocationVisibilityWindow time.Duration

	// CapsuleExpiryGrace is how long an EXPIRED capsule may remain
	// before it must be handed to Secure Deletion (1h).
	CapsuleExpiryGrace time.Duration

	// MinCohortSize is the minimum number of distinct subjects a
	// cluster_ref output may describe (default 50); the Plan VM applies
	// it to cluster_ref steps only.
	MinCohortSize int

	// OperatorCosts maps operator name to its PRB cost table entry.
	OperatorCosts map[string]OperatorCost
}

// defaultOperatorCosts assigns cluster_ref and export the highest cost
// (they produce the most re-identification risk) and select and
// pack_capsule none: cluster_ref and export cost more than aggregate.
func defaultOperatorCosts() map[string]OperatorCost {
	return map[string]OperatorCost{
		"select":       {BaseCost: "0.0000"},
		"filter":       {BaseCost: "0.0010"},
		"project":      {BaseCost: "0.0010"},
		"bucketize":    {BaseCost: "0.0100"},
		"aggregate":    {BaseCost: "0.0100"},
		"cluster_ref":  {BaseCost: "0.0500"},
		"redact":       {BaseCost: "0.0050"},
		"sample":       {BaseCost: "0.0100"},
		"export":       {BaseCost: "0.0500"},
		"pack_capsule": {BaseCost: "0.0000"},
	}
}

// Default returns the built-in policy table used when no config file or
// environment override is present.
func Default() *Policy {
	return &Policy{
		ResourceLimits:             DefaultResourceLimits(),
		PlanMaxTTL:                 24 * time.Hour,
		RevocationVisibilityWindow: 60 * time.Second,
		CapsuleExpiryGrace:         1 * time.Hour,
		MinCohortSize:              50,
		OperatorCosts:              defaultOperatorCosts(),
	}
}

// Load reads the policy table from path (if non-empty) layered over
// environment variables prefixed DSCORE_ and, finally, the built-in
// defaults. Missing keys fall back silently. A config file that cannot
// be read or parsed is a hard error; individual values are converted
// with viper's lenient getters, so a malformed value reads as zero
// rather than failing.
func Load(path string) (*Policy, error) {
	v := viper.New()
	v.SetEnvPrefix("DSCORE")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("resource_limits.cpu_millis", def.ResourceLimits.CPUMillis)
	v.SetDefault("resource_limits.memory_bytes", def.ResourceLimits.MemoryBytes)
	v.SetDefault("resource_limits.wall_millis", def.ResourceLimits.WallMillis)
	v.SetDefault("resource_limits.battery_pct_max", def.ResourceLimits.BatteryPctMax)
	v.SetDefault("plan_max_ttl_seconds", int(def.PlanMaxTTL.Seconds()))
	v.SetDefault("revocation_visibility_window_seconds", int(def.RevocationVisibilityWindow.Seconds()))
	v.SetDefault("capsule_expiry_grace_seconds", int(def.CapsuleExpiryGrace.Seconds()))
	v.SetDefault("min_cohort_size", def.MinCohortSize)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	p := &Policy{
		ResourceLimits: ResourceLimits{
			CPUMillis:     v.GetInt64("resource_limits.cpu_millis"),
			MemoryBytes:   v.GetInt64("resource_limits.memory_bytes"),
			WallMillis:    v.GetInt64("resource_limits.wall_millis"),
			BatteryPctMax: v.GetFloat64("resource_limits.battery_pct_max"),
		},
		PlanMaxTTL:                 time.Duration(v.GetInt64("plan_max_ttl_seconds")) * time.Second,
		RevocationVisibilityWindow: time.Duration(v.GetInt64("revocation_visibility_window_seconds")) * time.Second,
		CapsuleExpiryGrace:         time.Duration(v.GetInt64("capsule_expiry_grace_seconds")) * time.Second,
		MinCohortSize:              v.GetInt("min_cohort_size"),
		OperatorCosts:              def.OperatorCosts,
	}

	if opCosts := v.GetStringMap("operator_costs"); len(opCosts) > 0 {
		merged := make(map[string]OperatorCost, len(def.OperatorCosts))
		for k, v := range def.OperatorCosts {
			merged[k] = v
		}
		for name := range opCosts {
			base := v.GetString("operator_costs." + name + ".base_cost")
			if base != "" {
				merged[name] = OperatorCost{BaseCost: base}
			}
		}
		p.OperatorCosts = merged
	}

	return p, nil
}
