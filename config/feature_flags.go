package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with gradual rollout. Rollout
// assignment hashes the user ID, so one user always sees the same state
// for a given percentage.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100). Users are assigned by ID hash.
	RolloutPercent int
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID string
}

// Predefined feature flag names.
const (
	// === Side effect features ===
	FeatureLedgerCredits = "ledger.credits"            // credit points on progress
	FeatureBadgeGrants   = "achievements.badge_grants" // grant badges on completion
	FeatureFeedPosts     = "feed.completion_posts"     // publish completion posts

	// === Engine features ===
	FeatureTeamChallenges    = "teams.challenges"     // team challenge support
	FeatureLeaderboardCache  = "leaderboard.cache"    // Redis-cached board pages
	FeatureProgressOverwrite = "progress.overwrite"   // overwrite mode writes
	FeatureGlobalChallenges  = "challenges.global"    // global challenge type
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{FeatureLedgerCredits, "Credit the point ledger on progress writes", true, 100},
		{FeatureBadgeGrants, "Grant achievement badges on completion", true, 100},
		{FeatureFeedPosts, "Publish completion posts to the activity feed", true, 100},
		{FeatureTeamChallenges, "Team challenge support", true, 100},
		{FeatureLeaderboardCache, "Cache leaderboard pages in Redis", true, 100},
		{FeatureProgressOverwrite, "Allow overwrite-mode progress writes", true, 100},
		{FeatureGlobalChallenges, "Global challenge type", true, 100},
	}

	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment applies env overrides. A flag named "ledger.credits"
// reads FEATURE_LEDGER_CREDITS (bool) and FEATURE_LEDGER_CREDITS_ROLLOUT
// (0-100).
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)

		if val := os.Getenv(envKey); val != "" {
			if enabled, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = enabled
			}
		}

		if val := os.Getenv(envKey + "_ROLLOUT"); val != "" {
			if percent, err := strconv.Atoi(val); err == nil && percent >= 0 && percent <= 100 {
				feature.RolloutPercent = percent
			}
		}
	}
}

// featureNameToEnvKey converts "ledger.credits" to "FEATURE_LEDGER_CREDITS".
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether a feature is enabled for the given context.
// A nil context evaluates only the global toggle and full rollout.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, exists := ff.features[featureName]
	if !exists {
		return false
	}

	// User override wins over everything
	if ctx != nil && ctx.UserID != "" {
		if overrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	if !feature.Enabled {
		return false
	}

	if feature.RolloutPercent >= 100 {
		return true
	}
	if feature.RolloutPercent <= 0 {
		return false
	}
	if ctx == nil || ctx.UserID == "" {
		return false
	}

	return ff.isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
}

// isInRollout deterministically assigns a user to the rollout bucket.
func (ff *FeatureFlags) isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID + ":" + featureName))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride forces a feature state for one user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.userOverrides[userID] == nil {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for one user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent changes a feature's rollout percentage at runtime.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("rollout percent must be 0-100, got %d", percent)
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, exists := ff.features[featureName]
	if !exists {
		return fmt.Errorf("unknown feature: %s", featureName)
	}

	feature.RolloutPercent = percent
	return nil
}

// EnableFeature enables a feature globally.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.setEnabled(featureName, true)
}

// DisableFeature disables a feature globally.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.setEnabled(featureName, false)
}

func (ff *FeatureFlags) setEnabled(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, exists := ff.features[featureName]
	if !exists {
		return fmt.Errorf("unknown feature: %s", featureName)
	}

	feature.Enabled = enabled
	return nil
}

// GetAllFeatures returns a copy of all registered features.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make(map[string]Feature, len(ff.features))
	for name, f := range ff.features {
		out[name] = *f
	}
	return out
}
