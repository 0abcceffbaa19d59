package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/authn"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

// Setting keys.
const (
	KeyMatchThreshold         = "match_threshold"
	KeyMinEnrollQuality       = "min_enroll_quality"
	KeyLockoutThreshold       = "lockout_threshold"
	KeyLockoutDuration        = "lockout_duration_seconds"
	KeyPBKDF2Iterations       = "pbkdf2_iterations"
	KeyTokenTTL               = "token_ttl_seconds"
	KeyVoteVerificationWindow = "vote_verification_window_seconds"
)

// DefaultCreatedBy marks a compiled default that was never written.
const DefaultCreatedBy = "default"

type settingSpec struct {
	def      string
	validate func(string) error
}

var knownSettings = map[string]settingSpec{
	KeyMatchThreshold:         {"0.75", unitInterval},
	KeyMinEnrollQuality:       {"0.5", unitInterval},
	KeyLockoutThreshold:       {"5", intAtLeast(1)},
	KeyLockoutDuration:        {"900", intAtLeast(1)},
	KeyPBKDF2Iterations:       {"210000", intAtLeast(authn.MinIterations)},
	KeyTokenTTL:               {"3600", intAtLeast(60)},
	KeyVoteVerificationWindow: {"300", intAtLeast(1)},
}

func unitInterval(v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", v)
	}
	if math.IsNaN(f) || f < 0 || f > 1 {
		return fmt.Errorf("%v outside [0,1]", f)
	}
	return nil
}

func intAtLeast(floor int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		if n < floor {
			return fmt.Errorf("%d below minimum %d", n, floor)
		}
		return nil
	}
}

// KnownSettings lists the recognised keys in sorted order.
func KnownSettings() []string {
	keys := make([]string, 0, len(knownSettings))
	for k := range knownSettings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingsRegistry is the versioned configuration table. Every Set writes
// a new version; earlier versions stay readable so past decisions can be
// explained with the threshold that applied at the time.
type SettingsRegistry struct {
	*env
	audit *AuditLedger
}

func (r *SettingsRegistry) spec(op, key string) (settingSpec, error) {
	sp, ok := knownSettings[key]
	if !ok {
		return settingSpec{}, vaulterr.Newf(vaulterr.Invalid, op, "unknown setting %q", key)
	}
	return sp, nil
}

func (r *SettingsRegistry) fallback(key string, sp settingSpec) types.Setting {
	return types.Setting{Key: key, Value: sp.def, Version: 0, CreatedBy: DefaultCreatedBy}
}

// Get returns the newest version of key, or its compiled default (version 0).
func (r *SettingsRegistry) Get(ctx context.Context, key string) (types.Setting, error) {
	const op = "service.SettingsRegistry.Get"
	sp, err := r.spec(op, key)
	if err != nil {
		return types.Setting{}, err
	}
	st, ok, err := r.st.Settings.LatestSetting(ctx, key)
	if err != nil {
		return types.Setting{}, storageErr(op, err)
	}
	if !ok {
		return r.fallback(key, sp), nil
	}
	return st, nil
}

// GetVersion returns one specific version. Version 0 is the default.
func (r *SettingsRegistry) GetVersion(ctx context.Context, key string, version int) (types.Setting, error) {
	const op = "service.SettingsRegistry.GetVersion"
	sp, err := r.spec(op, key)
	if err != nil {
		return types.Setting{}, err
	}
	if version == 0 {
		return r.fallback(key, sp), nil
	}
	st, ok, err := r.st.Settings.SettingVersion(ctx, key, version)
	if err != nil {
		return types.Setting{}, storageErr(op, err)
	}
	if !ok {
		return types.Setting{}, vaulterr.Newf(vaulterr.NotFound, op, "%s version %d", key, version)
	}
	return st, nil
}

// GetAsOf returns the version in force at t.
func (r *SettingsRegistry) GetAsOf(ctx context.Context, key string, t time.Time) (types.Setting, error) {
	const op = "service.SettingsRegistry.GetAsOf"
	sp, err := r.spec(op, key)
	if err != nil {
		return types.Setting{}, err
	}
	st, ok, err := r.st.Settings.SettingAsOf(ctx, key, t)
	if err != nil {
		return types.Setting{}, storageErr(op, err)
	}
	if !ok {
		return r.fallback(key, sp), nil
	}
	return st, nil
}

func (r *SettingsRegistry) History(ctx context.Context, key string) ([]types.Setting, error) {
	const op = "service.SettingsRegistry.History"
	if _, err := r.spec(op, key); err != nil {
		return nil, err
	}
	out, err := r.st.Settings.SettingHistory(ctx, key)
	return out, storageErr(op, err)
}

// Set validates value and writes it as the next version of key.
func (r *SettingsRegistry) Set(ctx context.Context, actor, key, value string) (types.Setting, error) {
	const op = "service.SettingsRegistry.Set"
	sp, err := r.spec(op, key)
	if err != nil {
		return types.Setting{}, err
	}
	value = strings.TrimSpace(value)
	if err := sp.validate(value); err != nil {
		return types.Setting{}, vaulterr.E(vaulterr.Invalid, op, fmt.Errorf("%s: %w", key, err))
	}

	var out types.Setting
	err = r.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		prev, err := r.Get(ctx, key)
		if err != nil {
			return err
		}
		out, err = r.st.Settings.InsertSetting(ctx, key, value, actor, r.now())
		if err != nil {
			return err
		}
		_, err = r.audit.record(ctx, actor, types.ActionSettingChanged, key, map[string]any{
			"version":  out.Version,
			"value":    value,
			"previous": prev.Value,
		})
		return err
	})
	if err != nil {
		return types.Setting{}, storageErr(op, err)
	}
	r.log.Info().Str("key", key).Str("value", value).Int("version", out.Version).Str("actor", actor).Msg("setting changed")
	return out, nil
}

// Float reads a numeric setting and the version it came from.
func (r *SettingsRegistry) Float(ctx context.Context, key string) (float64, int, error) {
	st, err := r.Get(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	f, err := strconv.ParseFloat(st.Value, 64)
	if err != nil {
		return 0, 0, vaulterr.E(vaulterr.Invalid, "service.SettingsRegistry.Float", err)
	}
	return f, st.Version, nil
}

func (r *SettingsRegistry) Int(ctx context.Context, key string) (int, error) {
	st, err := r.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(st.Value)
	if err != nil {
		return 0, vaulterr.E(vaulterr.Invalid, "service.SettingsRegistry.Int", err)
	}
	return n, nil
}

// Duration reads a *_seconds setting.
func (r *SettingsRegistry) Duration(ctx context.Context, key string) (time.Duration, error) {
	n, err := r.Int(ctx, key)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}
