package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

// SettingsStore keeps every version of every key; nothing is overwritten.
type SettingsStore interface {
	// InsertSetting writes value as the next version of key.
	InsertSetting(ctx context.Context, key, value, createdBy string, at time.Time) (types.Setting, error)
	LatestSetting(ctx context.Context, key string) (types.Setting, bool, error)
	SettingVersion(ctx context.Context, key string, version int) (types.Setting, bool, error)
	SettingAsOf(ctx context.Context, key string, at time.Time) (types.Setting, bool, error)
	SettingHistory(ctx context.Context, key string) ([]types.Setting, error)
}

type ModelStore interface {
	RegisterModel(ctx context.Context, m types.ModelVersion) (int64, error)
	GetModel(ctx context.Context, id int64) (types.ModelVersion, error)
	// ActivateModel makes id the only active model.
	ActivateModel(ctx context.Context, id int64) error
	ActiveModel(ctx context.Context) (types.ModelVersion, bool, error)
	ListModels(ctx context.Context) ([]types.ModelVersion, error)
}
