package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

// ModelRegistry tracks recognition model versions so templates and access
// decisions can be traced to the model that produced them.
type ModelRegistry struct {
	*env
	audit *AuditLedger
}

func (r *ModelRegistry) Register(ctx context.Context, actor, name, version, checksum string) (types.ModelVersion, error) {
	const op = "service.ModelRegistry.Register"

	m := types.ModelVersion{
		Name:         strings.TrimSpace(name),
		Version:      strings.TrimSpace(version),
		Checksum:     strings.TrimSpace(checksum),
		RegisteredAt: r.now(),
	}
	if m.Name == "" || m.Version == "" {
		return types.ModelVersion{}, vaulterr.Newf(vaulterr.Invalid, op, "model name and version are required")
	}

	err := r.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		id, err := r.st.Models.RegisterModel(ctx, m)
		if err != nil {
			return err
		}
		m.ID = id
		_, err = r.audit.record(ctx, actor, types.ActionModelRegistered, modelResource(id), map[string]any{
			"name":     m.Name,
			"version":  m.Version,
			"checksum": m.Checksum,
		})
		return err
	})
	if err != nil {
		return types.ModelVersion{}, storageErr(op, err)
	}
	return m, nil
}

// Activate makes id the single active model.
func (r *ModelRegistry) Activate(ctx context.Context, actor string, id int64) error {
	const op = "service.ModelRegistry.Activate"

	err := r.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		m, err := r.st.Models.GetModel(ctx, id)
		if err != nil {
			return err
		}
		if err := r.st.Models.ActivateModel(ctx, id); err != nil {
			return err
		}
		_, err = r.audit.record(ctx, actor, types.ActionModelActivated, modelResource(id), map[string]any{
			"name":    m.Name,
			"version": m.Version,
		})
		return err
	})
	if err != nil {
		return storageErr(op, err)
	}
	r.log.Info().Int64("model_version_id", id).Str("actor", actor).Msg("model activated")
	return nil
}

func (r *ModelRegistry) Active(ctx context.Context) (types.ModelVersion, bool, error) {
	m, ok, err := r.st.Models.ActiveModel(ctx)
	return m, ok, storageErr("service.ModelRegistry.Active", err)
}

func (r *ModelRegistry) List(ctx context.Context) ([]types.ModelVersion, error) {
	out, err := r.st.Models.ListModels(ctx)
	return out, storageErr("service.ModelRegistry.List", err)
}

// activeID is nil when no model is active.
func (r *ModelRegistry) activeID(ctx context.Context) (*int64, error) {
	m, ok, err := r.st.Models.ActiveModel(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return &m.ID, nil
}

func modelResource(id int64) string { return fmt.Sprintf("model:%d", id) }
