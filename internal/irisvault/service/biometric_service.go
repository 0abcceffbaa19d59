package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

// BiometricService owns persons, their templates and recognition decisions.
type BiometricService struct {
	*env
	audit    *AuditLedger
	settings *SettingsRegistry
	models   *ModelRegistry
	access   *AccessLog
}

// Enroll stores a template. A zero attrs.ID creates a new person; otherwise
// the template is added to that existing, active person.
func (s *BiometricService) Enroll(ctx context.Context, actor string, attrs types.PersonAttributes, blob []byte, quality float64, eye types.Eye) (types.PersonID, error) {
	const op = "service.BiometricService.Enroll"

	eye, err := types.ParseEye(string(eye))
	if err != nil {
		return 0, err
	}

	var pid types.PersonID
	err = s.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		minQ, _, err := s.settings.Float(ctx, KeyMinEnrollQuality)
		if err != nil {
			return err
		}
		if quality < minQ {
			return vaulterr.Newf(vaulterr.LowQuality, op, "quality %.3f below minimum %.3f", quality, minQ)
		}
		modelID, err := s.models.activeID(ctx)
		if err != nil {
			return err
		}
		now := s.now()

		action := types.ActionTemplateAdded
		if attrs.ID == 0 {
			name := strings.TrimSpace(attrs.Name)
			if name == "" {
				return vaulterr.Newf(vaulterr.Invalid, op, "person name is required")
			}
			pid, err = s.st.Persons.CreatePerson(ctx, types.Person{
				Name:       name,
				Email:      strings.TrimSpace(attrs.Email),
				Phone:      strings.TrimSpace(attrs.Phone),
				Active:     true,
				EnrolledAt: now,
			})
			if err != nil {
				return err
			}
			action = types.ActionPersonEnrolled
		} else {
			p, err := s.st.Persons.GetPerson(ctx, attrs.ID)
			if err != nil {
				return err
			}
			if !p.Active {
				return vaulterr.Newf(vaulterr.Invalid, op, "person %d is deactivated", p.ID)
			}
			pid = p.ID
		}

		tpl, err := types.NewTemplate(pid, blob, quality, eye, modelID, now)
		if err != nil {
			return err
		}
		tplID, err := s.st.Templates.AddTemplate(ctx, tpl)
		if err != nil {
			return err
		}

		fields := map[string]any{"template_id": tplID, "eye": string(eye), "quality": quality}
		if modelID != nil {
			fields["model_version_id"] = *modelID
		}
		_, err = s.audit.record(ctx, actor, action, personResource(pid), fields)
		return err
	})
	if err != nil {
		return 0, storageErr(op, err)
	}
	s.log.Info().Int64("person_id", int64(pid)).Str("eye", string(eye)).Float64("quality", quality).Msg("template enrolled")
	return pid, nil
}

// RecordMatchAttempt turns a recognition score into a decision and logs it.
// The threshold in force and its settings version are stored with the event.
func (s *BiometricService) RecordMatchAttempt(ctx context.Context, actor string, a types.MatchAttempt) (types.Decision, error) {
	const op = "service.BiometricService.RecordMatchAttempt"

	if err := types.ValidateConfidence(a.Confidence); err != nil {
		return types.Decision{}, err
	}

	var dec types.Decision
	err := s.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		threshold, version, err := s.settings.Float(ctx, KeyMatchThreshold)
		if err != nil {
			return err
		}
		modelID, err := s.models.activeID(ctx)
		if err != nil {
			return err
		}
		now := s.now()

		granted, reason := decide(a.Confidence, threshold)
		subject := a.PersonID
		if a.PersonID != nil {
			p, err := s.st.Persons.GetPerson(ctx, *a.PersonID)
			switch {
			case errors.Is(err, vaulterr.NotFound):
				granted, reason, subject = false, types.ReasonUnknownPerson, nil
			case err != nil:
				return err
			case !p.Active:
				granted, reason = false, types.ReasonPersonInactive
			}
		}

		attempt := a
		attempt.PersonID = subject
		ev, err := types.NewAccessEvent(attempt, granted, reason, now)
		if err != nil {
			return err
		}
		ev.Threshold = &threshold
		ev.ThresholdVersion = &version
		ev.ModelVersionID = modelID
		if ev, err = s.access.Record(ctx, ev); err != nil {
			return err
		}

		dec = types.Decision{
			Granted:          granted,
			Reason:           reason,
			Confidence:       a.Confidence,
			Threshold:        threshold,
			ThresholdVersion: version,
			PersonID:         subject,
			AccessEventID:    ev.ID,
			ModelVersionID:   modelID,
			OutOfOrder:       ev.OutOfOrder,
		}
		if !granted {
			return nil
		}

		// Anonymous grants are chained against the access event itself.
		resource := accessEventResource(ev.ID)
		if subject != nil {
			if err := s.st.Persons.TouchLastAccess(ctx, *subject, ev.ObservedAt); err != nil {
				return err
			}
			resource = personResource(*subject)
		}
		entry, err := s.audit.record(ctx, actor, types.ActionAccessGranted, resource, map[string]any{
			"access_event_id":   ev.ID,
			"confidence":        a.Confidence,
			"threshold":         threshold,
			"threshold_version": version,
			"device":            ev.Device,
		})
		if err != nil {
			return err
		}
		dec.AuditSeq = entry.Seq
		return nil
	})
	if err != nil {
		return types.Decision{}, storageErr(op, err)
	}
	s.metrics.IncrementAccessDecision(dec.Granted, dec.Reason)
	return dec, nil
}

// Deactivate soft-disables a person. Deactivating twice is a no-op.
func (s *BiometricService) Deactivate(ctx context.Context, actor string, id types.PersonID) error {
	const op = "service.BiometricService.Deactivate"

	err := s.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		p, err := s.st.Persons.GetPerson(ctx, id)
		if err != nil {
			return err
		}
		if !p.Active {
			return nil
		}
		if err := s.st.Persons.DeactivatePerson(ctx, id, s.now()); err != nil {
			return err
		}
		_, err = s.audit.record(ctx, actor, types.ActionPersonDeactivated, personResource(id),
			map[string]any{"name": p.Name})
		return err
	})
	if err != nil {
		return storageErr(op, err)
	}
	s.log.Info().Int64("person_id", int64(id)).Str("actor", actor).Msg("person deactivated")
	return nil
}

// OverrideAccess records an operator's manual decision about an earlier
// event. The original stays untouched; the override is a new event that
// points at it.
func (s *BiometricService) OverrideAccess(ctx context.Context, actor string, eventID int64, granted bool, reason string) (types.AccessEvent, error) {
	const op = "service.BiometricService.OverrideAccess"

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return types.AccessEvent{}, vaulterr.Newf(vaulterr.Invalid, op, "override reason is required")
	}

	var out types.AccessEvent
	err := s.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		orig, err := s.st.Access.GetAccessEvent(ctx, eventID)
		if err != nil {
			return err
		}
		origID := orig.ID
		out, err = s.access.Record(ctx, types.AccessEvent{
			PersonID:         orig.PersonID,
			AttemptType:      types.AttemptOverride,
			Confidence:       orig.Confidence,
			Granted:          granted,
			Reason:           reason,
			Threshold:        orig.Threshold,
			ThresholdVersion: orig.ThresholdVersion,
			ModelVersionID:   orig.ModelVersionID,
			Device:           orig.Device,
			Location:         orig.Location,
			OverrideOf:       &origID,
		})
		if err != nil {
			return err
		}
		if granted && orig.PersonID != nil {
			if err := s.st.Persons.TouchLastAccess(ctx, *orig.PersonID, out.ObservedAt); err != nil {
				return err
			}
		}
		_, err = s.audit.record(ctx, actor, types.ActionAccessOverride, accessEventResource(origID), map[string]any{
			"override_event_id": out.ID,
			"granted":           granted,
			"original_granted":  orig.Granted,
			"reason":            reason,
		})
		return err
	})
	if err != nil {
		return types.AccessEvent{}, storageErr(op, err)
	}
	s.log.Info().Int64("access_event_id", eventID).Bool("granted", granted).Str("actor", actor).Msg("access overridden")
	return out, nil
}

func (s *BiometricService) GetPerson(ctx context.Context, id types.PersonID) (types.Person, error) {
	p, err := s.st.Persons.GetPerson(ctx, id)
	return p, storageErr("service.BiometricService.GetPerson", err)
}

func (s *BiometricService) ListPersons(ctx context.Context, activeOnly bool) ([]types.Person, error) {
	out, err := s.st.Persons.ListPersons(ctx, activeOnly)
	return out, storageErr("service.BiometricService.ListPersons", err)
}

func (s *BiometricService) ListTemplates(ctx context.Context, id types.PersonID) ([]types.Template, error) {
	const op = "service.BiometricService.ListTemplates"
	if _, err := s.st.Persons.GetPerson(ctx, id); err != nil {
		return nil, storageErr(op, err)
	}
	out, err := s.st.Templates.ListTemplates(ctx, id)
	return out, storageErr(op, err)
}

// decide applies the match boundary: granted when confidence reaches the
// threshold.
func decide(confidence, threshold float64) (bool, string) {
	if confidence >= threshold {
		return true, types.ReasonThresholdMet
	}
	return false, types.ReasonBelowThreshold
}

func personResource(id types.PersonID) string { return fmt.Sprintf("person:%d", id) }

func accessEventResource(id int64) string { return fmt.Sprintf("access_event:%d", id) }
