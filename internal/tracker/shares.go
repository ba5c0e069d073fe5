package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShareAction names a share mutation in the audit trail.
type ShareAction string

const (
	ShareActionShare         ShareAction = "share"
	ShareActionLink          ShareAction = "link"
	ShareActionUnlink        ShareAction = "unlink"
	ShareActionRevoke        ShareAction = "revoke"
	ShareActionEntityDeleted ShareAction = "entity_deleted"
)

// ShareRequest asks to share an owned entity with another user.
type ShareRequest struct {
	Kind         sharing.Kind
	EntityID     int64
	SharedWithID string
	Permission   sharing.Permission
}

// ShareChange describes the effect of a share mutation. Changed is false when the mutation was a no-op,
// in which case nothing was audited.
type ShareChange struct {
	ShareID        int64              `json:"share_id"`
	Kind           sharing.Kind       `json:"kind"`
	EntityID       int64              `json:"entity_id"`
	OwnerID        string             `json:"owner_id"`
	RecipientID    string             `json:"recipient_id"`
	Permission     sharing.Permission `json:"permission"`
	LinkedEntityID *int64             `json:"linked_entity_id,omitempty"`
	Action         ShareAction        `json:"action"`
	Changed        bool               `json:"changed"`
}

func changeFromShare(share Share, action ShareAction, changed bool) ShareChange {
	return ShareChange{
		ShareID:        share.ID,
		Kind:           sharing.Kind(share.Kind),
		EntityID:       share.EntityID,
		OwnerID:        share.OwnerID,
		RecipientID:    share.SharedWithID,
		Permission:     sharing.Permission(share.Permission),
		LinkedEntityID: share.LinkedEntityID,
		Action:         action,
		Changed:        changed,
	}
}

// ShareEntity creates the share edge, or restores and re-permissions an existing one for the same recipient.
func (s *Service) ShareEntity(ctx context.Context, ownerID string, request ShareRequest) (ShareChange, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ShareChange{}, s.reject(opShareEntity, "missing_viewer", errMissingViewer)
	}
	recipientID := strings.TrimSpace(request.SharedWithID)
	if recipientID == "" || recipientID == ownerID {
		return ShareChange{}, s.reject(opShareEntity, "invalid_recipient", fmt.Errorf("%w: recipient %q", ErrInvalidShare, request.SharedWithID))
	}
	permission, err := sharing.ParsePermission(string(request.Permission))
	if err != nil {
		return ShareChange{}, s.reject(opShareEntity, "invalid_permission", fmt.Errorf("%w: %v", ErrInvalidShare, err))
	}
	if _, err := tableFor(request.Kind); err != nil {
		return ShareChange{}, s.reject(opShareEntity, "invalid_kind", fmt.Errorf("%w: %v", ErrInvalidShare, err))
	}

	var change ShareChange
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned, err := liveEntity(tx, request.Kind, request.EntityID, ownerID)
		if err != nil {
			return s.fail(opShareEntity, reasonQuery, err, zap.Int64("entity_id", request.EntityID))
		}
		if !owned {
			return s.reject(opShareEntity, reasonNotVisible, ErrNotVisible, zap.Int64("entity_id", request.EntityID))
		}

		var share Share
		err = tx.Unscoped().
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("kind = ? AND shared_with_id = ? AND entity_id = ?", string(request.Kind), recipientID, request.EntityID).
			Take(&share).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			share = Share{
				Kind:         string(request.Kind),
				OwnerID:      ownerID,
				SharedWithID: recipientID,
				EntityID:     request.EntityID,
				Permission:   string(permission),
			}
			if err := tx.Create(&share).Error; err != nil {
				return s.fail(opShareEntity, "share_insert_failed", err, zap.Int64("entity_id", request.EntityID))
			}
		case err != nil:
			return s.fail(opShareEntity, "share_select_failed", err, zap.Int64("entity_id", request.EntityID))
		case !share.DeletedAt.Valid && share.Permission == string(permission):
			change = changeFromShare(share, ShareActionShare, false)
			return nil
		default:
			if err := tx.Unscoped().Model(&share).Updates(map[string]interface{}{
				"permission": string(permission),
				"deleted_at": nil,
			}).Error; err != nil {
				return s.fail(opShareEntity, "share_update_failed", err, zap.Int64("share_id", share.ID))
			}
			share.Permission = string(permission)
		}

		change = changeFromShare(share, ShareActionShare, true)
		return s.recordShareEvent(tx, ownerID, change)
	})
	if err != nil {
		return ShareChange{}, err
	}
	return change, nil
}

// LinkShare merges a share addressed to the viewer into a live entity of the same kind the viewer owns.
// Linking to the current target again is a no-op.
func (s *Service) LinkShare(ctx context.Context, viewerID string, shareID, linkedEntityID int64) (ShareChange, error) {
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return ShareChange{}, s.reject(opLinkShare, "missing_viewer", errMissingViewer)
	}

	var change ShareChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		share, err := s.lockShare(tx, opLinkShare, shareID, "shared_with_id = ?", viewerID)
		if err != nil {
			return err
		}
		owned, err := liveEntity(tx, sharing.Kind(share.Kind), linkedEntityID, viewerID)
		if err != nil {
			return s.fail(opLinkShare, reasonQuery, err, zap.Int64("linked_entity_id", linkedEntityID))
		}
		if !owned {
			return s.reject(opLinkShare, "invalid_link_target", ErrInvalidLink, zap.Int64("linked_entity_id", linkedEntityID))
		}
		if share.LinkedEntityID != nil && *share.LinkedEntityID == linkedEntityID {
			change = changeFromShare(share, ShareActionLink, false)
			return nil
		}

		if err := tx.Model(&share).Update("linked_entity_id", linkedEntityID).Error; err != nil {
			return s.fail(opLinkShare, "share_update_failed", err, zap.Int64("share_id", shareID))
		}
		linked := linkedEntityID
		share.LinkedEntityID = &linked
		change = changeFromShare(share, ShareActionLink, true)
		return s.recordShareEvent(tx, viewerID, change)
	})
	if err != nil {
		return ShareChange{}, err
	}
	return change, nil
}

// UnlinkShare clears the link of a share addressed to the viewer; the share itself stays.
func (s *Service) UnlinkShare(ctx context.Context, viewerID string, shareID int64) (ShareChange, error) {
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return ShareChange{}, s.reject(opUnlinkShare, "missing_viewer", errMissingViewer)
	}

	var change ShareChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		share, err := s.lockShare(tx, opUnlinkShare, shareID, "shared_with_id = ?", viewerID)
		if err != nil {
			return err
		}
		if share.LinkedEntityID == nil {
			change = changeFromShare(share, ShareActionUnlink, false)
			return nil
		}
		if err := tx.Model(&share).Update("linked_entity_id", nil).Error; err != nil {
			return s.fail(opUnlinkShare, "share_update_failed", err, zap.Int64("share_id", shareID))
		}
		share.LinkedEntityID = nil
		change = changeFromShare(share, ShareActionUnlink, true)
		return s.recordShareEvent(tx, viewerID, change)
	})
	if err != nil {
		return ShareChange{}, err
	}
	return change, nil
}

// RevokeShare tombstones a share the caller granted.
func (s *Service) RevokeShare(ctx context.Context, ownerID string, shareID int64) (ShareChange, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ShareChange{}, s.reject(opRevokeShare, "missing_viewer", errMissingViewer)
	}

	var change ShareChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		share, err := s.lockShare(tx, opRevokeShare, shareID, "owner_id = ?", ownerID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&share).Error; err != nil {
			return s.fail(opRevokeShare, "share_delete_failed", err, zap.Int64("share_id", shareID))
		}
		change = changeFromShare(share, ShareActionRevoke, true)
		return s.recordShareEvent(tx, ownerID, change)
	})
	if err != nil {
		return ShareChange{}, err
	}
	return change, nil
}

// DeleteEntity tombstones an owned entity. Share edges pointing at it stay for history; one change per
// live edge is returned so recipients can be told.
func (s *Service) DeleteEntity(ctx context.Context, ownerID string, kind sharing.Kind, entityID int64) ([]ShareChange, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, s.reject(opDeleteEntity, "missing_viewer", errMissingViewer)
	}
	model, err := newEntityModel(kind)
	if err != nil {
		return nil, s.reject(opDeleteEntity, "invalid_kind", err)
	}

	var changes []ShareChange
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned, err := liveEntity(tx, kind, entityID, ownerID)
		if err != nil {
			return s.fail(opDeleteEntity, reasonQuery, err, zap.Int64("entity_id", entityID))
		}
		if !owned {
			return s.reject(opDeleteEntity, reasonNotVisible, ErrNotVisible, zap.Int64("entity_id", entityID))
		}
		if err := tx.Delete(model, entityID).Error; err != nil {
			return s.fail(opDeleteEntity, "entity_delete_failed", err, zap.Int64("entity_id", entityID))
		}

		var shares []Share
		if err := tx.Where("kind = ? AND entity_id = ?", string(kind), entityID).Order("id ASC").Find(&shares).Error; err != nil {
			return s.fail(opDeleteEntity, reasonQuery, err, zap.Int64("entity_id", entityID))
		}
		changes = make([]ShareChange, 0, len(shares))
		for _, share := range shares {
			change := changeFromShare(share, ShareActionEntityDeleted, true)
			if err := s.recordShareEvent(tx, ownerID, change); err != nil {
				return err
			}
			changes = append(changes, change)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// lockShare loads a live share by id under a party condition, or reports it as not visible.
func (s *Service) lockShare(tx *gorm.DB, operation string, shareID int64, party string, partyID string) (Share, error) {
	var share Share
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", shareID).
		Where(party, partyID).
		Take(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Share{}, s.reject(operation, reasonNotVisible, ErrNotVisible, zap.Int64("share_id", shareID))
	}
	if err != nil {
		return Share{}, s.fail(operation, "share_select_failed", err, zap.Int64("share_id", shareID))
	}
	return share, nil
}

// liveEntity reports whether the entity exists, is not tombstoned and belongs to ownerID.
func liveEntity(tx *gorm.DB, kind sharing.Kind, entityID int64, ownerID string) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	var count int64
	if err := tx.Table(table).
		Where("id = ? AND owner_id = ? AND deleted_at IS NULL", entityID, ownerID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) recordShareEvent(tx *gorm.DB, actorID string, change ShareChange) error {
	eventID, err := s.idProvider.NewID()
	if err != nil {
		return s.fail(opRecordEvent, "id_generation_failed", err, zap.Int64("share_id", change.ShareID))
	}
	event := ShareEvent{
		EventID:          eventID,
		ShareID:          change.ShareID,
		Kind:             string(change.Kind),
		ActorID:          actorID,
		Action:           string(change.Action),
		LinkedEntityID:   change.LinkedEntityID,
		AppliedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := tx.Create(&event).Error; err != nil {
		return s.fail(opRecordEvent, "audit_insert_failed", err,
			zap.Int64("share_id", change.ShareID),
			zap.String("action", string(change.Action)))
	}
	return nil
}
