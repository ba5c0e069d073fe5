package tracker

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrNotVisible indicates the viewer has no resolution path to the entity.
	ErrNotVisible = errors.New("tracker: entity not visible")
	// ErrPermissionDenied indicates the viewer may see the entity but not change it.
	ErrPermissionDenied = errors.New("tracker: permission denied")
	// ErrInvalidShare indicates a malformed share request.
	ErrInvalidShare = errors.New("tracker: invalid share request")
	// ErrInvalidLink indicates a link target the viewer does not own or that no longer exists.
	ErrInvalidLink = errors.New("tracker: invalid link target")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingViewer     = errors.New("viewer identifier is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "tracker.service.new"
	opListEntities   = "tracker.list_entities"
	opMatchOutcome   = "tracker.match_outcome"
	opFinalizeMatch  = "tracker.finalize_match"
	opGameInsights   = "tracker.game_insights"
	opShareEntity    = "tracker.share_entity"
	opLinkShare      = "tracker.link_share"
	opUnlinkShare    = "tracker.unlink_share"
	opRevokeShare    = "tracker.revoke_share"
	opDeleteEntity   = "tracker.delete_entity"
	opRecordEvent    = "tracker.record_share_event"
	reasonNotVisible = "not_visible"
	reasonQuery      = "query_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// fail logs and returns a service error; causes that are already service errors pass through.
func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}
	s.logError(operation, reason, err, fields...)
	return newServiceError(operation, reason, err)
}

// reject returns a caller-facing service error without logging at error level.
func (s *Service) reject(operation, reason string, cause error, fields ...zap.Field) error {
	attrs := append([]zap.Field{zap.String("operation", operation), zap.String("reason", reason)}, fields...)
	s.loggerOrDefault().Debug("tracker request rejected", attrs...)
	return newServiceError(operation, reason, cause)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("tracker service error", attrs...)
}
