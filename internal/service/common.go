package service

import (
	"context"
	"database/sql"
	"errors"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/internal/models"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/validation"
)

var auditCodec = jsoniter.ConfigCompatibleWithStandardLibrary

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditEntry describes a single audit record before encoding.
type auditEntry struct {
	Action     string
	Resource   string
	ResourceID string
	Old        interface{}
	New        interface{}
}

// recordAudit stores the entry and only logs when that fails.
func recordAudit(ctx context.Context, w auditWriter, logger *zap.Logger, meta models.AuditMeta, entry auditEntry) {
	if w == nil {
		return
	}
	log := &models.AuditLog{
		Action:    entry.Action,
		Resource:  entry.Resource,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if meta.ActorID != "" {
		actor := meta.ActorID
		log.UserID = &actor
	}
	if entry.ResourceID != "" {
		id := entry.ResourceID
		log.ResourceID = &id
	}
	if entry.Old != nil {
		log.OldValues, _ = auditCodec.Marshal(entry.Old)
	}
	if entry.New != nil {
		log.NewValues, _ = auditCodec.Marshal(entry.New)
	}
	if err := w.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to record audit log",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.String("resource_id", entry.ResourceID),
			zap.Error(err),
		)
	}
}

func invalid(err error, message string) *appErrors.Error {
	if detail := validation.Describe(err); detail != "" {
		message = message + ": " + detail
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// notFoundOr maps sql.ErrNoRows to NOT_FOUND and anything else to an internal error.
func notFoundOr(err error, notFound, internal string) *appErrors.Error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Internal(err, internal)
}
