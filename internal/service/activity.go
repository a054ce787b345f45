package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

// ActivityService 操作日志
type ActivityService struct {
	repo storage.ActivityRepository
	log  *zap.Logger
}

// NewActivityService 创建操作日志服务
func NewActivityService(repo storage.ActivityRepository, log *zap.Logger) *ActivityService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ActivityService{repo: repo, log: log}
}

// Record 追加一条日志，写入失败只记录警告，不影响主流程
func (s *ActivityService) Record(ctx context.Context, userID uint, action domain.ActivityAction, entityType string, entityID uint, description string) {
	s.RecordWithMetadata(ctx, userID, action, entityType, entityID, description, nil)
}

// RecordWithMetadata 追加带附加信息的日志
func (s *ActivityService) RecordWithMetadata(ctx context.Context, userID uint, action domain.ActivityAction, entityType string, entityID uint, description string, metadata map[string]interface{}) {
	if s == nil {
		return
	}

	entry := &domain.ActivityLog{
		UserID:      userID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: description,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}

	if err := s.repo.AppendActivity(ctx, entry); err != nil {
		s.log.Warn("failed to record activity",
			zap.String("action", string(action)),
			zap.String("entity_type", entityType),
			zap.Uint("entity_id", entityID),
			zap.Error(err))
	}
}

// List 分页查询日志
func (s *ActivityService) List(ctx context.Context, filter domain.ActivityFilter) (domain.Page[domain.ActivityLog], error) {
	return s.repo.ListActivity(ctx, filter)
}
