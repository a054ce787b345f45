package sql

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

// ========== Activity Repository ==========

// appendActivity 在事务内写入操作日志；entityID 仅在日志未指定实体时填充
func appendActivity(tx *gorm.DB, activity *domain.ActivityLog, entityID uint) error {
	if activity == nil {
		return nil
	}
	if activity.EntityID == 0 {
		activity.EntityID = entityID
	}
	return tx.Create(activity).Error
}

// AppendActivity 追加一条操作日志
func (s *Store) AppendActivity(ctx context.Context, log *domain.ActivityLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// ListActivity 按时间倒序分页查询操作日志
func (s *Store) ListActivity(ctx context.Context, filter domain.ActivityFilter) (domain.Page[domain.ActivityLog], error) {
	filter.Normalize()

	query := s.db.WithContext(ctx).Model(&domain.ActivityLog{})
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != 0 {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return domain.Page[domain.ActivityLog]{}, err
	}

	var items []domain.ActivityLog
	err := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order("id DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&items).Error
	if err != nil {
		return domain.Page[domain.ActivityLog]{}, err
	}

	return domain.NewPage(items, total, filter.Page, filter.PageSize), nil
}

// ========== Setting Repository ==========

// GetSetting 根据键获取配置项
func (s *Store) GetSetting(ctx context.Context, key string) (*domain.SystemSetting, error) {
	var setting domain.SystemSetting
	if err := s.db.WithContext(ctx).Where(&domain.SystemSetting{Key: key}).First(&setting).Error; err != nil {
		return nil, notFound(err, storage.ErrSettingNotFound)
	}
	return &setting, nil
}

// ListSettings 列出全部配置项
func (s *Store) ListSettings(ctx context.Context) ([]domain.SystemSetting, error) {
	var items []domain.SystemSetting
	err := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&items).Error
	return items, err
}

// UpsertSetting 按键写入配置项，已存在时覆盖值与说明
func (s *Store) UpsertSetting(ctx context.Context, setting *domain.SystemSetting) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_by", "updated_at"}),
	}).Create(setting).Error
}

// SeedSettings 写入缺失的默认配置，不覆盖已有值
func (s *Store) SeedSettings(ctx context.Context, defaults []domain.SystemSetting) error {
	if len(defaults) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&defaults).Error
}
