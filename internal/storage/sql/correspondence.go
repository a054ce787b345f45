package sql

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

// ========== Correspondence Repository ==========

// CreateCorrespondence 在一个事务内写入公文、附件记录与操作日志
func (s *Store) CreateCorrespondence(ctx context.Context, c *domain.Correspondence, activity *domain.ActivityLog) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		return appendActivity(tx, activity, c.ID)
	})
	if isDuplicate(err) {
		return s.duplicateCause(ctx, c.ReferenceNumber)
	}
	return err
}

// duplicateCause 区分文号冲突与其他唯一约束冲突（如附件存储名），只有前者值得换文号重试
func (s *Store) duplicateCause(ctx context.Context, reference string) error {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.Correspondence{}).
		Where("reference_number = ?", reference).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return storage.ErrDuplicateReference
	}
	return storage.ErrDuplicate
}

// GetCorrespondence 根据 ID 获取公文及其附件
func (s *Store) GetCorrespondence(ctx context.Context, id uint) (*domain.Correspondence, error) {
	var c domain.Correspondence
	err := s.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("uploaded_at ASC, id ASC")
		}).
		First(&c, id).Error
	if err != nil {
		return nil, notFound(err, storage.ErrCorrespondenceNotFound)
	}
	return &c, nil
}

// UpdateCorrespondence 整体替换可编辑字段并追加新附件。
// 文号、创建人与创建时间保持不变；并发编辑以最后一次写入为准。
func (s *Store) UpdateCorrespondence(ctx context.Context, c *domain.Correspondence, newAttachments []domain.Attachment, activity *domain.ActivityLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Correspondence
		if err := tx.Select("id").First(&existing, c.ID).Error; err != nil {
			return notFound(err, storage.ErrCorrespondenceNotFound)
		}

		err := tx.Model(c).
			Select("*").
			Omit(clause.Associations, "id", "reference_number", "created_by", "created_at").
			Updates(c).Error
		if err != nil {
			return err
		}

		for i := range newAttachments {
			newAttachments[i].CorrespondenceID = c.ID
		}
		if len(newAttachments) > 0 {
			if err := tx.Create(&newAttachments).Error; err != nil {
				return err
			}
		}

		return appendActivity(tx, activity, c.ID)
	})
}

// DeleteCorrespondence 删除公文及其全部附件记录
func (s *Store) DeleteCorrespondence(ctx context.Context, id uint, activity *domain.ActivityLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("correspondence_id = ?", id).Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&domain.Correspondence{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrCorrespondenceNotFound
		}

		return appendActivity(tx, activity, id)
	})
}

// ListCorrespondences 分页查询公文，各过滤条件为 AND 关系
func (s *Store) ListCorrespondences(ctx context.Context, filter domain.CorrespondenceFilter) (domain.Page[domain.Correspondence], error) {
	filter.Normalize()

	query := s.db.WithContext(ctx).Model(&domain.Correspondence{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DepartmentID != nil {
		query = query.Where("department_id = ?", *filter.DepartmentID)
	}
	if filter.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		query = query.Where(
			`(LOWER(subject) LIKE ? ESCAPE '!' OR LOWER(reference_number) LIKE ? ESCAPE '!' OR LOWER(content) LIKE ? ESCAPE '!')`,
			pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return domain.Page[domain.Correspondence]{}, err
	}

	var items []domain.Correspondence
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&items).Error
	if err != nil {
		return domain.Page[domain.Correspondence]{}, err
	}

	return domain.NewPage(items, total, filter.Page, filter.PageSize), nil
}

// RecentCorrespondences 最近创建的公文
func (s *Store) RecentCorrespondences(ctx context.Context, limit int) ([]domain.Correspondence, error) {
	var items []domain.Correspondence
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// ReferenceExists 文号是否已被使用
func (s *Store) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.Correspondence{}).
		Where("reference_number = ?", reference).
		Count(&count).Error
	return count > 0, err
}

// Stats 首页统计
func (s *Store) Stats(ctx context.Context, now time.Time) (*domain.Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &domain.Stats{}

	counts := []struct {
		target *int64
		model  interface{}
		where  string
		args   []interface{}
	}{
		{&stats.TotalIncoming, &domain.Correspondence{}, "type = ?", []interface{}{domain.DirectionIncoming}},
		{&stats.TotalOutgoing, &domain.Correspondence{}, "type = ?", []interface{}{domain.DirectionOutgoing}},
		{&stats.TotalAttachments, &domain.Attachment{}, "", nil},
		{&stats.Pending, &domain.Correspondence{}, "status = ?", []interface{}{domain.StatusPending}},
		{&stats.Overdue, &domain.Correspondence{}, "status = ? AND due_date IS NOT NULL AND due_date < ?",
			[]interface{}{domain.StatusPending, startOfDay(now)}},
	}

	for _, c := range counts {
		query := db.Model(c.model)
		if c.where != "" {
			query = query.Where(c.where, c.args...)
		}
		if err := query.Count(c.target).Error; err != nil {
			return nil, err
		}
	}

	stats.TotalCorrespondence = stats.TotalIncoming + stats.TotalOutgoing
	return stats, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ========== Attachment Repository ==========

// GetAttachment 根据 ID 获取附件记录
func (s *Store) GetAttachment(ctx context.Context, id uint) (*domain.Attachment, error) {
	var att domain.Attachment
	if err := s.db.WithContext(ctx).First(&att, id).Error; err != nil {
		return nil, notFound(err, storage.ErrAttachmentNotFound)
	}
	return &att, nil
}

// DeleteAttachment 删除单个附件记录，并刷新所属公文的更新时间
func (s *Store) DeleteAttachment(ctx context.Context, id uint, activity *domain.ActivityLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var att domain.Attachment
		if err := tx.First(&att, id).Error; err != nil {
			return notFound(err, storage.ErrAttachmentNotFound)
		}
		if err := tx.Delete(&att).Error; err != nil {
			return err
		}
		err := tx.Model(&domain.Correspondence{ID: att.CorrespondenceID}).
			Update("updated_at", tx.NowFunc()).Error
		if err != nil {
			return err
		}
		return appendActivity(tx, activity, att.ID)
	})
}

// ListStoredNames 返回所有附件的磁盘文件名
func (s *Store) ListStoredNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&domain.Attachment{}).Pluck("stored_name", &names).Error
	return names, err
}

// 以 ! 作转义符，MySQL 字面量中的反斜杠另有含义
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// escapeLike 转义 LIKE 通配符，使搜索词按字面匹配
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
