package domain

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityAction 操作类型
type ActivityAction string

const (
	ActionCreate           ActivityAction = "create"
	ActionUpdate           ActivityAction = "update"
	ActionDelete           ActivityAction = "delete"
	ActionUpload           ActivityAction = "upload"
	ActionDeleteAttachment ActivityAction = "delete_attachment"
	ActionLogin            ActivityAction = "login"
	ActionLogout           ActivityAction = "logout"
)

// 实体类型
const (
	EntityCorrespondence = "correspondence"
	EntityAttachment     = "attachment"
	EntityContact        = "contact"
	EntityDepartment     = "department"
	EntityUser           = "user"
	EntitySetting        = "setting"
)

// ActivityLog 只追加的操作日志
type ActivityLog struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	UserID      uint           `json:"userId" gorm:"index;not null"`
	Action      ActivityAction `json:"action" gorm:"type:varchar(100);not null"`
	EntityType  string         `json:"entityType" gorm:"type:varchar(50);not null;index:idx_activity_entity"`
	EntityID    uint           `json:"entityId" gorm:"not null;index:idx_activity_entity"`
	Description string         `json:"description" gorm:"type:text"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp" gorm:"autoCreateTime;index"`
}

// ActivityFilter 操作日志查询条件
type ActivityFilter struct {
	EntityType string
	EntityID   uint
	UserID     uint
	Page       int
	PageSize   int
}

// Normalize 修正页码与页大小
func (f *ActivityFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > MaxPageSize {
		f.PageSize = DefaultPageSize
	}
}
