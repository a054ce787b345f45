package domain

import "time"

// SystemSetting 管理员可编辑的键值配置
type SystemSetting struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Key         string    `json:"key" gorm:"type:varchar(100);uniqueIndex;not null"`
	Value       string    `json:"value" gorm:"type:text"`
	Description string    `json:"description" gorm:"type:text"`
	UpdatedBy   uint      `json:"updatedBy"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// 内置配置项
const (
	SettingOrgName      = "org_name"       // 机构名称，显示在页眉与打印页
	SettingItemsPerPage = "items_per_page" // 列表每页条数
)

// DefaultSettings 首次启动时写入的配置
func DefaultSettings() []SystemSetting {
	return []SystemSetting{
		{Key: SettingOrgName, Value: "Correspondence Office", Description: "机构名称"},
		{Key: SettingItemsPerPage, Value: "20", Description: "列表每页条数"},
	}
}
