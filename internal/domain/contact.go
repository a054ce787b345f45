package domain

import "time"

// Contact 通讯录条目，作为规范化的发文人/收文人
type Contact struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"type:varchar(150);not null;index"`
	Organization string    `json:"organization" gorm:"type:varchar(200)"`
	Position     string    `json:"position" gorm:"type:varchar(100)"`
	Email        string    `json:"email" gorm:"type:varchar(120)"`
	Phone        string    `json:"phone" gorm:"type:varchar(20)"`
	Address      string    `json:"address" gorm:"type:text"`
	Notes        string    `json:"notes" gorm:"type:text"`
	CreatedBy    uint      `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Label 联系人显示名称，带单位
func (c *Contact) Label() string {
	if c.Organization == "" {
		return c.Name
	}
	return c.Name + " (" + c.Organization + ")"
}
