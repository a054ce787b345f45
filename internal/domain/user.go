package domain

import "time"

// User 表示系统登录用户
type User struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	Username     string     `json:"username" gorm:"type:varchar(80);uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255);not null"` // 不返回给前端
	FullName     string     `json:"fullName" gorm:"type:varchar(150);not null"`
	Email        *string    `json:"email,omitempty" gorm:"type:varchar(120);uniqueIndex"`
	DepartmentID *uint      `json:"departmentId,omitempty" gorm:"index"`
	IsActive     bool       `json:"isActive" gorm:"default:true"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// DisplayName 优先返回姓名
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Department 部门
type Department struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(150);not null"`
	Description string    `json:"description" gorm:"type:text"`
	HeadID      *uint     `json:"headId,omitempty"` // 部门负责人
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
