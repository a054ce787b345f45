package storage

import (
	"context"
	"errors"
	"time"

	"ecs/backend/internal/domain"
)

var (
	// ErrCorrespondenceNotFound 公文不存在
	ErrCorrespondenceNotFound = errors.New("correspondence not found")
	// ErrAttachmentNotFound 附件未找到错误
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrDepartmentNotFound 部门不存在
	ErrDepartmentNotFound = errors.New("department not found")
	// ErrContactNotFound 联系人不存在
	ErrContactNotFound = errors.New("contact not found")
	// ErrSettingNotFound 配置项不存在
	ErrSettingNotFound = errors.New("setting not found")
	// ErrDuplicateReference 文号冲突
	ErrDuplicateReference = errors.New("reference number already exists")
	// ErrUserExists 用户名或邮箱已被使用
	ErrUserExists = errors.New("username or email already exists")
	// ErrDuplicate 其他唯一约束冲突
	ErrDuplicate = errors.New("duplicate key")
	// ErrSessionNotFound 会话不存在或已过期
	ErrSessionNotFound = errors.New("session not found")
)

// CorrespondenceRepository 定义公文数据存取操作。
// 写操作与对应的操作日志在同一事务内提交。
type CorrespondenceRepository interface {
	CreateCorrespondence(ctx context.Context, c *domain.Correspondence, activity *domain.ActivityLog) error
	GetCorrespondence(ctx context.Context, id uint) (*domain.Correspondence, error)
	UpdateCorrespondence(ctx context.Context, c *domain.Correspondence, newAttachments []domain.Attachment, activity *domain.ActivityLog) error
	DeleteCorrespondence(ctx context.Context, id uint, activity *domain.ActivityLog) error
	ListCorrespondences(ctx context.Context, filter domain.CorrespondenceFilter) (domain.Page[domain.Correspondence], error)
	RecentCorrespondences(ctx context.Context, limit int) ([]domain.Correspondence, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	Stats(ctx context.Context, now time.Time) (*domain.Stats, error)
}

// AttachmentRepository 定义附件记录存取操作。
type AttachmentRepository interface {
	GetAttachment(ctx context.Context, id uint) (*domain.Attachment, error)
	DeleteAttachment(ctx context.Context, id uint, activity *domain.ActivityLog) error
	ListStoredNames(ctx context.Context) ([]string, error)
}

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id uint) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

// DepartmentRepository 定义部门数据存取操作。
type DepartmentRepository interface {
	CreateDepartment(ctx context.Context, d *domain.Department) error
	GetDepartment(ctx context.Context, id uint) (*domain.Department, error)
	UpdateDepartment(ctx context.Context, d *domain.Department) error
	DeleteDepartment(ctx context.Context, id uint) error
	ListDepartments(ctx context.Context) ([]domain.Department, error)
	DepartmentInUse(ctx context.Context, id uint) (bool, error)
}

// ContactRepository 定义通讯录数据存取操作。
type ContactRepository interface {
	CreateContact(ctx context.Context, c *domain.Contact) error
	GetContact(ctx context.Context, id uint) (*domain.Contact, error)
	GetContacts(ctx context.Context, ids []uint) (map[uint]domain.Contact, error)
	UpdateContact(ctx context.Context, c *domain.Contact) error
	DeleteContact(ctx context.Context, id uint) error
	ListContacts(ctx context.Context, search string, page, pageSize int) (domain.Page[domain.Contact], error)
	ContactInUse(ctx context.Context, id uint) (bool, error)
}

// ActivityRepository 操作日志只追加，不提供修改与删除。
type ActivityRepository interface {
	AppendActivity(ctx context.Context, log *domain.ActivityLog) error
	ListActivity(ctx context.Context, filter domain.ActivityFilter) (domain.Page[domain.ActivityLog], error)
}

// SettingRepository 定义系统配置存取操作。
type SettingRepository interface {
	GetSetting(ctx context.Context, key string) (*domain.SystemSetting, error)
	ListSettings(ctx context.Context) ([]domain.SystemSetting, error)
	UpsertSetting(ctx context.Context, setting *domain.SystemSetting) error
	SeedSettings(ctx context.Context, defaults []domain.SystemSetting) error
}

// Store 聚合所有存储接口，便于在服务层统一依赖注入。
type Store interface {
	CorrespondenceRepository
	AttachmentRepository
	UserRepository
	DepartmentRepository
	ContactRepository
	ActivityRepository
	SettingRepository

	Health(ctx context.Context) error
	Close() error
}

// SessionStore 服务端会话存储（Redis 或进程内存）
type SessionStore interface {
	SaveSession(ctx context.Context, session *domain.Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	// TouchSession 滑动续期
	TouchSession(ctx context.Context, id string, ttl time.Duration) error
	DeleteSession(ctx context.Context, id string) error
}
