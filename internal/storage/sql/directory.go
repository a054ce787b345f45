package sql

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

// ========== User Repository ==========

// CreateUser 创建用户，用户名与邮箱按不区分大小写判重
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUserConflict(tx, user.Username, user.Email, 0); err != nil {
			return err
		}
		return tx.Create(user).Error
	})
	if isDuplicate(err) {
		return storage.ErrUserExists
	}
	return err
}

// checkUserConflict 查找大小写不同但实际相同的用户名或邮箱，excludeID 为自身
func checkUserConflict(tx *gorm.DB, username string, email *string, excludeID uint) error {
	query := tx.Model(&domain.User{})
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if email != nil && *email != "" {
		query = query.Where("(LOWER(username) = ? OR LOWER(email) = ?)",
			strings.ToLower(username), strings.ToLower(*email))
	} else {
		query = query.Where("LOWER(username) = ?", strings.ToLower(username))
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return storage.ErrUserExists
	}
	return nil
}

// GetUserByID 根据 ID 获取用户
func (s *Store) GetUserByID(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, storage.ErrUserNotFound)
	}
	return &user, nil
}

// GetUserByUsername 根据用户名获取用户（不区分大小写）
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		First(&user).Error
	if err != nil {
		return nil, notFound(err, storage.ErrUserNotFound)
	}
	return &user, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		First(&user).Error
	if err != nil {
		return nil, notFound(err, storage.ErrUserNotFound)
	}
	return &user, nil
}

// UpdateUser 更新用户资料
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	db := s.db.WithContext(ctx)
	if err := exists(db, &domain.User{}, user.ID, storage.ErrUserNotFound); err != nil {
		return err
	}
	if err := checkUserConflict(db, user.Username, user.Email, user.ID); err != nil {
		return err
	}
	err := db.Model(user).
		Select("full_name", "email", "department_id", "is_active", "password_hash").
		Updates(user).Error
	if isDuplicate(err) {
		return storage.ErrUserExists
	}
	return err
}

// UpdateLastLogin 记录最近登录时间
func (s *Store) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&domain.User{ID: id}).Update("last_login_at", at).Error
}

// ListUsers 列出全部用户
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error
	return users, err
}

// CountUsers 用户总数
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.User{}).Count(&count).Error
	return count, err
}

// ========== Department Repository ==========

// CreateDepartment 创建部门
func (s *Store) CreateDepartment(ctx context.Context, d *domain.Department) error {
	return s.db.WithContext(ctx).Create(d).Error
}

// GetDepartment 根据 ID 获取部门
func (s *Store) GetDepartment(ctx context.Context, id uint) (*domain.Department, error) {
	var d domain.Department
	if err := s.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, notFound(err, storage.ErrDepartmentNotFound)
	}
	return &d, nil
}

// UpdateDepartment 更新部门
func (s *Store) UpdateDepartment(ctx context.Context, d *domain.Department) error {
	db := s.db.WithContext(ctx)
	if err := exists(db, &domain.Department{}, d.ID, storage.ErrDepartmentNotFound); err != nil {
		return err
	}
	return db.Model(d).Select("name", "description", "head_id", "updated_at").Updates(d).Error
}

// DeleteDepartment 删除部门
func (s *Store) DeleteDepartment(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&domain.Department{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrDepartmentNotFound
	}
	return nil
}

// ListDepartments 按名称列出部门
func (s *Store) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	var items []domain.Department
	err := s.db.WithContext(ctx).Order("name ASC").Find(&items).Error
	return items, err
}

// DepartmentInUse 是否仍有用户或公文归属该部门
func (s *Store) DepartmentInUse(ctx context.Context, id uint) (bool, error) {
	return anyRows(ctx,
		s.db.Model(&domain.User{}).Where("department_id = ?", id),
		s.db.Model(&domain.Correspondence{}).Where("department_id = ?", id),
	)
}

// ========== Contact Repository ==========

// CreateContact 创建联系人
func (s *Store) CreateContact(ctx context.Context, c *domain.Contact) error {
	return s.db.WithContext(ctx).Create(c).Error
}

// GetContact 根据 ID 获取联系人
func (s *Store) GetContact(ctx context.Context, id uint) (*domain.Contact, error) {
	var c domain.Contact
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, storage.ErrContactNotFound)
	}
	return &c, nil
}

// GetContacts 批量获取联系人，用于列表页展示往来方名称
func (s *Store) GetContacts(ctx context.Context, ids []uint) (map[uint]domain.Contact, error) {
	out := make(map[uint]domain.Contact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var items []domain.Contact
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, c := range items {
		out[c.ID] = c
	}
	return out, nil
}

// UpdateContact 更新联系人
func (s *Store) UpdateContact(ctx context.Context, c *domain.Contact) error {
	db := s.db.WithContext(ctx)
	if err := exists(db, &domain.Contact{}, c.ID, storage.ErrContactNotFound); err != nil {
		return err
	}
	return db.Model(c).
		Select("name", "organization", "position", "email", "phone", "address", "notes", "updated_at").
		Updates(c).Error
}

// DeleteContact 删除联系人
func (s *Store) DeleteContact(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&domain.Contact{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrContactNotFound
	}
	return nil
}

// ListContacts 分页查询联系人，search 匹配姓名与单位
func (s *Store) ListContacts(ctx context.Context, search string, page, pageSize int) (domain.Page[domain.Contact], error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > domain.MaxPageSize {
		pageSize = domain.DefaultPageSize
	}

	query := s.db.WithContext(ctx).Model(&domain.Contact{})
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(organization) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return domain.Page[domain.Contact]{}, err
	}

	var items []domain.Contact
	err := query.Order("name ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error
	if err != nil {
		return domain.Page[domain.Contact]{}, err
	}

	return domain.NewPage(items, total, page, pageSize), nil
}

// ContactInUse 是否有公文以该联系人为发文人或收文人
func (s *Store) ContactInUse(ctx context.Context, id uint) (bool, error) {
	return anyRows(ctx,
		s.db.Model(&domain.Correspondence{}).Where("sender_contact_id = ? OR recipient_contact_id = ?", id, id),
	)
}

// anyRows 依次检查查询是否命中记录
func anyRows(ctx context.Context, queries ...*gorm.DB) (bool, error) {
	for _, q := range queries {
		var count int64
		if err := q.WithContext(ctx).Count(&count).Error; err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// exists 主键不存在时返回 sentinel
func exists(db *gorm.DB, model interface{}, id uint, sentinel error) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return sentinel
	}
	return nil
}
