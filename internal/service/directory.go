package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

var (
	// ErrContactInUse 联系人仍被公文引用
	ErrContactInUse = errors.New("contact is referenced by correspondence")
	// ErrDepartmentInUse 部门仍被用户或公文引用
	ErrDepartmentInUse = errors.New("department is referenced by users or correspondence")
	// ErrHeadNotFound 部门负责人不存在
	ErrHeadNotFound = errors.New("department head does not exist")
)

// ContactInput 联系人表单
type ContactInput struct {
	Name         string
	Organization string
	Position     string
	Email        string
	Phone        string
	Address      string
	Notes        string
}

func (in ContactInput) apply(c *domain.Contact) error {
	c.Name = strings.TrimSpace(in.Name)
	c.Organization = strings.TrimSpace(in.Organization)
	c.Position = strings.TrimSpace(in.Position)
	c.Email = strings.TrimSpace(in.Email)
	c.Phone = strings.TrimSpace(in.Phone)
	c.Address = strings.TrimSpace(in.Address)
	c.Notes = in.Notes
	return c.Validate()
}

// ContactService 通讯录管理
type ContactService struct {
	repo     storage.ContactRepository
	activity *ActivityService
	log      *zap.Logger
}

// NewContactService 创建通讯录服务
func NewContactService(repo storage.ContactRepository, activity *ActivityService, log *zap.Logger) *ContactService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactService{repo: repo, activity: activity, log: log}
}

// List 分页查询联系人
func (s *ContactService) List(ctx context.Context, search string, page, pageSize int) (domain.Page[domain.Contact], error) {
	return s.repo.ListContacts(ctx, search, page, pageSize)
}

// Get 获取联系人
func (s *ContactService) Get(ctx context.Context, id uint) (*domain.Contact, error) {
	return s.repo.GetContact(ctx, id)
}

// Lookup 按 ID 批量取联系人，用于列表显示往来方名称
func (s *ContactService) Lookup(ctx context.Context, ids []uint) (map[uint]domain.Contact, error) {
	if len(ids) == 0 {
		return map[uint]domain.Contact{}, nil
	}
	return s.repo.GetContacts(ctx, ids)
}

// Create 新建联系人
func (s *ContactService) Create(ctx context.Context, actorID uint, input ContactInput) (*domain.Contact, error) {
	c := &domain.Contact{CreatedBy: actorID}
	if err := input.apply(c); err != nil {
		return nil, err
	}
	if err := s.repo.CreateContact(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	s.activity.Record(ctx, actorID, domain.ActionCreate, domain.EntityContact, c.ID, "Created contact: "+c.Name)
	return c, nil
}

// Update 修改联系人
func (s *ContactService) Update(ctx context.Context, actorID, id uint, input ContactInput) (*domain.Contact, error) {
	c, err := s.repo.GetContact(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.apply(c); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateContact(ctx, c); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, actorID, domain.ActionUpdate, domain.EntityContact, c.ID, "Updated contact: "+c.Name)
	return c, nil
}

// Delete 删除联系人，仍被公文引用时拒绝
func (s *ContactService) Delete(ctx context.Context, actorID, id uint) error {
	c, err := s.repo.GetContact(ctx, id)
	if err != nil {
		return err
	}

	inUse, err := s.repo.ContactInUse(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check contact usage: %w", err)
	}
	if inUse {
		return ErrContactInUse
	}

	if err := s.repo.DeleteContact(ctx, id); err != nil {
		return err
	}
	s.activity.Record(ctx, actorID, domain.ActionDelete, domain.EntityContact, id, "Deleted contact: "+c.Name)
	return nil
}

// DepartmentInput 部门表单
type DepartmentInput struct {
	Name        string
	Description string
	HeadID      *uint
}

// DepartmentService 部门管理
type DepartmentService struct {
	repo     storage.DepartmentRepository
	users    storage.UserRepository
	activity *ActivityService
	log      *zap.Logger
}

// NewDepartmentService 创建部门服务
func NewDepartmentService(repo storage.DepartmentRepository, users storage.UserRepository, activity *ActivityService, log *zap.Logger) *DepartmentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DepartmentService{repo: repo, users: users, activity: activity, log: log}
}

// List 全部部门
func (s *DepartmentService) List(ctx context.Context) ([]domain.Department, error) {
	return s.repo.ListDepartments(ctx)
}

// Get 获取部门
func (s *DepartmentService) Get(ctx context.Context, id uint) (*domain.Department, error) {
	return s.repo.GetDepartment(ctx, id)
}

func (s *DepartmentService) apply(ctx context.Context, d *domain.Department, input DepartmentInput) error {
	d.Name = strings.TrimSpace(input.Name)
	d.Description = strings.TrimSpace(input.Description)
	d.HeadID = nonZero(input.HeadID)
	if err := d.Validate(); err != nil {
		return err
	}

	if d.HeadID != nil {
		if _, err := s.users.GetUserByID(ctx, *d.HeadID); err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				return ErrHeadNotFound
			}
			return err
		}
	}
	return nil
}

// Create 新建部门
func (s *DepartmentService) Create(ctx context.Context, actorID uint, input DepartmentInput) (*domain.Department, error) {
	d := &domain.Department{}
	if err := s.apply(ctx, d, input); err != nil {
		return nil, err
	}
	if err := s.repo.CreateDepartment(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create department: %w", err)
	}
	s.activity.Record(ctx, actorID, domain.ActionCreate, domain.EntityDepartment, d.ID, "Created department: "+d.Name)
	return d, nil
}

// Update 修改部门
func (s *DepartmentService) Update(ctx context.Context, actorID, id uint, input DepartmentInput) (*domain.Department, error) {
	d, err := s.repo.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, d, input); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateDepartment(ctx, d); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, actorID, domain.ActionUpdate, domain.EntityDepartment, d.ID, "Updated department: "+d.Name)
	return d, nil
}

// Delete 删除部门，仍被用户或公文引用时拒绝
func (s *DepartmentService) Delete(ctx context.Context, actorID, id uint) error {
	d, err := s.repo.GetDepartment(ctx, id)
	if err != nil {
		return err
	}

	inUse, err := s.repo.DepartmentInUse(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check department usage: %w", err)
	}
	if inUse {
		return ErrDepartmentInUse
	}

	if err := s.repo.DeleteDepartment(ctx, id); err != nil {
		return err
	}
	s.activity.Record(ctx, actorID, domain.ActionDelete, domain.EntityDepartment, id, "Deleted department: "+d.Name)
	return nil
}
