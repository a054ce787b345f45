package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ecs/backend/internal/config"
	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

// CreateUserInput 创建用户输入
type CreateUserInput struct {
	Username     string
	Password     string
	FullName     string
	Email        string
	DepartmentID *uint
}

// CreateUser 创建用户（所有登录用户权限相同）
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	user := &domain.User{
		Username:     strings.TrimSpace(input.Username),
		FullName:     strings.TrimSpace(input.FullName),
		DepartmentID: input.DepartmentID,
		IsActive:     true,
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		user.Email = &email
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return nil, ErrUsernameExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("user created", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// GetUser 根据 ID 获取用户
func (s *Service) GetUser(ctx context.Context, id uint) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ListUsers 列出全部用户
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.ListUsers(ctx)
}

// SetActive 启用或禁用用户
func (s *Service) SetActive(ctx context.Context, id uint, active bool) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	user.IsActive = active
	return s.users.UpdateUser(ctx, user)
}

// ChangePassword 修改密码
func (s *Service) ChangePassword(ctx context.Context, id uint, oldPassword, newPassword string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}

	if !CheckPassword(oldPassword, user.PasswordHash) {
		return ErrInvalidOldPassword
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash
	return s.users.UpdateUser(ctx, user)
}

// EnsureAdmin 用户表为空时按配置创建初始账户，返回是否创建
func (s *Service) EnsureAdmin(ctx context.Context, cfg config.AdminConfig) (bool, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return false, nil
	}

	count, err := s.users.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	fullName := cfg.FullName
	if fullName == "" {
		fullName = "Administrator"
	}

	if _, err := s.CreateUser(ctx, CreateUserInput{
		Username: cfg.Username,
		Password: cfg.Password,
		FullName: fullName,
	}); err != nil {
		return false, err
	}
	return true, nil
}
