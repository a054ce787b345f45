package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ecs/backend/internal/cache"
	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

// 配置缓存参数
const (
	settingCacheSize = 256
	settingCacheTTL  = 5 * time.Minute
)

// ErrInvalidSetting 配置值不合法
var ErrInvalidSetting = errors.New("invalid setting value")

// SettingService 系统配置服务，读取走本地缓存，写入后失效
type SettingService struct {
	repo     storage.SettingRepository
	activity *ActivityService
	cache    *cache.LocalCache[domain.SystemSetting]
}

// NewSettingService 创建配置服务
func NewSettingService(repo storage.SettingRepository, activity *ActivityService) *SettingService {
	return &SettingService{
		repo:     repo,
		activity: activity,
		cache:    cache.NewLocalCache[domain.SystemSetting](settingCacheSize, settingCacheTTL),
	}
}

// Seed 写入缺失的默认配置
func (s *SettingService) Seed(ctx context.Context) error {
	if err := s.repo.SeedSettings(ctx, domain.DefaultSettings()); err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	s.cache.Clear()
	return nil
}

// List 全部配置项
func (s *SettingService) List(ctx context.Context) ([]domain.SystemSetting, error) {
	return s.repo.ListSettings(ctx)
}

// Get 获取配置项
func (s *SettingService) Get(ctx context.Context, key string) (*domain.SystemSetting, error) {
	if setting, ok := s.cache.Get(key); ok {
		return &setting, nil
	}

	setting, err := s.repo.GetSetting(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, *setting, 0)
	return setting, nil
}

// Value 读取配置值，不存在或出错时返回 fallback
func (s *SettingService) Value(ctx context.Context, key, fallback string) string {
	setting, err := s.Get(ctx, key)
	if err != nil || setting.Value == "" {
		return fallback
	}
	return setting.Value
}

// Int 读取整数配置
func (s *SettingService) Int(ctx context.Context, key string, fallback int) int {
	n, err := strconv.Atoi(s.Value(ctx, key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// OrgName 机构名称
func (s *SettingService) OrgName(ctx context.Context) string {
	return s.Value(ctx, domain.SettingOrgName, "Correspondence Office")
}

// ItemsPerPage 列表每页条数
func (s *SettingService) ItemsPerPage(ctx context.Context) int {
	n := s.Int(ctx, domain.SettingItemsPerPage, domain.DefaultPageSize)
	if n > domain.MaxPageSize {
		return domain.MaxPageSize
	}
	return n
}

// Set 写入配置项
func (s *SettingService) Set(ctx context.Context, actorID uint, key, value, description string) (*domain.SystemSetting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrSettingKeyEmpty
	}
	if err := validateSetting(key, value); err != nil {
		return nil, err
	}

	if description == "" {
		if existing, err := s.repo.GetSetting(ctx, key); err == nil {
			description = existing.Description
		} else if !errors.Is(err, storage.ErrSettingNotFound) {
			return nil, err
		}
	}

	setting := &domain.SystemSetting{
		Key:         key,
		Value:       value,
		Description: description,
		UpdatedBy:   actorID,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.repo.UpsertSetting(ctx, setting); err != nil {
		return nil, fmt.Errorf("failed to save setting: %w", err)
	}
	s.cache.Delete(key)

	s.activity.RecordWithMetadata(ctx, actorID, domain.ActionUpdate, domain.EntitySetting, setting.ID,
		"Updated setting: "+key, map[string]interface{}{"key": key, "value": value})
	return setting, nil
}

// Close 停止缓存
func (s *SettingService) Close() {
	s.cache.Close()
}

// validateSetting 内置配置项的取值检查
func validateSetting(key, value string) error {
	switch key {
	case domain.SettingItemsPerPage:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 || n > domain.MaxPageSize {
			return fmt.Errorf("%w: %s must be between 1 and %d", ErrInvalidSetting, key, domain.MaxPageSize)
		}
	case domain.SettingOrgName:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidSetting, key)
		}
	}
	return nil
}
