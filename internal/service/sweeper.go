package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ecs/backend/internal/monitoring"
	"ecs/backend/internal/storage"
	"ecs/backend/internal/storage/filesystem"
)

// OrphanSweeper 清理磁盘上没有附件记录引用的文件。
// 保存文件与事务提交之间崩溃会留下这类文件。
type OrphanSweeper struct {
	repo    storage.AttachmentRepository
	files   *filesystem.Store
	grace   time.Duration
	metrics *monitoring.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewOrphanSweeper 创建清理器，grace 内的新文件不会被删除
func NewOrphanSweeper(repo storage.AttachmentRepository, files *filesystem.Store, grace time.Duration, metrics *monitoring.Metrics, log *zap.Logger) *OrphanSweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrphanSweeper{
		repo:    repo,
		files:   files,
		grace:   grace,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// Sweep 执行一次清理，返回删除的文件数
func (s *OrphanSweeper) Sweep(ctx context.Context) (int, error) {
	names, err := s.repo.ListStoredNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stored names: %w", err)
	}
	referenced := make(map[string]struct{}, len(names))
	for _, name := range names {
		referenced[name] = struct{}{}
	}

	onDisk, err := s.files.List()
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.grace)
	removed := 0
	for _, f := range onDisk {
		if _, ok := referenced[f.Name]; ok {
			continue
		}
		if f.ModTime.After(cutoff) {
			continue
		}
		if err := s.files.Remove(f.Name); err != nil {
			s.log.Warn("failed to remove orphan file", zap.String("name", f.Name), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.Info("orphan files removed", zap.Int("count", removed))
	}
	s.metrics.RecordOrphansRemoved(removed)
	return removed, nil
}

// Run 按间隔循环清理，直到 ctx 取消
func (s *OrphanSweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Error("orphan sweep failed", zap.Error(err))
			}
		}
	}
}
