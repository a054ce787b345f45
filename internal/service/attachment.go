package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"time"

	"go.uber.org/zap"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/monitoring"
	"ecs/backend/internal/security"
	"ecs/backend/internal/storage"
	"ecs/backend/internal/storage/filesystem"
)

// ErrAttachmentFileMissing 附件记录存在但磁盘文件已丢失
var ErrAttachmentFileMissing = errors.New("attachment file missing on disk")

// Upload 待保存的上传文件，Open 可多次调用
type Upload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// UploadFromFileHeader 将表单文件转换为 Upload
func UploadFromFileHeader(fh *multipart.FileHeader) Upload {
	return Upload{
		Filename: fh.Filename,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// UploadFromBytes 内存中的文件，主要用于 CLI 与测试
func UploadFromBytes(filename string, data []byte) Upload {
	return Upload{
		Filename: filename,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// UploadError 指明被拒绝的文件
type UploadError struct {
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// AttachmentService 附件上传、下载与删除
type AttachmentService struct {
	repo            storage.AttachmentRepository
	correspondences storage.CorrespondenceRepository
	departments     storage.DepartmentRepository
	files           *filesystem.Store
	policy          *security.UploadPolicy
	publisher       Publisher
	metrics         *monitoring.Metrics
	log             *zap.Logger
	now             func() time.Time
}

// NewAttachmentService 创建附件服务
func NewAttachmentService(store storage.Store, files *filesystem.Store, policy *security.UploadPolicy, publisher Publisher, metrics *monitoring.Metrics, log *zap.Logger) *AttachmentService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AttachmentService{
		repo:            store,
		correspondences: store,
		departments:     store,
		files:           files,
		policy:          policy,
		publisher:       publisher,
		metrics:         metrics,
		log:             log,
		now:             time.Now,
	}
}

// Policy 当前上传策略
func (s *AttachmentService) Policy() *security.UploadPolicy {
	return s.policy
}

// Check 在写盘前检查全部文件，任何一个不合格都整体拒绝
func (s *AttachmentService) Check(uploads []Upload) error {
	for _, u := range uploads {
		if err := s.policy.Check(u.Filename, u.Size); err != nil {
			return &UploadError{Filename: u.Filename, Err: err}
		}

		header, err := readHeader(u)
		if err != nil {
			return &UploadError{Filename: u.Filename, Err: err}
		}
		if err := s.policy.Inspect(header); err != nil {
			return &UploadError{Filename: u.Filename, Err: err}
		}
	}
	return nil
}

// Write 将已通过检查的文件写入磁盘，返回待入库的附件记录。
// 中途失败时删除本次已写入的文件。
func (s *AttachmentService) Write(uploads []Upload, uploadedBy uint) ([]domain.Attachment, error) {
	attachments := make([]domain.Attachment, 0, len(uploads))
	for _, u := range uploads {
		att, err := s.writeOne(u, uploadedBy)
		if err != nil {
			s.Discard(attachments)
			return nil, &UploadError{Filename: u.Filename, Err: err}
		}
		attachments = append(attachments, *att)
	}
	return attachments, nil
}

func (s *AttachmentService) writeOne(u Upload, uploadedBy uint) (*domain.Attachment, error) {
	rc, err := u.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer rc.Close()

	header := make([]byte, security.SniffLength)
	n, err := io.ReadFull(rc, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	header = header[:n]

	storedName := security.StoredName(u.Filename)
	size, err := s.files.Save(storedName, io.MultiReader(bytes.NewReader(header), rc), s.policy.MaxFileSize())
	if err != nil {
		if errors.Is(err, filesystem.ErrFileTooLarge) {
			return nil, security.ErrFileTooLarge
		}
		return nil, err
	}

	mimeType := security.DetectMimeType(u.Filename, header)
	s.metrics.RecordAttachment(mimeType, size)

	return &domain.Attachment{
		Filename:   s.files.SanitizeFilename(u.Filename),
		StoredName: storedName,
		FileSize:   size,
		MimeType:   mimeType,
		UploadedBy: uploadedBy,
		UploadedAt: s.now().UTC(),
	}, nil
}

// Discard 尽力删除已写入磁盘的文件
func (s *AttachmentService) Discard(attachments []domain.Attachment) {
	for _, att := range attachments {
		if err := s.files.Remove(att.StoredName); err != nil {
			s.log.Warn("failed to remove attachment file",
				zap.String("stored_name", att.StoredName),
				zap.Error(err))
		}
	}
}

// Get 获取附件记录
func (s *AttachmentService) Get(ctx context.Context, id uint) (*domain.Attachment, error) {
	return s.repo.GetAttachment(ctx, id)
}

// Open 打开附件文件供下载或预览，调用方负责关闭文件
func (s *AttachmentService) Open(ctx context.Context, id uint) (*domain.Attachment, *os.File, os.FileInfo, error) {
	att, err := s.repo.GetAttachment(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}

	f, info, err := s.files.Open(att.StoredName)
	if err != nil {
		if errors.Is(err, filesystem.ErrFileNotFound) || errors.Is(err, filesystem.ErrInvalidName) {
			s.log.Warn("attachment file missing",
				zap.Uint("attachment_id", att.ID),
				zap.String("stored_name", att.StoredName))
			return nil, nil, nil, ErrAttachmentFileMissing
		}
		return nil, nil, nil, err
	}
	return att, f, info, nil
}

// Delete 删除单个附件：先删磁盘文件，再删记录，然后通知所属公文已更新
func (s *AttachmentService) Delete(ctx context.Context, actorID, id uint) (*domain.Attachment, error) {
	att, err := s.repo.GetAttachment(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.files.Remove(att.StoredName); err != nil {
		return nil, fmt.Errorf("failed to remove attachment file: %w", err)
	}

	activity := &domain.ActivityLog{
		UserID:      actorID,
		Action:      domain.ActionDeleteAttachment,
		EntityType:  domain.EntityAttachment,
		EntityID:    att.ID,
		Description: "Deleted attachment: " + att.Filename,
	}
	if err := s.repo.DeleteAttachment(ctx, id, activity); err != nil {
		return nil, err
	}

	s.log.Info("attachment deleted",
		zap.Uint("attachment_id", att.ID),
		zap.Uint("correspondence_id", att.CorrespondenceID),
		zap.Uint("user_id", actorID))

	if c, err := s.correspondences.GetCorrespondence(ctx, att.CorrespondenceID); err == nil {
		s.publisher.Publish(domain.NewCorrespondenceEvent(
			domain.EventCorrespondenceUpdated, c, departmentName(ctx, s.departments, c.DepartmentID), s.now()))
	}

	return att, nil
}

// readHeader 读取文件头部用于内容检查
func readHeader(u Upload) ([]byte, error) {
	if u.Open == nil {
		return nil, errors.New("upload has no content")
	}
	rc, err := u.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer rc.Close()

	header := make([]byte, security.SniffLength)
	n, err := io.ReadFull(rc, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return header[:n], nil
}

// departmentName 查询部门名称，查不到返回空串
func departmentName(ctx context.Context, repo storage.DepartmentRepository, id *uint) string {
	if id == nil || repo == nil {
		return ""
	}
	d, err := repo.GetDepartment(ctx, *id)
	if err != nil {
		return ""
	}
	return d.Name
}
