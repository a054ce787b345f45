package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrFileExists   = errors.New("file already exists")
	ErrInvalidName  = errors.New("invalid stored file name")
	ErrFileTooLarge = errors.New("file exceeds size limit")
)

// tempPrefix 上传过程中临时文件的前缀，List 会跳过这类文件
const tempPrefix = ".upload-"

// Store 附件文件存储：所有文件平铺在同一目录下，文件名由调用方生成
type Store struct {
	basePath      string
	platformUtils *PlatformUtils
}

// FileInfo 磁盘上的附件文件
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// NewStore 创建文件系统存储实例
func NewStore(basePath string) (*Store, error) {
	platformUtils := NewPlatformUtils()

	if err := platformUtils.ValidatePath(basePath); err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}

	normalizedPath := platformUtils.NormalizePath(basePath)
	if err := os.MkdirAll(normalizedPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return &Store{
		basePath:      normalizedPath,
		platformUtils: platformUtils,
	}, nil
}

// BasePath 存储根目录
func (s *Store) BasePath() string {
	return s.basePath
}

// SanitizeFilename 清理原始文件名
func (s *Store) SanitizeFilename(filename string) string {
	return s.platformUtils.SanitizeFilename(filename)
}

// Save 写入新文件并返回字节数。
// 先写临时文件再链接到目标名，目标已存在时返回 ErrFileExists；maxSize <= 0 表示不限制。
func (s *Store) Save(storedName string, r io.Reader, maxSize int64) (int64, error) {
	if err := s.platformUtils.ValidateName(storedName); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.basePath, tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}

	written, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if maxSize > 0 && written > maxSize {
		return 0, ErrFileTooLarge
	}

	// Link 在目标存在时失败，不会覆盖已有附件
	if err := os.Link(tmpName, s.path(storedName)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, ErrFileExists
		}
		return 0, fmt.Errorf("failed to store file: %w", err)
	}

	return written, nil
}

// Open 打开附件文件，调用方负责关闭
func (s *Store) Open(storedName string) (*os.File, os.FileInfo, error) {
	if err := s.platformUtils.ValidateName(storedName); err != nil {
		return nil, nil, err
	}

	f, err := os.Open(s.path(storedName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrFileNotFound
	}

	return f, info, nil
}

// Exists 文件是否存在
func (s *Store) Exists(storedName string) bool {
	if s.platformUtils.ValidateName(storedName) != nil {
		return false
	}
	info, err := os.Stat(s.path(storedName))
	return err == nil && !info.IsDir()
}

// Remove 删除附件文件，文件不存在不视为错误
func (s *Store) Remove(storedName string) error {
	if err := s.platformUtils.ValidateName(storedName); err != nil {
		return err
	}
	if err := os.Remove(s.path(storedName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// List 列出目录中的附件文件，跳过子目录与未完成的临时文件
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // 遍历期间被删除
		}
		files = append(files, FileInfo{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}

// CheckWritable 检查目录可写，用于就绪探针
func (s *Store) CheckWritable() error {
	f, err := os.CreateTemp(s.basePath, tempPrefix+"probe-*")
	if err != nil {
		return fmt.Errorf("upload directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// GetStorageStats 获取存储统计信息
func (s *Store) GetStorageStats() (map[string]interface{}, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.Size
	}

	return map[string]interface{}{
		"total_size_bytes": totalSize,
		"total_size_mb":    float64(totalSize) / 1024 / 1024,
		"file_count":       len(files),
		"base_path":        s.basePath,
	}, nil
}

func (s *Store) path(storedName string) string {
	return filepath.Join(s.basePath, storedName)
}
