package filesystem

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxFilenameLength 原始文件名保留的最大字节数
const maxFilenameLength = 200

// PlatformUtils 平台兼容性工具
type PlatformUtils struct{}

// NewPlatformUtils 创建平台工具实例
func NewPlatformUtils() *PlatformUtils {
	return &PlatformUtils{}
}

// SanitizeFilename 清理用户上传的原始文件名，仅用于展示与下载提示
func (p *PlatformUtils) SanitizeFilename(filename string) string {
	// Windows 客户端可能带反斜杠路径
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)

	for _, char := range p.getInvalidChars() {
		filename = strings.ReplaceAll(filename, char, "_")
	}
	filename = removeControlChars(filename)
	filename = strings.Trim(filename, " .")
	filename = limitLength(filename, maxFilenameLength)

	if filename == "" {
		return "unnamed"
	}
	return filename
}

// getInvalidChars 获取当前平台不允许的字符
func (p *PlatformUtils) getInvalidChars() []string {
	switch runtime.GOOS {
	case "darwin", "linux":
		return []string{"/", "\x00"}
	default:
		return []string{"<", ">", ":", "\"", "|", "?", "*", "\\", "/", "\x00"}
	}
}

// removeControlChars 移除控制字符（包括换行，防止响应头注入）
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// limitLength 截断过长的文件名，保留扩展名
func limitLength(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	ext := filepath.Ext(s)
	if len(ext) >= maxLen {
		return s[:maxLen]
	}
	name := strings.TrimSuffix(s, ext)
	name = name[:maxLen-len(ext)]
	// 避免截断在多字节字符中间
	for len(name) > 0 && !utf8.ValidString(name) {
		name = name[:len(name)-1]
	}
	return name + ext
}

// ValidatePath 验证存储根目录是否安全
func (p *PlatformUtils) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	if len(path) > 2000 {
		return fmt.Errorf("path too long: %d characters", len(path))
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("path traversal detected: %s", path)
		}
	}
	return nil
}

// ValidateName 校验磁盘文件名：只能是单级文件名
func (p *PlatformUtils) ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return ErrInvalidName
	case name == "." || name == "..":
		return ErrInvalidName
	case strings.ContainsAny(name, "/\\\x00"):
		return ErrInvalidName
	case strings.HasPrefix(name, tempPrefix):
		return ErrInvalidName
	case len(name) > maxFilenameLength:
		return ErrInvalidName
	}
	return nil
}

// NormalizePath 转换为清理后的绝对路径
func (p *PlatformUtils) NormalizePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(absPath)
}
