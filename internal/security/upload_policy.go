package security

import (
	"bytes"
	"encoding/binary"
	"errors"
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"ecs/backend/internal/config"
)

var (
	ErrEmptyFilename       = errors.New("empty filename")
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	ErrFileTooLarge        = errors.New("file too large")
	ErrExecutableContent   = errors.New("executable content not allowed")
)

// SniffLength 识别 MIME 类型与可执行文件所需的头部字节数
const SniffLength = 512

// DefaultMimeType 无法识别时使用的 MIME 类型
const DefaultMimeType = "application/octet-stream"

// UploadPolicy 附件上传策略
type UploadPolicy struct {
	// 允许的扩展名（小写，不含点）
	allowedExtensions map[string]bool

	// 是否启用白名单
	enforce bool

	// 单个文件上限（字节），0 表示不限制
	maxFileSize int64
}

// NewUploadPolicy 根据配置创建上传策略
func NewUploadPolicy(cfg config.UploadConfig) *UploadPolicy {
	exts := cfg.AllowedExtensions
	if len(exts) == 0 {
		exts = config.DefaultAllowedExtensions
	}

	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			allowed[ext] = true
		}
	}

	return &UploadPolicy{
		allowedExtensions: allowed,
		enforce:           cfg.EnforceAllowList,
		maxFileSize:       cfg.MaxFileSize,
	}
}

// Enforced 是否启用扩展名白名单
func (p *UploadPolicy) Enforced() bool {
	return p.enforce
}

// AllowedExtensions 排序后的白名单，用于表单提示
func (p *UploadPolicy) AllowedExtensions() []string {
	exts := make([]string, 0, len(p.allowedExtensions))
	for ext := range p.allowedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// MaxFileSize 单个文件上限
func (p *UploadPolicy) MaxFileSize() int64 {
	return p.maxFileSize
}

// Check 在写盘前检查文件名与大小；size < 0 表示大小未知
func (p *UploadPolicy) Check(filename string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return ErrEmptyFilename
	}

	if p.enforce && !p.allowedExtensions[Extension(filename)] {
		return ErrExtensionNotAllowed
	}

	if p.maxFileSize > 0 && size > p.maxFileSize {
		return ErrFileTooLarge
	}

	return nil
}

// Inspect 检查文件头部，启用白名单时拒绝可执行文件
func (p *UploadPolicy) Inspect(header []byte) error {
	if !p.enforce {
		return nil
	}
	if isExecutable(header) {
		return ErrExecutableContent
	}
	return nil
}

// isExecutable 检查可执行文件魔数
func isExecutable(header []byte) bool {
	if isPortableExecutable(header) {
		return true
	}

	executableSignatures := [][]byte{
		{0x7F, 0x45, 0x4C, 0x46}, // ELF executable
		{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O executable
		{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O executable (reverse)
		{0xFE, 0xED, 0xFA, 0xCF}, // Mach-O 64-bit
		{0xCF, 0xFA, 0xED, 0xFE}, // Mach-O 64-bit (reverse)
	}

	for _, sig := range executableSignatures {
		if bytes.HasPrefix(header, sig) {
			return true
		}
	}
	return false
}

// dosStub 链接器写入 PE 文件 DOS 头之后的提示语
var dosStub = []byte("This program cannot be run in DOS mode")

// isPortableExecutable 识别 Windows PE 文件：除 "MZ" 前缀外，
// 还需 e_lfanew 指向 "PE\0\0" 或头部带有 DOS 提示语
func isPortableExecutable(header []byte) bool {
	if !bytes.HasPrefix(header, []byte("MZ")) {
		return false
	}
	if !mimetype.Detect(header).Is("application/vnd.microsoft.portable-executable") {
		return false
	}

	if len(header) >= 0x40 {
		offset := int(binary.LittleEndian.Uint32(header[0x3C:0x40]))
		if offset >= 0x40 && offset+4 <= len(header) && bytes.Equal(header[offset:offset+4], []byte("PE\x00\x00")) {
			return true
		}
	}
	return bytes.Contains(header, dosStub)
}

// StoredName 生成磁盘文件名：随机 UUID 加小写扩展名，与原始文件名无关
func StoredName(filename string) string {
	name := uuid.NewString()
	if ext := Extension(filename); ext != "" {
		name += "." + ext
	}
	return name
}

// Extension 返回小写扩展名（不含点），只保留字母数字
func Extension(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// DetectMimeType 优先按扩展名判断，其次嗅探内容，最后回退为 application/octet-stream
func DetectMimeType(filename string, header []byte) string {
	if ext := Extension(filename); ext != "" {
		if byExt := mime.TypeByExtension("." + ext); byExt != "" {
			return stripParams(byExt)
		}
	}

	if len(header) > 0 {
		if detected := mimetype.Detect(header); detected != nil {
			return stripParams(detected.String())
		}
	}

	return DefaultMimeType
}

func stripParams(mimeType string) string {
	mediaType, _, _ := strings.Cut(mimeType, ";")
	return strings.TrimSpace(mediaType)
}
