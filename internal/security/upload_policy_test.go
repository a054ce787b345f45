package security

import (
	"encoding/binary"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"ecs/backend/internal/config"
)

func TestUploadPolicyCheck(t *testing.T) {
	policy := NewUploadPolicy(config.UploadConfig{
		EnforceAllowList:  true,
		AllowedExtensions: []string{"pdf", ".DOCX", " png "},
		MaxFileSize:       1024,
	})

	tests := []struct {
		name     string
		filename string
		size     int64
		wantErr  error
	}{
		{"允许的扩展名", "letter.pdf", 10, nil},
		{"扩展名大小写不敏感", "Letter.PDF", 10, nil},
		{"配置中的点与空格被忽略", "memo.docx", 10, nil},
		{"白名单外的扩展名", "run.exe", 10, ErrExtensionNotAllowed},
		{"无扩展名", "README", 10, ErrExtensionNotAllowed},
		{"空文件名", "  ", 10, ErrEmptyFilename},
		{"超过大小上限", "scan.png", 2048, ErrFileTooLarge},
		{"大小未知", "scan.png", -1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check(tt.filename, tt.size)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, []string{"docx", "pdf", "png"}, policy.AllowedExtensions())
}

func TestUploadPolicyPermissive(t *testing.T) {
	policy := NewUploadPolicy(config.UploadConfig{EnforceAllowList: false})

	assert.NoError(t, policy.Check("tool.exe", 10))
	assert.NoError(t, policy.Inspect([]byte{0x4D, 0x5A, 0x90, 0x00}))
	assert.False(t, policy.Enforced())
	assert.Contains(t, policy.AllowedExtensions(), "pdf", "未配置时使用默认白名单")
}

func TestUploadPolicyInspect(t *testing.T) {
	policy := NewUploadPolicy(config.UploadConfig{EnforceAllowList: true})

	assert.ErrorIs(t, policy.Inspect(peHeader()), ErrExecutableContent)
	assert.ErrorIs(t, policy.Inspect(append([]byte("MZ\x90\x00"), dosStub...)), ErrExecutableContent)
	assert.ErrorIs(t, policy.Inspect([]byte{0x7F, 0x45, 0x4C, 0x46, 0x02}), ErrExecutableContent)
	assert.NoError(t, policy.Inspect([]byte("%PDF-1.7")))
	assert.NoError(t, policy.Inspect(nil))

	t.Run("以 MZ 开头的文本", func(t *testing.T) {
		assert.NoError(t, policy.Inspect([]byte("MZ,Mazowieckie,Warsaw\nPL,Poland,Warsaw\n")))
		assert.NoError(t, policy.Inspect([]byte("MZ")))
	})
}

// peHeader 最小的 PE 头：DOS 头的 e_lfanew 指向 "PE\0\0"
func peHeader() []byte {
	header := make([]byte, 0x84)
	copy(header, "MZ")
	binary.LittleEndian.PutUint32(header[0x3C:], 0x80)
	copy(header[0x80:], "PE\x00\x00")
	return header
}

func TestStoredName(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.pdf$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name := StoredName("../../Annual Report.PDF")
		assert.Regexp(t, pattern, name)
		assert.False(t, seen[name], "同名上传不应冲突")
		seen[name] = true
	}

	assert.Regexp(t, `^[0-9a-f-]{36}$`, StoredName("README"))
	assert.Regexp(t, `^[0-9a-f-]{36}$`, StoredName("weird.p/df"), "异常扩展名被丢弃")
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMimeType("letter.pdf", nil))
	assert.Equal(t, "image/png", DetectMimeType("SCAN.PNG", nil))

	pdfHeader := []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	assert.Equal(t, "application/pdf", DetectMimeType("upload.unknownext", pdfHeader))
	assert.Equal(t, "text/plain", DetectMimeType("notes", []byte("plain words only")))
	assert.Equal(t, DefaultMimeType, DetectMimeType("blob", nil))
}
