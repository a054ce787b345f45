package filesystem

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPlatformUtils 测试平台兼容性工具
func TestPlatformUtils(t *testing.T) {
	utils := NewPlatformUtils()

	t.Run("sanitize filename", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected string
		}{
			// 正常文件名
			{"document.pdf", "document.pdf"},
			{"annual report.docx", "annual report.docx"},
			{"تقرير.pdf", "تقرير.pdf"},

			// 路径分隔符
			{"../file.txt", "file.txt"},
			{"path/to/file.txt", "file.txt"},
			{`C:\Users\clerk\scan.png`, "scan.png"},

			// 控制字符
			{"file\x00name.txt", "file_name.txt"},
			{"file\r\nname.txt", "filename.txt"},

			// 空文件名
			{"", "unnamed"},
			{"   ", "unnamed"},
			{"...", "unnamed"},

			// 超长文件名
			{strings.Repeat("a", 300) + ".txt", strings.Repeat("a", 196) + ".txt"},
			{strings.Repeat("文", 100) + ".pdf", strings.Repeat("文", 65) + ".pdf"},
		}

		for _, tc := range testCases {
			result := utils.SanitizeFilename(tc.input)
			assert.Equal(t, tc.expected, result, "Input: %q", tc.input)
		}
	})

	t.Run("validate path", func(t *testing.T) {
		validPaths := []string{
			"uploads",
			"./data/uploads",
			"/var/lib/ecs/uploads",
			"data/..hidden",
		}
		for _, path := range validPaths {
			assert.NoError(t, utils.ValidatePath(path), "Path should be valid: %s", path)
		}

		invalidPaths := []string{
			"",
			"../../../etc/passwd",
			"data/../etc/passwd",
			"data/..",
			strings.Repeat("a", 3000),
		}
		for _, path := range invalidPaths {
			assert.Error(t, utils.ValidatePath(path), "Path should be invalid: %s", path)
		}
	})

	t.Run("validate stored name", func(t *testing.T) {
		assert.NoError(t, utils.ValidateName("0f8e2c1a-7d1b-4a8e-9c4f-1b2a3c4d5e6f.pdf"))
		assert.NoError(t, utils.ValidateName("0f8e2c1a7d1b4a8e"))

		for _, name := range []string{"", " ", ".", "..", "../x.pdf", "a/b.pdf", `a\b.pdf`, "x\x00.pdf", tempPrefix + "123"} {
			assert.ErrorIs(t, utils.ValidateName(name), ErrInvalidName, "Name should be invalid: %q", name)
		}
	})

	t.Run("normalize path", func(t *testing.T) {
		tempDir := t.TempDir()

		normalized := utils.NormalizePath("test/path")
		assert.True(t, filepath.IsAbs(normalized))

		absPath := filepath.Join(tempDir, "uploads", ".", "x", "..")
		assert.Equal(t, filepath.Join(tempDir, "uploads"), utils.NormalizePath(absPath))
	})
}
