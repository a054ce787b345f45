package httptransport

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"ecs/backend/internal/domain"
)

// 下载方式
const (
	DispositionAttachment = "attachment"
	DispositionInline     = "inline"
)

// ServeAttachment 以原始文件名输出附件内容，支持 Range 与条件请求
func ServeAttachment(c *gin.Context, att *domain.Attachment, file *os.File, info os.FileInfo, disposition string) {
	defer file.Close()

	c.Header("Content-Disposition", ContentDisposition(disposition, att.Filename))
	c.Header("Content-Type", att.MimeType)
	c.Header("X-Content-Type-Options", "nosniff")
	if disposition == DispositionInline {
		c.Header("Content-Security-Policy", "sandbox")
	}

	http.ServeContent(c.Writer, c.Request, "", info.ModTime(), file)
}

// ContentDisposition 生成兼容旧浏览器的 Content-Disposition，filename* 使用 UTF-8 编码
func ContentDisposition(disposition, filename string) string {
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`,
		disposition, asciiFallback(filename), url.PathEscape(filename))
}

// asciiFallback 非 ASCII 与引号替换为下划线
func asciiFallback(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '"' || r == '\\' || r < 0x20 || r > 0x7e:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "download"
	}
	return b.String()
}
