package httptransport

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/service"
)

// AttachmentField 上传表单中文件字段的名称
const AttachmentField = "attachments"

// ParseID 解析路径中的 ID 参数
func ParseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ParseOptionalID 解析可选 ID，空值或 0 返回 nil
func ParseOptionalID(value string) (*uint, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, nil
	}
	v := uint(id)
	return &v, nil
}

// ParseCorrespondenceFilter 解析列表查询参数：type、status、department、q、page、page_size。
// 无法识别的类型、状态与部门按未筛选处理。
func ParseCorrespondenceFilter(c *gin.Context, defaultPageSize int) domain.CorrespondenceFilter {
	filter := domain.CorrespondenceFilter{
		Search:   c.Query("q"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", defaultPageSize),
	}

	switch t := domain.Direction(c.Query("type")); t {
	case domain.DirectionIncoming, domain.DirectionOutgoing:
		filter.Type = t
	}
	switch s := domain.Status(c.Query("status")); s {
	case domain.StatusPending, domain.StatusProcessed, domain.StatusArchived:
		filter.Status = s
	}
	if dept, err := ParseOptionalID(c.Query("department")); err == nil {
		filter.DepartmentID = dept
	}

	filter.Normalize()
	return filter
}

func queryInt(c *gin.Context, key string, fallback int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return value
}

// MultipartUploads 取出请求中的上传文件，非 multipart 请求返回空
func MultipartUploads(c *gin.Context, field string) ([]service.Upload, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}

	files := form.File[field]
	uploads := make([]service.Upload, 0, len(files))
	for _, fh := range files {
		uploads = append(uploads, service.UploadFromFileHeader(fh))
	}
	return uploads, nil
}
