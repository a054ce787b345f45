package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecs/backend/internal/middleware"
	"ecs/backend/internal/service"
)

// AttachmentHandler 附件 API
type AttachmentHandler struct {
	attachments *service.AttachmentService
	log         *zap.Logger
}

// NewAttachmentHandler 创建附件处理器
func NewAttachmentHandler(attachments *service.AttachmentService, log *zap.Logger) *AttachmentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AttachmentHandler{attachments: attachments, log: log}
}

// Get 附件元数据
// GET /api/v1/attachments/:id
func (h *AttachmentHandler) Get(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}

	att, err := h.attachments.Get(c.Request.Context(), id)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, att)
}

// Download 下载附件，?inline=1 时在浏览器中打开
// GET /api/v1/attachments/:id/download
func (h *AttachmentHandler) Download(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}

	att, file, info, err := h.attachments.Open(c.Request.Context(), id)
	if err != nil {
		Fail(c, h.log, err)
		return
	}

	disposition := DispositionAttachment
	if c.Query("inline") == "1" {
		disposition = DispositionInline
	}
	ServeAttachment(c, att, file, info, disposition)
}

// Delete 删除附件文件与记录
// DELETE /api/v1/attachments/:id
func (h *AttachmentHandler) Delete(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}

	att, err := h.attachments.Delete(c.Request.Context(), middleware.CurrentUserID(c), id)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "附件已删除", gin.H{"id": att.ID, "correspondenceId": att.CorrespondenceID})
}
