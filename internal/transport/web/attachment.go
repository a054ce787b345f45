package web

import (
	"github.com/gin-gonic/gin"

	"ecs/backend/internal/middleware"
	httptransport "ecs/backend/internal/transport/http"
)

// downloadAttachment 以附件形式下载
func (h *Handler) downloadAttachment(c *gin.Context) {
	h.serveAttachment(c, httptransport.DispositionAttachment)
}

// viewAttachment 在浏览器中打开
func (h *Handler) viewAttachment(c *gin.Context) {
	h.serveAttachment(c, httptransport.DispositionInline)
}

func (h *Handler) serveAttachment(c *gin.Context, disposition string) {
	id, ok := httptransport.ParseID(c, "id")
	if !ok {
		h.renderNotFound(c)
		return
	}

	att, file, info, err := h.deps.Attachments.Open(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	httptransport.ServeAttachment(c, att, file, info, disposition)
}

// deleteAttachment 删除附件后回到所属公文
func (h *Handler) deleteAttachment(c *gin.Context) {
	id, ok := httptransport.ParseID(c, "id")
	if !ok {
		h.renderNotFound(c)
		return
	}

	att, err := h.deps.Attachments.Delete(c.Request.Context(), middleware.CurrentUserID(c), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.redirect(c, viewURL(att.CorrespondenceID), FlashSuccess, "附件 "+att.Filename+" 已删除")
}
