package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/middleware"
	"ecs/backend/internal/service"
)

// CorrespondenceHandler 公文 API
type CorrespondenceHandler struct {
	correspondence *service.CorrespondenceService
	log            *zap.Logger
}

// NewCorrespondenceHandler 创建公文处理器
func NewCorrespondenceHandler(correspondence *service.CorrespondenceService, log *zap.Logger) *CorrespondenceHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CorrespondenceHandler{correspondence: correspondence, log: log}
}

// correspondenceRequest 同时支持 JSON 与 multipart 表单
type correspondenceRequest struct {
	Subject  string `json:"subject" form:"subject"`
	Content  string `json:"content" form:"content"`
	Type     string `json:"type" form:"type"`
	Priority string `json:"priority" form:"priority"`
	Status   string `json:"status" form:"status"`

	SenderContactID    *uint  `json:"senderContactId" form:"sender_contact_id"`
	SenderExternal     string `json:"senderExternal" form:"sender_external"`
	RecipientContactID *uint  `json:"recipientContactId" form:"recipient_contact_id"`
	RecipientExternal  string `json:"recipientExternal" form:"recipient_external"`

	CorrespondenceDate string `json:"correspondenceDate" form:"correspondence_date"`
	ReceivedDate       string `json:"receivedDate" form:"received_date"`
	DueDate            string `json:"dueDate" form:"due_date"`

	DepartmentID *uint `json:"departmentId" form:"department_id"`
	AssignedTo   *uint `json:"assignedTo" form:"assigned_to"`
}

func (r correspondenceRequest) toInput() service.CorrespondenceInput {
	return service.CorrespondenceInput{
		Subject:            r.Subject,
		Content:            r.Content,
		Type:               r.Type,
		Priority:           r.Priority,
		Status:             r.Status,
		SenderContactID:    r.SenderContactID,
		SenderExternal:     r.SenderExternal,
		RecipientContactID: r.RecipientContactID,
		RecipientExternal:  r.RecipientExternal,
		CorrespondenceDate: r.CorrespondenceDate,
		ReceivedDate:       r.ReceivedDate,
		DueDate:            r.DueDate,
		DepartmentID:       r.DepartmentID,
		AssignedTo:         r.AssignedTo,
	}
}

// correspondenceResponse 公文详情，附带关联名称
type correspondenceResponse struct {
	*domain.Correspondence
	SenderName     string `json:"senderName,omitempty"`
	RecipientName  string `json:"recipientName,omitempty"`
	DepartmentName string `json:"departmentName,omitempty"`
	AssigneeName   string `json:"assigneeName,omitempty"`
	CreatorName    string `json:"creatorName,omitempty"`
	Overdue        bool   `json:"overdue"`
}

func newCorrespondenceResponse(v *service.CorrespondenceView) correspondenceResponse {
	return correspondenceResponse{
		Correspondence: v.Correspondence,
		SenderName:     v.SenderName,
		RecipientName:  v.RecipientName,
		DepartmentName: v.DepartmentName,
		AssigneeName:   v.AssigneeName,
		CreatorName:    v.CreatorName,
		Overdue:        v.Overdue,
	}
}

// bind 解析请求体与上传文件
func (h *CorrespondenceHandler) bind(c *gin.Context) (service.CorrespondenceInput, []service.Upload, bool) {
	var req correspondenceRequest
	if err := c.ShouldBind(&req); err != nil {
		if middleware.IsBodyTooLarge(err) {
			Error(c, CodeTooLarge, MsgRequestTooLarge)
		} else {
			BadRequest(c, MsgInvalidRequest)
		}
		return service.CorrespondenceInput{}, nil, false
	}

	uploads, err := MultipartUploads(c, AttachmentField)
	if err != nil {
		Fail(c, h.log, err)
		return service.CorrespondenceInput{}, nil, false
	}
	return req.toInput(), uploads, true
}

// List 公文列表
// GET /api/v1/correspondences
func (h *CorrespondenceHandler) List(c *gin.Context) {
	filter := ParseCorrespondenceFilter(c, domain.DefaultPageSize)
	page, err := h.correspondence.List(c.Request.Context(), filter)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, page)
}

// Get 公文详情
// GET /api/v1/correspondences/:id
func (h *CorrespondenceHandler) Get(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}

	view, err := h.correspondence.View(c.Request.Context(), id)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, newCorrespondenceResponse(view))
}

// Create 登记公文，可同时上传附件
// POST /api/v1/correspondences
func (h *CorrespondenceHandler) Create(c *gin.Context) {
	input, uploads, ok := h.bind(c)
	if !ok {
		return
	}

	created, err := h.correspondence.Create(c.Request.Context(), middleware.CurrentUserID(c), input, uploads)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	CreatedWithMsg(c, "公文登记成功", created)
}

// Update 整体替换公文字段，新上传的附件追加
// PUT /api/v1/correspondences/:id
func (h *CorrespondenceHandler) Update(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}
	input, uploads, ok := h.bind(c)
	if !ok {
		return
	}

	updated, err := h.correspondence.Update(c.Request.Context(), middleware.CurrentUserID(c), id, input, uploads)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "公文更新成功", updated)
}

// Delete 删除公文及其附件
// DELETE /api/v1/correspondences/:id
func (h *CorrespondenceHandler) Delete(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}

	deleted, err := h.correspondence.Delete(c.Request.Context(), middleware.CurrentUserID(c), id)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "公文已删除", gin.H{"id": deleted.ID, "referenceNumber": deleted.ReferenceNumber})
}

// AddAttachments 为已有公文追加附件
// POST /api/v1/correspondences/:id/attachments
func (h *CorrespondenceHandler) AddAttachments(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}

	uploads, err := MultipartUploads(c, AttachmentField)
	if err != nil {
		Fail(c, h.log, err)
		return
	}

	attachments, err := h.correspondence.AddAttachments(c.Request.Context(), middleware.CurrentUserID(c), id, uploads)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	CreatedWithMsg(c, "附件上传成功", attachments)
}

// Stats 首页统计
// GET /api/v1/stats
func (h *CorrespondenceHandler) Stats(c *gin.Context) {
	dashboard, err := h.correspondence.Dashboard(c.Request.Context())
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, gin.H{"stats": dashboard.Stats, "recent": dashboard.Recent})
}
