package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/middleware"
	"ecs/backend/internal/service"
)

// DirectoryHandler 通讯录与部门 API
type DirectoryHandler struct {
	contacts    *service.ContactService
	departments *service.DepartmentService
	log         *zap.Logger
}

// NewDirectoryHandler 创建通讯录处理器
func NewDirectoryHandler(contacts *service.ContactService, departments *service.DepartmentService, log *zap.Logger) *DirectoryHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DirectoryHandler{contacts: contacts, departments: departments, log: log}
}

type contactRequest struct {
	Name         string `json:"name" binding:"required"`
	Organization string `json:"organization"`
	Position     string `json:"position"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Notes        string `json:"notes"`
}

func (r contactRequest) toInput() service.ContactInput {
	return service.ContactInput{
		Name:         r.Name,
		Organization: r.Organization,
		Position:     r.Position,
		Email:        r.Email,
		Phone:        r.Phone,
		Address:      r.Address,
		Notes:        r.Notes,
	}
}

type departmentRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	HeadID      *uint  `json:"headId"`
}

func (r departmentRequest) toInput() service.DepartmentInput {
	return service.DepartmentInput{Name: r.Name, Description: r.Description, HeadID: r.HeadID}
}

// ListContacts 联系人列表，q 按姓名或单位搜索
// GET /api/v1/contacts
func (h *DirectoryHandler) ListContacts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(domain.DefaultPageSize)))

	result, err := h.contacts.List(c.Request.Context(), c.Query("q"), page, pageSize)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, result)
}

// GetContact 联系人详情
// GET /api/v1/contacts/:id
func (h *DirectoryHandler) GetContact(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}
	contact, err := h.contacts.Get(c.Request.Context(), id)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, contact)
}

// CreateContact 新建联系人
// POST /api/v1/contacts
func (h *DirectoryHandler) CreateContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	contact, err := h.contacts.Create(c.Request.Context(), middleware.CurrentUserID(c), req.toInput())
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Created(c, contact)
}

// UpdateContact 修改联系人
// PUT /api/v1/contacts/:id
func (h *DirectoryHandler) UpdateContact(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	contact, err := h.contacts.Update(c.Request.Context(), middleware.CurrentUserID(c), id, req.toInput())
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, contact)
}

// DeleteContact 删除联系人
// DELETE /api/v1/contacts/:id
func (h *DirectoryHandler) DeleteContact(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}
	if err := h.contacts.Delete(c.Request.Context(), middleware.CurrentUserID(c), id); err != nil {
		Fail(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "联系人已删除", gin.H{"id": id})
}

// ListDepartments 部门列表
// GET /api/v1/departments
func (h *DirectoryHandler) ListDepartments(c *gin.Context) {
	departments, err := h.departments.List(c.Request.Context())
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, departments)
}

// GetDepartment 部门详情
// GET /api/v1/departments/:id
func (h *DirectoryHandler) GetDepartment(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}
	department, err := h.departments.Get(c.Request.Context(), id)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, department)
}

// CreateDepartment 新建部门
// POST /api/v1/departments
func (h *DirectoryHandler) CreateDepartment(c *gin.Context) {
	var req departmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	department, err := h.departments.Create(c.Request.Context(), middleware.CurrentUserID(c), req.toInput())
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Created(c, department)
}

// UpdateDepartment 修改部门
// PUT /api/v1/departments/:id
func (h *DirectoryHandler) UpdateDepartment(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}
	var req departmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	department, err := h.departments.Update(c.Request.Context(), middleware.CurrentUserID(c), id, req.toInput())
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, department)
}

// DeleteDepartment 删除部门
// DELETE /api/v1/departments/:id
func (h *DirectoryHandler) DeleteDepartment(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		BadRequest(c, MsgInvalidID)
		return
	}
	if err := h.departments.Delete(c.Request.Context(), middleware.CurrentUserID(c), id); err != nil {
		Fail(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "部门已删除", gin.H{"id": id})
}
