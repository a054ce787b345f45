package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/middleware"
	"ecs/backend/internal/service"
	httptransport "ecs/backend/internal/transport/http"
)

// 下拉框中最多列出的联系人数量
const contactOptionsLimit = 100

// correspondenceForm 表单原始输入，校验失败时原样回填
type correspondenceForm struct {
	Subject  string `form:"subject"`
	Content  string `form:"content"`
	Type     string `form:"type"`
	Priority string `form:"priority"`
	Status   string `form:"status"`

	// contact、external 或 none
	SenderType         string `form:"sender_type"`
	SenderContactID    string `form:"sender_contact_id"`
	SenderExternal     string `form:"sender_external"`
	RecipientType      string `form:"recipient_type"`
	RecipientContactID string `form:"recipient_contact_id"`
	RecipientExternal  string `form:"recipient_external"`

	CorrespondenceDate string `form:"correspondence_date"`
	ReceivedDate       string `form:"received_date"`
	DueDate            string `form:"due_date"`

	DepartmentID string `form:"department_id"`
	AssignedTo   string `form:"assigned_to"`
}

func newCorrespondenceForm(now time.Time) correspondenceForm {
	return correspondenceForm{
		Type:               string(domain.DirectionIncoming),
		Priority:           string(domain.PriorityNormal),
		Status:             string(domain.StatusPending),
		SenderType:         string(domain.PartyNone),
		RecipientType:      string(domain.PartyNone),
		CorrespondenceDate: now.Format(domain.DateLayout),
	}
}

func formFromCorrespondence(c *domain.Correspondence) correspondenceForm {
	f := correspondenceForm{
		Subject:            c.Subject,
		Content:            c.Content,
		Type:               string(c.Type),
		Priority:           string(c.Priority),
		Status:             string(c.Status),
		CorrespondenceDate: formatDate(c.CorrespondenceDate),
		ReceivedDate:       formatDate(c.ReceivedDate),
		DueDate:            formatDate(c.DueDate),
		DepartmentID:       idString(c.DepartmentID),
		AssignedTo:         idString(c.AssignedTo),
	}
	f.SenderType, f.SenderContactID, f.SenderExternal = partyFields(c.Sender)
	f.RecipientType, f.RecipientContactID, f.RecipientExternal = partyFields(c.Recipient)
	return f
}

func partyFields(p domain.Party) (kind, contactID, external string) {
	switch p.Kind {
	case domain.PartyContact:
		return string(domain.PartyContact), idString(p.ContactID), ""
	case domain.PartyExternal:
		return string(domain.PartyExternal), "", p.External
	}
	return string(domain.PartyNone), "", ""
}

func idString(id *uint) string {
	if id == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*id), 10)
}

// toInput 按往来方类型选取联系人或外部名称；无法解析的 ID 直接报错，不按空值处理
func (f correspondenceForm) toInput() (service.CorrespondenceInput, error) {
	in := service.CorrespondenceInput{
		Subject:            f.Subject,
		Content:            f.Content,
		Type:               f.Type,
		Priority:           f.Priority,
		Status:             f.Status,
		CorrespondenceDate: f.CorrespondenceDate,
		ReceivedDate:       f.ReceivedDate,
		DueDate:            f.DueDate,
	}

	var err error
	if in.DepartmentID, err = optionalID(f.DepartmentID, service.ErrDepartmentNotFound); err != nil {
		return in, err
	}
	if in.AssignedTo, err = optionalID(f.AssignedTo, service.ErrAssigneeNotFound); err != nil {
		return in, err
	}
	if in.SenderContactID, in.SenderExternal, err = partyInput(f.SenderType, f.SenderContactID, f.SenderExternal); err != nil {
		return in, err
	}
	if in.RecipientContactID, in.RecipientExternal, err = partyInput(f.RecipientType, f.RecipientContactID, f.RecipientExternal); err != nil {
		return in, err
	}
	return in, nil
}

// partyInput 未指定类型时两个字段都交给业务层判断冲突
func partyInput(kind, contactID, external string) (*uint, string, error) {
	switch domain.PartyKind(kind) {
	case domain.PartyContact:
		id, err := optionalID(contactID, service.ErrContactNotFound)
		if err != nil {
			return nil, "", err
		}
		if id == nil {
			return nil, "", domain.ErrPartyContactMissing
		}
		return id, "", nil
	case domain.PartyExternal:
		return nil, external, nil
	case domain.PartyNone:
		return nil, "", nil
	}
	id, err := optionalID(contactID, service.ErrContactNotFound)
	return id, external, err
}

// optionalID 空值返回 nil，非数字返回 invalid
func optionalID(value string, invalid error) (*uint, error) {
	id, err := httptransport.ParseOptionalID(value)
	if err != nil {
		return nil, invalid
	}
	return id, nil
}

// dashboard 首页统计与最近公文
func (h *Handler) dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	dashboard, err := h.deps.Correspondence.Dashboard(ctx)
	if err != nil {
		h.renderError(c, err)
		return
	}

	contacts, err := h.contactsFor(ctx, dashboard.Recent)
	if err != nil {
		h.renderError(c, err)
		return
	}

	_, departmentNames, err := h.departments(ctx)
	if err != nil {
		h.renderError(c, err)
		return
	}

	h.render(c, http.StatusOK, "dashboard.html", gin.H{
		"Title":           "首页",
		"Stats":           dashboard.Stats,
		"Items":           dashboard.Recent,
		"Contacts":        contacts,
		"DepartmentNames": departmentNames,
		"Now":             time.Now().UTC(),
	})
}

// list 公文列表，支持筛选与分页
func (h *Handler) list(c *gin.Context) {
	ctx := c.Request.Context()
	filter := httptransport.ParseCorrespondenceFilter(c, h.deps.Settings.ItemsPerPage(ctx))

	page, err := h.deps.Correspondence.List(ctx, filter)
	if err != nil {
		h.renderError(c, err)
		return
	}
	contacts, err := h.contactsFor(ctx, page.Items)
	if err != nil {
		h.renderError(c, err)
		return
	}
	departments, departmentNames, err := h.departments(ctx)
	if err != nil {
		h.renderError(c, err)
		return
	}

	data := gin.H{
		"Title":           "公文列表",
		"Page":            page,
		"Items":           page.Items,
		"Filter":          filter,
		"DepartmentParam": idString(filter.DepartmentID),
		"Contacts":        contacts,
		"Departments":     departments,
		"DepartmentNames": departmentNames,
		"Now":             time.Now().UTC(),
	}
	if page.HasPrev() {
		data["PrevURL"] = pageURL(filter, page.Page-1)
	}
	if page.HasNext() {
		data["NextURL"] = pageURL(filter, page.Page+1)
	}
	h.render(c, http.StatusOK, "list.html", data)
}

// pageURL 保留筛选条件的分页链接
func pageURL(filter domain.CorrespondenceFilter, page int) string {
	q := url.Values{}
	if filter.Type != "" {
		q.Set("type", string(filter.Type))
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.DepartmentID != nil {
		q.Set("department", idString(filter.DepartmentID))
	}
	if filter.Search != "" {
		q.Set("q", filter.Search)
	}
	q.Set("page", strconv.Itoa(page))
	return "/correspondence?" + q.Encode()
}

// contactsFor 加载列表中引用的联系人
func (h *Handler) contactsFor(ctx context.Context, items []domain.Correspondence) (map[uint]domain.Contact, error) {
	ids := make([]uint, 0, len(items)*2)
	for _, item := range items {
		for _, p := range []domain.Party{item.Sender, item.Recipient} {
			if p.Kind == domain.PartyContact && p.ContactID != nil {
				ids = append(ids, *p.ContactID)
			}
		}
	}
	return h.deps.Contacts.Lookup(ctx, ids)
}

// departments 部门列表及 ID 到名称的映射
func (h *Handler) departments(ctx context.Context) ([]domain.Department, map[uint]string, error) {
	departments, err := h.deps.Departments.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	names := make(map[uint]string, len(departments))
	for _, d := range departments {
		names[d.ID] = d.Name
	}
	return departments, names, nil
}

// newForm 登记公文表单
func (h *Handler) newForm(c *gin.Context) {
	h.renderForm(c, http.StatusOK, nil, newCorrespondenceForm(time.Now()), nil)
}

// create 登记公文，失败时回填表单
func (h *Handler) create(c *gin.Context) {
	form, uploads, err := h.bindForm(c)
	if err != nil {
		h.renderForm(c, httptransport.StatusFor(err), nil, form, err)
		return
	}

	input, err := form.toInput()
	if err != nil {
		h.renderForm(c, httptransport.StatusFor(err), nil, form, err)
		return
	}

	created, err := h.deps.Correspondence.Create(c.Request.Context(), middleware.CurrentUserID(c), input, uploads)
	if err != nil {
		h.renderForm(c, httptransport.StatusFor(err), nil, form, err)
		return
	}

	msg := fmt.Sprintf("公文 %s 登记成功", created.ReferenceNumber)
	if n := len(created.Attachments); n > 0 {
		msg = fmt.Sprintf("公文 %s 登记成功，已上传 %d 个附件", created.ReferenceNumber, n)
	}
	h.redirect(c, viewURL(created.ID), FlashSuccess, msg)
}

// view 公文详情
func (h *Handler) view(c *gin.Context) {
	h.renderView(c, "view.html")
}

// print 打印页
func (h *Handler) print(c *gin.Context) {
	h.renderView(c, "print.html")
}

func (h *Handler) renderView(c *gin.Context, name string) {
	id, ok := httptransport.ParseID(c, "id")
	if !ok {
		h.renderNotFound(c)
		return
	}
	view, err := h.deps.Correspondence.View(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.render(c, http.StatusOK, name, gin.H{
		"Title":          view.ReferenceNumber,
		"Correspondence": view,
		"Printed":        time.Now(),
	})
}

// editForm 编辑公文表单
func (h *Handler) editForm(c *gin.Context) {
	id, ok := httptransport.ParseID(c, "id")
	if !ok {
		h.renderNotFound(c)
		return
	}
	existing, err := h.deps.Correspondence.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.renderForm(c, http.StatusOK, existing, formFromCorrespondence(existing), nil)
}

// update 整体替换公文字段，新文件追加为附件
func (h *Handler) update(c *gin.Context) {
	id, ok := httptransport.ParseID(c, "id")
	if !ok {
		h.renderNotFound(c)
		return
	}
	ctx := c.Request.Context()
	existing, err := h.deps.Correspondence.Get(ctx, id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	form, uploads, err := h.bindForm(c)
	if err != nil {
		h.renderForm(c, httptransport.StatusFor(err), existing, form, err)
		return
	}

	input, err := form.toInput()
	if err != nil {
		h.renderForm(c, httptransport.StatusFor(err), existing, form, err)
		return
	}

	updated, err := h.deps.Correspondence.Update(ctx, middleware.CurrentUserID(c), id, input, uploads)
	if err != nil {
		h.renderForm(c, httptransport.StatusFor(err), existing, form, err)
		return
	}
	h.redirect(c, viewURL(updated.ID), FlashSuccess, fmt.Sprintf("公文 %s 已更新", updated.ReferenceNumber))
}

// delete 删除公文及附件
func (h *Handler) delete(c *gin.Context) {
	id, ok := httptransport.ParseID(c, "id")
	if !ok {
		h.renderNotFound(c)
		return
	}
	deleted, err := h.deps.Correspondence.Delete(c.Request.Context(), middleware.CurrentUserID(c), id)
	if err != nil {
		if httptransport.IsNotFound(err) {
			h.renderError(c, err)
			return
		}
		h.log.Error("failed to delete correspondence", zap.Uint("id", id), zap.Error(err))
		h.redirect(c, viewURL(id), FlashError, httptransport.GetErrorMessage(err))
		return
	}
	h.redirect(c, "/correspondence", FlashSuccess, fmt.Sprintf("公文 %s 已删除", deleted.ReferenceNumber))
}

// bindForm 解析表单字段与上传文件
func (h *Handler) bindForm(c *gin.Context) (correspondenceForm, []service.Upload, error) {
	var form correspondenceForm
	if err := c.ShouldBind(&form); err != nil {
		return form, nil, err
	}
	uploads, err := httptransport.MultipartUploads(c, httptransport.AttachmentField)
	if err != nil {
		return form, nil, err
	}
	return form, uploads, nil
}

// renderForm 渲染新建或编辑表单，existing 为空时为新建
func (h *Handler) renderForm(c *gin.Context, status int, existing *domain.Correspondence, form correspondenceForm, formErr error) {
	ctx := c.Request.Context()
	data := gin.H{
		"Title":     "登记公文",
		"Form":      form,
		"Action":    "/correspondence/new",
		"MaxUpload": h.deps.Attachments.Policy().MaxFileSize(),
	}
	if policy := h.deps.Attachments.Policy(); policy.Enforced() {
		exts := policy.AllowedExtensions()
		for i, ext := range exts {
			exts[i] = "." + ext
		}
		data["Accept"] = strings.Join(exts, ",")
	}
	if existing != nil {
		data["Title"] = "编辑公文 " + existing.ReferenceNumber
		data["Action"] = fmt.Sprintf("/correspondence/%d/edit", existing.ID)
		data["Existing"] = existing
	}
	if formErr != nil {
		msg := httptransport.GetErrorMessage(formErr)
		if middleware.IsBodyTooLarge(formErr) {
			msg = httptransport.MsgRequestTooLarge
		} else if status >= http.StatusInternalServerError {
			h.log.Error("correspondence form failed", zap.String("path", c.Request.URL.Path), zap.Error(formErr))
		}
		data["Flash"] = &Flash{Kind: FlashError, Message: msg}
	}

	contacts, err := h.deps.Contacts.List(ctx, "", 1, contactOptionsLimit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	departments, err := h.deps.Departments.List(ctx)
	if err != nil {
		h.renderError(c, err)
		return
	}
	users, err := h.deps.AuthService.ListUsers(ctx)
	if err != nil {
		h.renderError(c, err)
		return
	}
	data["Contacts"] = contacts.Items
	data["Departments"] = departments
	data["Users"] = users

	h.render(c, status, "form.html", data)
}

func (h *Handler) renderNotFound(c *gin.Context) {
	h.render(c, http.StatusNotFound, "error.html", gin.H{
		"Title":  "页面不存在",
		"Status": http.StatusNotFound,
		"Flash":  &Flash{Kind: FlashError, Message: httptransport.MsgCorrespondenceNotFound},
	})
}

func viewURL(id uint) string {
	return "/correspondence/" + strconv.FormatUint(uint64(id), 10)
}
