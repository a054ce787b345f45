package httptransport

import (
	"errors"
	"fmt"
	"net/http"

	"ecs/backend/internal/auth"
	"ecs/backend/internal/auth/jwt"
	"ecs/backend/internal/domain"
	"ecs/backend/internal/middleware"
	"ecs/backend/internal/security"
	"ecs/backend/internal/service"
	"ecs/backend/internal/storage"
)

type errorSpec struct {
	err    error
	status int
	msg    string
}

// 错误消息映射表（业务错误 -> HTTP 状态码与中文消息），按顺序用 errors.Is 匹配
var errorMessages = []errorSpec{
	// 公文校验
	{domain.ErrSubjectRequired, http.StatusBadRequest, "标题不能为空"},
	{domain.ErrSubjectTooLong, http.StatusBadRequest, "标题不能超过300个字符"},
	{domain.ErrContentRequired, http.StatusBadRequest, "正文不能为空"},
	{domain.ErrTypeRequired, http.StatusBadRequest, "请选择来文或发文"},
	{domain.ErrInvalidType, http.StatusBadRequest, "类型只能是来文或发文"},
	{domain.ErrInvalidPriority, http.StatusBadRequest, "紧急程度无效"},
	{domain.ErrInvalidStatus, http.StatusBadRequest, "办理状态无效"},
	{domain.ErrDateRequired, http.StatusBadRequest, "公文日期不能为空"},
	{domain.ErrInvalidDate, http.StatusBadRequest, "日期格式无效，应为 YYYY-MM-DD"},

	// 往来方
	{domain.ErrPartyConflict, http.StatusBadRequest, "联系人与外部名称只能选择一个"},
	{domain.ErrPartyContactMissing, http.StatusBadRequest, "请选择联系人"},
	{domain.ErrPartyExternalMissing, http.StatusBadRequest, "请填写外部名称"},
	{domain.ErrPartyExternalTooLong, http.StatusBadRequest, "外部名称不能超过200个字符"},
	{domain.ErrInvalidPartyKind, http.StatusBadRequest, "往来方类型无效"},
	{service.ErrContactNotFound, http.StatusBadRequest, "所选联系人不存在"},
	{service.ErrDepartmentNotFound, http.StatusBadRequest, "所选部门不存在"},
	{service.ErrAssigneeNotFound, http.StatusBadRequest, "所选经办人不存在"},

	// 附件
	{service.ErrNoAttachments, http.StatusBadRequest, "请选择要上传的文件"},
	{security.ErrEmptyFilename, http.StatusBadRequest, "文件名不能为空"},
	{security.ErrExtensionNotAllowed, http.StatusBadRequest, "不允许上传该类型的文件"},
	{security.ErrExecutableContent, http.StatusBadRequest, "不允许上传可执行文件"},
	{security.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "文件超过大小限制"},
	{service.ErrAttachmentFileMissing, http.StatusNotFound, "附件文件已丢失"},

	// 通讯录、部门、用户、配置
	{domain.ErrNameRequired, http.StatusBadRequest, "名称不能为空"},
	{domain.ErrInvalidEmail, http.StatusBadRequest, "邮箱格式无效"},
	{domain.ErrEmailTooLong, http.StatusBadRequest, "邮箱地址过长"},
	{domain.ErrPasswordTooShort, http.StatusBadRequest, "密码至少8个字符"},
	{domain.ErrPasswordTooLong, http.StatusBadRequest, "密码不能超过72个字节"},
	{domain.ErrUsernameTooShort, http.StatusBadRequest, "用户名至少3个字符"},
	{domain.ErrUsernameTooLong, http.StatusBadRequest, "用户名不能超过32个字符"},
	{domain.ErrInvalidUsername, http.StatusBadRequest, "用户名格式无效"},
	{domain.ErrSettingKeyEmpty, http.StatusBadRequest, "配置项名称不能为空"},
	{service.ErrInvalidSetting, http.StatusBadRequest, "配置值无效"},
	{service.ErrHeadNotFound, http.StatusBadRequest, "部门负责人不存在"},
	{service.ErrContactInUse, http.StatusConflict, "该联系人已被公文引用，无法删除"},
	{service.ErrDepartmentInUse, http.StatusConflict, "该部门仍有用户或公文，无法删除"},
	{auth.ErrUsernameExists, http.StatusConflict, "用户名或邮箱已存在"},
	{storage.ErrUserExists, http.StatusConflict, "用户名或邮箱已存在"},

	// 认证
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, MsgInvalidCredentials},
	{auth.ErrUserInactive, http.StatusUnauthorized, "账户已被禁用"},
	{auth.ErrSessionInvalid, http.StatusUnauthorized, MsgTokenExpired},
	{jwt.ErrExpiredToken, http.StatusUnauthorized, MsgTokenExpired},
	{jwt.ErrInvalidToken, http.StatusUnauthorized, MsgTokenInvalid},

	// 不存在
	{storage.ErrCorrespondenceNotFound, http.StatusNotFound, MsgCorrespondenceNotFound},
	{storage.ErrAttachmentNotFound, http.StatusNotFound, MsgAttachmentNotFound},
	{storage.ErrContactNotFound, http.StatusNotFound, "联系人不存在"},
	{storage.ErrDepartmentNotFound, http.StatusNotFound, "部门不存在"},
	{storage.ErrSettingNotFound, http.StatusNotFound, "配置项不存在"},
	{storage.ErrUserNotFound, http.StatusNotFound, MsgUserNotFound},
	{auth.ErrUserNotFound, http.StatusNotFound, MsgUserNotFound},

	// 冲突
	{storage.ErrDuplicateReference, http.StatusConflict, "文号冲突，请重试"},
	{storage.ErrDuplicate, http.StatusConflict, "记录已存在"},
}

// lookupError 查找已知错误
func lookupError(err error) (errorSpec, bool) {
	for _, spec := range errorMessages {
		if errors.Is(err, spec.err) {
			return spec, true
		}
	}
	if middleware.IsBodyTooLarge(err) {
		return errorSpec{status: http.StatusRequestEntityTooLarge, msg: MsgRequestTooLarge}, true
	}
	return errorSpec{}, false
}

// GetErrorMessage 获取错误的中文消息，未知错误附带原始错误文本
func GetErrorMessage(err error) string {
	spec, ok := lookupError(err)
	if !ok {
		return fmt.Sprintf("%s：%v", MsgOperationFailed, err)
	}

	var uploadErr *service.UploadError
	if errors.As(err, &uploadErr) && uploadErr.Filename != "" {
		return fmt.Sprintf("%s：%s", uploadErr.Filename, spec.msg)
	}
	return spec.msg
}

// StatusFor 返回错误对应的 HTTP 状态码，未知错误为 500
func StatusFor(err error) int {
	if spec, ok := lookupError(err); ok {
		return spec.status
	}
	return http.StatusInternalServerError
}

// IsNotFound 判断错误是否表示资源不存在
func IsNotFound(err error) bool {
	return StatusFor(err) == http.StatusNotFound
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest  = "请求参数格式错误"
	MsgInvalidID       = "ID 格式无效"
	MsgRequestTooLarge = "请求体超过大小限制"
	MsgOperationFailed = "操作失败"

	// 认证相关
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "用户名或密码错误"
	MsgTokenExpired       = "登录已过期，请重新登录"
	MsgTokenInvalid       = "无效的访问令牌"

	// 资源相关
	MsgCorrespondenceNotFound = "公文不存在"
	MsgAttachmentNotFound     = "附件不存在"
	MsgUserNotFound           = "用户不存在"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
