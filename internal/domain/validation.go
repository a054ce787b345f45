package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// 公文校验错误
var (
	ErrSubjectRequired = errors.New("subject is required")
	ErrSubjectTooLong  = errors.New("subject too long (max 300 chars)")
	ErrContentRequired = errors.New("content is required")
	ErrTypeRequired    = errors.New("type is required")
	ErrInvalidType     = errors.New("type must be incoming or outgoing")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrDateRequired    = errors.New("correspondence date is required")
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
)

// 往来方校验错误
var (
	ErrPartyConflict        = errors.New("choose either a contact or an external name, not both")
	ErrPartyContactMissing  = errors.New("contact is required")
	ErrPartyExternalMissing = errors.New("external name is required")
	ErrPartyExternalTooLong = errors.New("external name too long (max 200 chars)")
	ErrInvalidPartyKind     = errors.New("invalid party kind")
)

// 用户与通讯录校验错误
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrPasswordTooShort = errors.New("password too short (min 8 chars)")
	ErrPasswordTooLong  = errors.New("password too long (max 72 bytes)")
	ErrUsernameTooShort = errors.New("username too short (min 3 chars)")
	ErrUsernameTooLong  = errors.New("username too long (max 32 chars)")
	ErrInvalidUsername  = errors.New("invalid username format")
	ErrNameRequired     = errors.New("name is required")
	ErrSettingKeyEmpty  = errors.New("setting key is required")
)

// 验证常量
const (
	MaxSubjectLength = 300
	MaxEmailLength   = 254

	// 密码长度限制
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt 只处理前 72 字节

	// 用户名长度限制
	MinUsernameLength = 3
	MaxUsernameLength = 32

	DateLayout = "2006-01-02"
)

// 用户名必须以字母开头
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*[a-zA-Z0-9]$|^[a-zA-Z]$`)

// ValidateUsername 验证用户名
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return ErrUsernameTooShort
	}

	if len(username) > MaxUsernameLength {
		return ErrUsernameTooLong
	}

	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}

	return nil
}

// ValidatePassword 验证密码长度
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}

	return nil
}

// ValidateEmail 验证邮箱地址，空字符串视为未填写
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// Validate 联系人校验
func (c *Contact) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrNameRequired
	}
	return ValidateEmail(c.Email)
}

// Validate 部门校验
func (d *Department) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// Validate 用户校验（不含密码）
func (u *User) Validate() error {
	if err := ValidateUsername(u.Username); err != nil {
		return err
	}
	if strings.TrimSpace(u.FullName) == "" {
		return ErrNameRequired
	}
	if u.Email != nil {
		return ValidateEmail(*u.Email)
	}
	return nil
}
