package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction 往来方向
type Direction string

const (
	DirectionIncoming Direction = "incoming" // 来文
	DirectionOutgoing Direction = "outgoing" // 发文
)

// Priority 紧急程度
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status 办理状态
type Status string

const (
	StatusPending   Status = "pending"   // 待办
	StatusProcessed Status = "processed" // 已办
	StatusArchived  Status = "archived"  // 归档
)

// ReferencePrefix 文号前缀
const ReferencePrefix = "ECS"

// Correspondence 表示一件来文或发文
type Correspondence struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	ReferenceNumber string    `json:"referenceNumber" gorm:"type:varchar(50);uniqueIndex;not null"`
	Subject         string    `json:"subject" gorm:"type:varchar(300);not null"`
	Content         string    `json:"content" gorm:"type:text;not null"`
	Type            Direction `json:"type" gorm:"type:varchar(20);index;not null"`
	Priority        Priority  `json:"priority" gorm:"type:varchar(20);default:'normal'"`
	Status          Status    `json:"status" gorm:"type:varchar(20);index;default:'pending'"`

	// 发文人/收文人：内部联系人或外部自由文本，二者互斥
	Sender    Party `json:"sender" gorm:"embedded;embeddedPrefix:sender_"`
	Recipient Party `json:"recipient" gorm:"embedded;embeddedPrefix:recipient_"`

	CorrespondenceDate time.Time  `json:"correspondenceDate" gorm:"type:date;not null"`
	ReceivedDate       *time.Time `json:"receivedDate,omitempty" gorm:"type:date"`
	DueDate            *time.Time `json:"dueDate,omitempty" gorm:"type:date;index"`

	DepartmentID *uint     `json:"departmentId,omitempty" gorm:"index"`
	AssignedTo   *uint     `json:"assignedTo,omitempty" gorm:"index"`
	CreatedBy    uint      `json:"createdBy" gorm:"index"`
	CreatedAt    time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt    time.Time `json:"updatedAt"`

	Attachments []Attachment `json:"attachments,omitempty" gorm:"foreignKey:CorrespondenceID;constraint:OnDelete:CASCADE"`
}

// Validate 校验必填字段与枚举值
func (c *Correspondence) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return ErrSubjectRequired
	}
	if len([]rune(c.Subject)) > MaxSubjectLength {
		return ErrSubjectTooLong
	}
	if strings.TrimSpace(c.Content) == "" {
		return ErrContentRequired
	}
	if _, err := ParseDirection(string(c.Type)); err != nil {
		return err
	}
	if _, err := ParsePriority(string(c.Priority)); err != nil {
		return err
	}
	if _, err := ParseStatus(string(c.Status)); err != nil {
		return err
	}
	if c.CorrespondenceDate.IsZero() {
		return ErrDateRequired
	}
	if err := c.Sender.Validate(); err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	if err := c.Recipient.Validate(); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	return nil
}

// IsOverdue 待办且截止日期早于今天
func (c *Correspondence) IsOverdue(now time.Time) bool {
	if c.DueDate == nil || c.Status != StatusPending {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return c.DueDate.Before(today)
}

// NewReferenceNumber 生成文号，格式 ECS-YYYYMMDD-XXXXXXXX
func NewReferenceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", ReferencePrefix, now.Format("20060102"), suffix)
}

// ParseDirection 解析往来方向，必填
func ParseDirection(value string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(value))) {
	case DirectionIncoming:
		return DirectionIncoming, nil
	case DirectionOutgoing:
		return DirectionOutgoing, nil
	case "":
		return "", ErrTypeRequired
	default:
		return "", ErrInvalidType
	}
}

// ParsePriority 解析紧急程度，空值取 normal
func ParsePriority(value string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", ErrInvalidPriority
	}
}

// ParseStatus 解析办理状态，空值取 pending
func ParseStatus(value string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(value))); s {
	case "":
		return StatusPending, nil
	case StatusPending, StatusProcessed, StatusArchived:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

// CorrespondenceFilter 列表查询条件，各条件之间为 AND 关系
type CorrespondenceFilter struct {
	Type         Direction
	Status       Status
	DepartmentID *uint
	Search       string // 匹配主题、文号、正文
	Page         int
	PageSize     int
}

// 分页默认值
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize 修正页码与页大小
func (f *CorrespondenceFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	f.Search = strings.TrimSpace(f.Search)
}

// Offset 当前页的起始偏移
func (f CorrespondenceFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Page 分页结果
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Pages    int   `json:"pages"`
}

// NewPage 构造分页结果
func NewPage[T any](items []T, total int64, page, pageSize int) Page[T] {
	pages := 0
	if pageSize > 0 {
		pages = int(math.Ceil(float64(total) / float64(pageSize)))
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: page, PageSize: pageSize, Pages: pages}
}

// HasPrev 是否存在上一页
func (p Page[T]) HasPrev() bool { return p.Page > 1 }

// HasNext 是否存在下一页
func (p Page[T]) HasNext() bool { return p.Page < p.Pages }

// Stats 首页统计
type Stats struct {
	TotalIncoming       int64 `json:"totalIncoming"`
	TotalOutgoing       int64 `json:"totalOutgoing"`
	TotalCorrespondence int64 `json:"totalCorrespondence"`
	TotalAttachments    int64 `json:"totalAttachments"`
	Pending             int64 `json:"pending"`
	Overdue             int64 `json:"overdue"`
}
