package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/monitoring"
	"ecs/backend/internal/storage"
)

// 文号生成重试次数
const referenceAttempts = 5

// RecentLimit 首页最近公文条数
const RecentLimit = 10

var (
	// ErrContactNotFound 所选联系人不存在
	ErrContactNotFound = errors.New("selected contact does not exist")
	// ErrDepartmentNotFound 所选部门不存在
	ErrDepartmentNotFound = errors.New("selected department does not exist")
	// ErrAssigneeNotFound 经办人不存在
	ErrAssigneeNotFound = errors.New("assigned user does not exist")
	// ErrNoAttachments 未选择文件
	ErrNoAttachments = errors.New("no files selected")
)

// CorrespondenceInput 新建或编辑公文的表单输入，日期格式 YYYY-MM-DD
type CorrespondenceInput struct {
	Subject  string
	Content  string
	Type     string
	Priority string
	Status   string

	SenderContactID    *uint
	SenderExternal     string
	RecipientContactID *uint
	RecipientExternal  string

	CorrespondenceDate string // 为空时取当天
	ReceivedDate       string
	DueDate            string

	DepartmentID *uint
	AssignedTo   *uint
}

// apply 将输入整体写入公文的可编辑字段
func (in CorrespondenceInput) apply(c *domain.Correspondence, now time.Time) error {
	typ, err := domain.ParseDirection(in.Type)
	if err != nil {
		return err
	}
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return err
	}
	status, err := domain.ParseStatus(in.Status)
	if err != nil {
		return err
	}

	sender, err := domain.NewParty(in.SenderContactID, in.SenderExternal)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	recipient, err := domain.NewParty(in.RecipientContactID, in.RecipientExternal)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}

	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if strings.TrimSpace(in.CorrespondenceDate) != "" {
		parsed, err := ParseDate(in.CorrespondenceDate)
		if err != nil {
			return err
		}
		date = *parsed
	}
	received, err := ParseDate(in.ReceivedDate)
	if err != nil {
		return err
	}
	due, err := ParseDate(in.DueDate)
	if err != nil {
		return err
	}

	c.Subject = strings.TrimSpace(in.Subject)
	c.Content = in.Content
	c.Type = typ
	c.Priority = priority
	c.Status = status
	c.Sender = sender
	c.Recipient = recipient
	c.CorrespondenceDate = date
	c.ReceivedDate = received
	c.DueDate = due
	c.DepartmentID = nonZero(in.DepartmentID)
	c.AssignedTo = nonZero(in.AssignedTo)

	return c.Validate()
}

// ParseDate 解析 YYYY-MM-DD，空串返回 nil
func ParseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(domain.DateLayout, value, time.UTC)
	if err != nil {
		return nil, domain.ErrInvalidDate
	}
	return &t, nil
}

func nonZero(id *uint) *uint {
	if id == nil || *id == 0 {
		return nil
	}
	v := *id
	return &v
}

// CorrespondenceView 详情页所需的公文及关联名称
type CorrespondenceView struct {
	*domain.Correspondence
	SenderName     string
	RecipientName  string
	DepartmentName string
	AssigneeName   string
	CreatorName    string
	Overdue        bool
}

// Dashboard 首页数据
type Dashboard struct {
	Stats  *domain.Stats
	Recent []domain.Correspondence
}

// CorrespondenceService 公文增删改查
type CorrespondenceService struct {
	store       storage.Store
	attachments *AttachmentService
	publisher   Publisher
	metrics     *monitoring.Metrics
	log         *zap.Logger
	now         func() time.Time
}

// NewCorrespondenceService 创建公文服务
func NewCorrespondenceService(store storage.Store, attachments *AttachmentService, publisher Publisher, metrics *monitoring.Metrics, log *zap.Logger) *CorrespondenceService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CorrespondenceService{
		store:       store,
		attachments: attachments,
		publisher:   publisher,
		metrics:     metrics,
		log:         log,
		now:         time.Now,
	}
}

// List 分页查询
func (s *CorrespondenceService) List(ctx context.Context, filter domain.CorrespondenceFilter) (domain.Page[domain.Correspondence], error) {
	return s.store.ListCorrespondences(ctx, filter)
}

// Recent 最近创建的 n 条公文
func (s *CorrespondenceService) Recent(ctx context.Context, n int) ([]domain.Correspondence, error) {
	if n <= 0 {
		n = RecentLimit
	}
	return s.store.RecentCorrespondences(ctx, n)
}

// Stats 统计数据
func (s *CorrespondenceService) Stats(ctx context.Context) (*domain.Stats, error) {
	return s.store.Stats(ctx, s.now().UTC())
}

// Dashboard 首页统计与最近公文
func (s *CorrespondenceService) Dashboard(ctx context.Context) (*Dashboard, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	recent, err := s.Recent(ctx, RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent correspondence: %w", err)
	}
	return &Dashboard{Stats: stats, Recent: recent}, nil
}

// Get 获取公文及附件
func (s *CorrespondenceService) Get(ctx context.Context, id uint) (*domain.Correspondence, error) {
	return s.store.GetCorrespondence(ctx, id)
}

// View 详情页与打印页使用，解析联系人、部门与用户名称
func (s *CorrespondenceService) View(ctx context.Context, id uint) (*CorrespondenceView, error) {
	c, err := s.store.GetCorrespondence(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &CorrespondenceView{
		Correspondence: c,
		DepartmentName: departmentName(ctx, s.store, c.DepartmentID),
		AssigneeName:   s.userName(ctx, c.AssignedTo),
		CreatorName:    s.userName(ctx, &c.CreatedBy),
		Overdue:        c.IsOverdue(s.now().UTC()),
	}

	ids := make([]uint, 0, 2)
	for _, p := range []domain.Party{c.Sender, c.Recipient} {
		if p.Kind == domain.PartyContact && p.ContactID != nil {
			ids = append(ids, *p.ContactID)
		}
	}
	contacts, err := s.store.GetContacts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	view.SenderName = PartyName(c.Sender, contacts)
	view.RecipientName = PartyName(c.Recipient, contacts)

	return view, nil
}

// PartyName 往来方显示名称
func PartyName(p domain.Party, contacts map[uint]domain.Contact) string {
	fallback := ""
	if p.Kind == domain.PartyContact && p.ContactID != nil {
		if contact, ok := contacts[*p.ContactID]; ok {
			fallback = contact.Label()
		}
	}
	return p.Display(fallback)
}

func (s *CorrespondenceService) userName(ctx context.Context, id *uint) string {
	if id == nil || *id == 0 {
		return ""
	}
	u, err := s.store.GetUserByID(ctx, *id)
	if err != nil {
		return ""
	}
	return u.DisplayName()
}

// Create 新建公文：校验 → 生成文号 → 检查并写入附件 → 事务入库 → 提交后推送
func (s *CorrespondenceService) Create(ctx context.Context, actorID uint, input CorrespondenceInput, uploads []Upload) (c *domain.Correspondence, err error) {
	defer func() { s.metrics.RecordCorrespondenceOp("create", err) }()

	now := s.now()
	c = &domain.Correspondence{CreatedBy: actorID}
	if err := input.apply(c, now); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, c); err != nil {
		return nil, err
	}
	if err := s.attachments.Check(uploads); err != nil {
		return nil, err
	}

	written, err := s.attachments.Write(uploads, actorID)
	if err != nil {
		return nil, err
	}

	err = retry.Do(
		func() error {
			ref, err := s.newReference(ctx, now)
			if err != nil {
				return err
			}

			c.ID = 0
			c.ReferenceNumber = ref
			c.Attachments = append([]domain.Attachment(nil), written...)
			activity := &domain.ActivityLog{
				UserID:      actorID,
				Action:      domain.ActionCreate,
				EntityType:  domain.EntityCorrespondence,
				Description: "Created correspondence: " + c.Subject,
			}
			return s.store.CreateCorrespondence(ctx, c, activity)
		},
		retry.Context(ctx),
		retry.Attempts(referenceAttempts),
		retry.Delay(10*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, storage.ErrDuplicateReference)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		s.attachments.Discard(written)
		if errors.Is(err, storage.ErrDuplicateReference) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create correspondence: %w", err)
	}

	s.log.Info("correspondence created",
		zap.Uint("id", c.ID),
		zap.String("reference", c.ReferenceNumber),
		zap.Int("attachments", len(c.Attachments)),
		zap.Uint("user_id", actorID))

	s.publish(ctx, domain.EventCorrespondenceAdded, c)
	return c, nil
}

// newReference 生成未被占用的文号
func (s *CorrespondenceService) newReference(ctx context.Context, now time.Time) (string, error) {
	ref := domain.NewReferenceNumber(now.UTC())
	taken, err := s.store.ReferenceExists(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to check reference: %w", err)
	}
	if taken {
		return "", storage.ErrDuplicateReference
	}
	return ref, nil
}

// Update 整体替换可编辑字段并追加新附件，以最后一次提交为准
func (s *CorrespondenceService) Update(ctx context.Context, actorID, id uint, input CorrespondenceInput, uploads []Upload) (c *domain.Correspondence, err error) {
	defer func() { s.metrics.RecordCorrespondenceOp("update", err) }()

	c, err = s.store.GetCorrespondence(ctx, id)
	if err != nil {
		return nil, err
	}
	existing := c.Attachments

	if err := input.apply(c, s.now()); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, c); err != nil {
		return nil, err
	}
	if err := s.attachments.Check(uploads); err != nil {
		return nil, err
	}

	written, err := s.attachments.Write(uploads, actorID)
	if err != nil {
		return nil, err
	}

	activity := &domain.ActivityLog{
		UserID:      actorID,
		Action:      domain.ActionUpdate,
		EntityType:  domain.EntityCorrespondence,
		EntityID:    c.ID,
		Description: "Updated correspondence: " + c.Subject,
	}
	c.Attachments = nil
	if err := s.store.UpdateCorrespondence(ctx, c, written, activity); err != nil {
		s.attachments.Discard(written)
		if errors.Is(err, storage.ErrCorrespondenceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update correspondence: %w", err)
	}
	c.Attachments = append(existing, written...)

	s.log.Info("correspondence updated",
		zap.Uint("id", c.ID),
		zap.Int("new_attachments", len(written)),
		zap.Uint("user_id", actorID))

	s.publish(ctx, domain.EventCorrespondenceUpdated, c)
	return c, nil
}

// AddAttachments 只追加附件，不修改其他字段
func (s *CorrespondenceService) AddAttachments(ctx context.Context, actorID, id uint, uploads []Upload) (atts []domain.Attachment, err error) {
	defer func() { s.metrics.RecordCorrespondenceOp("upload", err) }()

	if len(uploads) == 0 {
		return nil, ErrNoAttachments
	}

	c, err := s.store.GetCorrespondence(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachments.Check(uploads); err != nil {
		return nil, err
	}

	written, err := s.attachments.Write(uploads, actorID)
	if err != nil {
		return nil, err
	}

	activity := &domain.ActivityLog{
		UserID:      actorID,
		Action:      domain.ActionUpload,
		EntityType:  domain.EntityCorrespondence,
		EntityID:    c.ID,
		Description: fmt.Sprintf("Uploaded %d attachment(s) to: %s", len(written), c.Subject),
	}
	c.Attachments = nil
	if err := s.store.UpdateCorrespondence(ctx, c, written, activity); err != nil {
		s.attachments.Discard(written)
		return nil, fmt.Errorf("failed to save attachments: %w", err)
	}

	s.publish(ctx, domain.EventCorrespondenceUpdated, c)
	return written, nil
}

// Delete 删除公文：先删磁盘文件，再在事务中删除记录，提交后推送
func (s *CorrespondenceService) Delete(ctx context.Context, actorID, id uint) (c *domain.Correspondence, err error) {
	defer func() { s.metrics.RecordCorrespondenceOp("delete", err) }()

	c, err = s.store.GetCorrespondence(ctx, id)
	if err != nil {
		return nil, err
	}

	s.attachments.Discard(c.Attachments)

	activity := &domain.ActivityLog{
		UserID:      actorID,
		Action:      domain.ActionDelete,
		EntityType:  domain.EntityCorrespondence,
		EntityID:    c.ID,
		Description: "Deleted correspondence: " + c.Subject,
	}
	if err := s.store.DeleteCorrespondence(ctx, id, activity); err != nil {
		if errors.Is(err, storage.ErrCorrespondenceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to delete correspondence: %w", err)
	}

	s.log.Info("correspondence deleted",
		zap.Uint("id", c.ID),
		zap.String("reference", c.ReferenceNumber),
		zap.Uint("user_id", actorID))

	s.publish(ctx, domain.EventCorrespondenceDeleted, c)
	return c, nil
}

// checkReferences 确认所选联系人、部门与经办人存在
func (s *CorrespondenceService) checkReferences(ctx context.Context, c *domain.Correspondence) error {
	for _, p := range []domain.Party{c.Sender, c.Recipient} {
		if p.Kind != domain.PartyContact {
			continue
		}
		if _, err := s.store.GetContact(ctx, *p.ContactID); err != nil {
			if errors.Is(err, storage.ErrContactNotFound) {
				return ErrContactNotFound
			}
			return err
		}
	}

	if c.DepartmentID != nil {
		if _, err := s.store.GetDepartment(ctx, *c.DepartmentID); err != nil {
			if errors.Is(err, storage.ErrDepartmentNotFound) {
				return ErrDepartmentNotFound
			}
			return err
		}
	}

	if c.AssignedTo != nil {
		if _, err := s.store.GetUserByID(ctx, *c.AssignedTo); err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				return ErrAssigneeNotFound
			}
			return err
		}
	}
	return nil
}

func (s *CorrespondenceService) publish(ctx context.Context, eventType domain.EventType, c *domain.Correspondence) {
	s.publisher.Publish(domain.NewCorrespondenceEvent(eventType, c, departmentName(ctx, s.store, c.DepartmentID), s.now()))
}
