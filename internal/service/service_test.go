package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ecs/backend/internal/config"
	"ecs/backend/internal/domain"
	"ecs/backend/internal/monitoring"
	"ecs/backend/internal/security"
	"ecs/backend/internal/storage"
	"ecs/backend/internal/storage/filesystem"
	sqlstore "ecs/backend/internal/storage/sql"
)

// MockPublisher 模拟事件发布
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(event domain.Event) {
	m.Called(event)
}

func eventOfType(t domain.EventType) interface{} {
	return mock.MatchedBy(func(e domain.Event) bool { return e.Type == t })
}

type testEnv struct {
	store          *sqlstore.Store
	files          *filesystem.Store
	publisher      *MockPublisher
	attachments    *AttachmentService
	correspondence *CorrespondenceService
	contacts       *ContactService
	departments    *DepartmentService
	settings       *SettingService
	activity       *ActivityService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlstore.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return newTestEnv(t, store, store)
}

func newTestEnv(t *testing.T, sqlStore *sqlstore.Store, store storage.Store) *testEnv {
	t.Helper()

	files, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	policy := security.NewUploadPolicy(config.UploadConfig{EnforceAllowList: true})
	publisher := &MockPublisher{}
	metrics := monitoring.NewMetrics()

	attachments := NewAttachmentService(store, files, policy, publisher, metrics, nil)
	activity := NewActivityService(store, nil)
	settings := NewSettingService(store, activity)
	t.Cleanup(settings.Close)

	return &testEnv{
		store:          sqlStore,
		files:          files,
		publisher:      publisher,
		attachments:    attachments,
		correspondence: NewCorrespondenceService(store, attachments, publisher, metrics, nil),
		contacts:       NewContactService(store, activity, nil),
		departments:    NewDepartmentService(store, store, activity, nil),
		settings:       settings,
		activity:       activity,
	}
}

func validInput() CorrespondenceInput {
	return CorrespondenceInput{
		Subject:        "Budget request",
		Content:        "Please approve the attached budget.",
		Type:           "incoming",
		SenderExternal: "Ministry of Finance",
	}
}

func diskNames(t *testing.T, files *filesystem.Store) []string {
	t.Helper()
	list, err := files.List()
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, f := range list {
		names = append(names, f.Name)
	}
	return names
}

var referencePattern = regexp.MustCompile(`^ECS-\d{8}-[0-9A-F]{8}$`)

func TestCorrespondenceService_Create(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.publisher.On("Publish", eventOfType(domain.EventCorrespondenceAdded)).Once()

	content := []byte("%PDF-1.4 budget figures")
	c, err := env.correspondence.Create(ctx, 1, validInput(), []Upload{
		UploadFromBytes("budget.pdf", content),
	})
	require.NoError(t, err)

	assert.NotZero(t, c.ID)
	assert.Regexp(t, referencePattern, c.ReferenceNumber)
	assert.Equal(t, domain.PriorityNormal, c.Priority)
	assert.Equal(t, domain.StatusPending, c.Status)
	assert.Equal(t, domain.PartyExternal, c.Sender.Kind)
	assert.False(t, c.CorrespondenceDate.IsZero(), "日期默认为当天")
	env.publisher.AssertExpectations(t)

	got, err := env.correspondence.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Attachments, 1)
	att := got.Attachments[0]
	assert.Equal(t, "budget.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.MimeType)
	assert.Equal(t, int64(len(content)), att.FileSize)
	assert.NotEqual(t, "budget.pdf", att.StoredName)

	_, f, _, err := env.attachments.Open(ctx, att.ID)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, content, data, "下载内容应与上传一致")

	page, err := env.activity.List(ctx, domain.ActivityFilter{EntityType: domain.EntityCorrespondence, EntityID: c.ID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.ActionCreate, page.Items[0].Action)
}

func TestCorrespondenceService_CreateRejectsWholeSubmission(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, err := env.correspondence.Create(ctx, 1, validInput(), []Upload{
		UploadFromBytes("report.pdf", []byte("%PDF-1.4")),
		UploadFromBytes("tool.exe", []byte("MZ\x90\x00")),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, security.ErrExtensionNotAllowed)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "tool.exe", uploadErr.Filename)

	page, err := env.correspondence.List(ctx, domain.CorrespondenceFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "不应写入任何记录")
	assert.Empty(t, diskNames(t, env.files), "不应写入任何文件")
	env.publisher.AssertNotCalled(t, "Publish", mock.Anything)
}

func TestCorrespondenceService_CreateValidation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		modify func(*CorrespondenceInput)
		want   error
	}{
		{"主题为空", func(in *CorrespondenceInput) { in.Subject = "   " }, domain.ErrSubjectRequired},
		{"正文为空", func(in *CorrespondenceInput) { in.Content = "" }, domain.ErrContentRequired},
		{"类型缺失", func(in *CorrespondenceInput) { in.Type = "" }, domain.ErrTypeRequired},
		{"类型非法", func(in *CorrespondenceInput) { in.Type = "sideways" }, domain.ErrInvalidType},
		{"日期非法", func(in *CorrespondenceInput) { in.DueDate = "31/12/2024" }, domain.ErrInvalidDate},
		{"往来方冲突", func(in *CorrespondenceInput) {
			id := uint(7)
			in.SenderContactID = &id
		}, domain.ErrPartyConflict},
		{"联系人不存在", func(in *CorrespondenceInput) {
			id := uint(99)
			in.SenderExternal = ""
			in.SenderContactID = &id
		}, ErrContactNotFound},
		{"部门不存在", func(in *CorrespondenceInput) {
			id := uint(42)
			in.DepartmentID = &id
		}, ErrDepartmentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.modify(&input)
			_, err := env.correspondence.Create(ctx, 1, input, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	env.publisher.AssertNotCalled(t, "Publish", mock.Anything)
}

// collidingStore 前几次文号检查返回已占用
type collidingStore struct {
	*sqlstore.Store
	collisions int
	calls      int
}

func (s *collidingStore) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	s.calls++
	if s.calls <= s.collisions {
		return true, nil
	}
	return s.Store.ReferenceExists(ctx, reference)
}

func TestCorrespondenceService_ReferenceRetry(t *testing.T) {
	base := setupTestEnv(t)
	ctx := context.Background()

	t.Run("冲突后重试成功", func(t *testing.T) {
		store := &collidingStore{Store: base.store, collisions: 2}
		env := newTestEnv(t, base.store, store)
		env.publisher.On("Publish", mock.Anything).Once()

		c, err := env.correspondence.Create(ctx, 1, validInput(), nil)
		require.NoError(t, err)
		assert.Regexp(t, referencePattern, c.ReferenceNumber)
		assert.Equal(t, 3, store.calls)
	})

	t.Run("重试次数用尽", func(t *testing.T) {
		store := &collidingStore{Store: base.store, collisions: 100}
		env := newTestEnv(t, base.store, store)

		_, err := env.correspondence.Create(ctx, 1, validInput(), []Upload{
			UploadFromBytes("memo.txt", []byte("memo")),
		})
		assert.ErrorIs(t, err, storage.ErrDuplicateReference)
		assert.Equal(t, referenceAttempts, store.calls)
		assert.Empty(t, diskNames(t, env.files), "失败后应删除已写入的文件")
	})
}

func TestCorrespondenceService_Update(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	contact, err := env.contacts.Create(ctx, 1, ContactInput{Name: "Jane Doe", Organization: "City Council"})
	require.NoError(t, err)

	env.publisher.On("Publish", eventOfType(domain.EventCorrespondenceAdded)).Once()
	env.publisher.On("Publish", eventOfType(domain.EventCorrespondenceUpdated)).Once()

	c, err := env.correspondence.Create(ctx, 1, validInput(), []Upload{
		UploadFromBytes("first.txt", []byte("first")),
	})
	require.NoError(t, err)
	reference := c.ReferenceNumber

	input := validInput()
	input.Subject = "Budget request (revised)"
	input.SenderExternal = ""
	input.SenderContactID = &contact.ID
	input.Status = "processed"

	updated, err := env.correspondence.Update(ctx, 2, c.ID, input, []Upload{
		UploadFromBytes("second.txt", []byte("second")),
	})
	require.NoError(t, err)
	assert.Len(t, updated.Attachments, 2)

	got, err := env.correspondence.View(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Budget request (revised)", got.Subject)
	assert.Equal(t, reference, got.ReferenceNumber, "文号不可修改")
	assert.Equal(t, domain.StatusProcessed, got.Status)
	assert.Equal(t, domain.PartyContact, got.Sender.Kind)
	assert.Empty(t, got.Sender.External, "切换为联系人后外部名称应清空")
	assert.Equal(t, "Jane Doe (City Council)", got.SenderName)
	assert.Len(t, got.Attachments, 2)

	env.publisher.AssertExpectations(t)

	t.Run("不存在的公文", func(t *testing.T) {
		_, err := env.correspondence.Update(ctx, 1, 9999, validInput(), nil)
		assert.ErrorIs(t, err, storage.ErrCorrespondenceNotFound)
	})
}

func TestCorrespondenceService_Delete(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.publisher.On("Publish", eventOfType(domain.EventCorrespondenceAdded)).Once()
	env.publisher.On("Publish", eventOfType(domain.EventCorrespondenceDeleted)).Once()

	c, err := env.correspondence.Create(ctx, 1, validInput(), []Upload{
		UploadFromBytes("a.txt", []byte("a")),
		UploadFromBytes("b.png", []byte("\x89PNG\r\n\x1a\n")),
	})
	require.NoError(t, err)
	require.Len(t, diskNames(t, env.files), 2)

	deleted, err := env.correspondence.Delete(ctx, 1, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ReferenceNumber, deleted.ReferenceNumber)

	_, err = env.correspondence.Get(ctx, c.ID)
	assert.ErrorIs(t, err, storage.ErrCorrespondenceNotFound)
	assert.Empty(t, diskNames(t, env.files))

	stats, err := env.correspondence.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalAttachments)

	_, err = env.correspondence.Delete(ctx, 1, c.ID)
	assert.ErrorIs(t, err, storage.ErrCorrespondenceNotFound)

	env.publisher.AssertExpectations(t)
}

func TestCorrespondenceService_AddAttachments(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.publisher.On("Publish", mock.Anything)

	c, err := env.correspondence.Create(ctx, 1, validInput(), nil)
	require.NoError(t, err)

	_, err = env.correspondence.AddAttachments(ctx, 1, c.ID, nil)
	assert.ErrorIs(t, err, ErrNoAttachments)

	atts, err := env.correspondence.AddAttachments(ctx, 1, c.ID, []Upload{
		UploadFromBytes("notes.txt", []byte("notes")),
	})
	require.NoError(t, err)
	require.Len(t, atts, 1)

	got, err := env.correspondence.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, got.Attachments, 1)
	env.publisher.AssertCalled(t, "Publish", eventOfType(domain.EventCorrespondenceUpdated))
}

func TestCorrespondenceService_Dashboard(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.publisher.On("Publish", mock.Anything)

	for i := 0; i < 12; i++ {
		input := validInput()
		input.Subject = fmt.Sprintf("Letter %d", i)
		if i%2 == 0 {
			input.Type = "outgoing"
		}
		_, err := env.correspondence.Create(ctx, 1, input, nil)
		require.NoError(t, err)
	}

	dashboard, err := env.correspondence.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), dashboard.Stats.TotalCorrespondence)
	assert.Equal(t, int64(6), dashboard.Stats.TotalIncoming)
	assert.Equal(t, int64(6), dashboard.Stats.TotalOutgoing)
	assert.Len(t, dashboard.Recent, RecentLimit)
	assert.Equal(t, "Letter 11", dashboard.Recent[0].Subject)
}

func TestAttachmentService_Delete(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.publisher.On("Publish", eventOfType(domain.EventCorrespondenceAdded)).Once()
	env.publisher.On("Publish", eventOfType(domain.EventCorrespondenceUpdated)).Once()

	c, err := env.correspondence.Create(ctx, 1, validInput(), []Upload{
		UploadFromBytes("keep.txt", []byte("keep")),
		UploadFromBytes("drop.txt", []byte("drop")),
	})
	require.NoError(t, err)
	require.Len(t, c.Attachments, 2)

	dropID := c.Attachments[1].ID
	att, err := env.attachments.Delete(ctx, 1, dropID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, att.CorrespondenceID)

	got, err := env.correspondence.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "keep.txt", got.Attachments[0].Filename)
	assert.Len(t, diskNames(t, env.files), 1)

	_, err = env.attachments.Delete(ctx, 1, dropID)
	assert.ErrorIs(t, err, storage.ErrAttachmentNotFound)

	env.publisher.AssertExpectations(t)
}

func TestAttachmentService_OpenMissingFile(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.publisher.On("Publish", mock.Anything)

	c, err := env.correspondence.Create(ctx, 1, validInput(), []Upload{
		UploadFromBytes("lost.txt", []byte("lost")),
	})
	require.NoError(t, err)

	att := c.Attachments[0]
	require.NoError(t, os.Remove(filepath.Join(env.files.BasePath(), att.StoredName)))

	_, _, _, err = env.attachments.Open(ctx, att.ID)
	assert.ErrorIs(t, err, ErrAttachmentFileMissing)

	_, _, _, err = env.attachments.Open(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrAttachmentNotFound)
}

func TestAttachmentService_CheckPermissivePolicy(t *testing.T) {
	files, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	policy := security.NewUploadPolicy(config.UploadConfig{EnforceAllowList: false})
	svc := NewAttachmentService(nil, files, policy, nil, nil, nil)

	assert.NoError(t, svc.Check([]Upload{UploadFromBytes("tool.exe", []byte("MZ"))}))
	assert.ErrorIs(t, svc.Check([]Upload{UploadFromBytes("", []byte("x"))}), security.ErrEmptyFilename)
}

func TestContactService(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.publisher.On("Publish", mock.Anything)

	_, err := env.contacts.Create(ctx, 1, ContactInput{Name: " "})
	assert.ErrorIs(t, err, domain.ErrNameRequired)

	_, err = env.contacts.Create(ctx, 1, ContactInput{Name: "Bad Mail", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	contact, err := env.contacts.Create(ctx, 1, ContactInput{Name: "John Smith", Organization: "Acme"})
	require.NoError(t, err)

	updated, err := env.contacts.Update(ctx, 1, contact.ID, ContactInput{Name: "John Smith", Organization: "Acme Ltd"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", updated.Organization)

	page, err := env.contacts.List(ctx, "acme", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	input := validInput()
	input.SenderExternal = ""
	input.SenderContactID = &contact.ID
	_, err = env.correspondence.Create(ctx, 1, input, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, env.contacts.Delete(ctx, 1, contact.ID), ErrContactInUse)

	free, err := env.contacts.Create(ctx, 1, ContactInput{Name: "Unused"})
	require.NoError(t, err)
	require.NoError(t, env.contacts.Delete(ctx, 1, free.ID))

	_, err = env.contacts.Get(ctx, free.ID)
	assert.ErrorIs(t, err, storage.ErrContactNotFound)
}

func TestDepartmentService(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.publisher.On("Publish", mock.Anything)

	missing := uint(77)
	_, err := env.departments.Create(ctx, 1, DepartmentInput{Name: "Registry", HeadID: &missing})
	assert.ErrorIs(t, err, ErrHeadNotFound)

	dept, err := env.departments.Create(ctx, 1, DepartmentInput{Name: "Registry"})
	require.NoError(t, err)

	input := validInput()
	input.DepartmentID = &dept.ID
	_, err = env.correspondence.Create(ctx, 1, input, nil)
	require.NoError(t, err)
	env.publisher.AssertCalled(t, "Publish", mock.MatchedBy(func(e domain.Event) bool {
		return e.Data.Department == "Registry"
	}))

	assert.ErrorIs(t, env.departments.Delete(ctx, 1, dept.ID), ErrDepartmentInUse)

	other, err := env.departments.Create(ctx, 1, DepartmentInput{Name: "Archive"})
	require.NoError(t, err)
	renamed, err := env.departments.Update(ctx, 1, other.ID, DepartmentInput{Name: "Archives"})
	require.NoError(t, err)
	assert.Equal(t, "Archives", renamed.Name)
	require.NoError(t, env.departments.Delete(ctx, 1, other.ID))

	list, err := env.departments.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSettingService(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.settings.Seed(ctx))
	assert.Equal(t, "Correspondence Office", env.settings.OrgName(ctx))
	assert.Equal(t, 20, env.settings.ItemsPerPage(ctx))

	_, err := env.settings.Set(ctx, 1, domain.SettingItemsPerPage, "0", "")
	assert.ErrorIs(t, err, ErrInvalidSetting)

	_, err = env.settings.Set(ctx, 1, " ", "x", "")
	assert.ErrorIs(t, err, domain.ErrSettingKeyEmpty)

	setting, err := env.settings.Set(ctx, 1, domain.SettingItemsPerPage, "50", "")
	require.NoError(t, err)
	assert.Equal(t, "列表每页条数", setting.Description, "未提供说明时保留原说明")
	assert.Equal(t, 50, env.settings.ItemsPerPage(ctx), "写入后缓存应失效")

	_, err = env.settings.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrSettingNotFound)
	assert.Equal(t, "fallback", env.settings.Value(ctx, "missing", "fallback"))
}

func TestOrphanSweeper(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.publisher.On("Publish", mock.Anything)

	c, err := env.correspondence.Create(ctx, 1, validInput(), []Upload{
		UploadFromBytes("kept.txt", []byte("kept")),
	})
	require.NoError(t, err)

	_, err = env.files.Save("orphan.txt", strings.NewReader("orphan"), 0)
	require.NoError(t, err)

	sweeper := NewOrphanSweeper(env.store, env.files, time.Hour, nil, nil)

	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "宽限期内的文件保留")

	sweeper.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	removed, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{c.Attachments[0].StoredName}, diskNames(t, env.files))
}
