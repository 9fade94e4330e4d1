package resume

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"resumatch/internal/database"
	"resumatch/internal/errcode"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.Resume{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewService(db, nil), db
}

func strPtr(s string) *string { return &s }

func TestCreate_Defaults(t *testing.T) {
	svc, _ := newTestService(t)
	userID := uuid.New()

	row, err := svc.Create(context.Background(), userID, CreateInput{Title: "Backend Engineer"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if row.VersionNumber != 1 {
		t.Fatalf("expected version_number 1, got %d", row.VersionNumber)
	}
	if row.Version != "v1.0" {
		t.Fatalf("expected version label v1.0, got %q", row.Version)
	}
	if !row.IsCurrent {
		t.Fatal("first version must be current")
	}
	if row.Status != database.ResumeStatusDraft {
		t.Fatalf("expected draft status, got %q", row.Status)
	}
	if row.UserID != userID {
		t.Fatal("owner must be recorded")
	}
}

func TestUpdate_CreatesNewVersion(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.Create(ctx, userID, CreateInput{Title: "Backend Engineer"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	second, err := svc.Update(ctx, userID, first.ResumeID, UpdateInput{Title: strPtr("Senior Backend Engineer")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if second.ResumeID == first.ResumeID {
		t.Fatal("update must insert a new row, not rewrite in place")
	}
	if second.ResumeGroupID != first.ResumeGroupID {
		t.Fatal("new version must stay in the same group")
	}
	if second.VersionNumber != 2 {
		t.Fatalf("expected version_number 2, got %d", second.VersionNumber)
	}
	if second.Version != "v2.0" {
		t.Fatalf("expected version label v2.0, got %q", second.Version)
	}
	if second.Title != "Senior Backend Engineer" {
		t.Fatalf("unexpected title %q", second.Title)
	}

	var old database.Resume
	if err := db.Where("resume_id = ?", first.ResumeID).First(&old).Error; err != nil {
		t.Fatalf("reload first version: %v", err)
	}
	if old.IsCurrent {
		t.Fatal("previous version must lose the current flag")
	}
	if old.Title != "Backend Engineer" {
		t.Fatal("previous version must remain untouched")
	}
}

func TestUpdate_CarriesForwardUnchangedFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	size := int64(2048)
	first, err := svc.Create(ctx, userID, CreateInput{
		Title:            "Backend Engineer",
		OriginalFilename: strPtr("resume.pdf"),
		FileSize:         &size,
		FileType:         strPtr("application/pdf"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	second, err := svc.Update(ctx, userID, first.ResumeID, UpdateInput{Status: strPtr(database.ResumeStatusActive)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if second.Status != database.ResumeStatusActive {
		t.Fatalf("expected active status, got %q", second.Status)
	}
	if second.Title != "Backend Engineer" {
		t.Fatal("title must carry forward")
	}
	if second.OriginalFilename == nil || *second.OriginalFilename != "resume.pdf" {
		t.Fatal("file metadata must carry forward")
	}
	if second.FileSize == nil || *second.FileSize != size {
		t.Fatal("file size must carry forward")
	}
}

func TestUpdate_ChainKeepsSingleCurrent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	row, err := svc.Create(ctx, userID, CreateInput{Title: "v1 title"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	groupID := row.ResumeGroupID

	const updates = 3
	for i := 0; i < updates; i++ {
		row, err = svc.Update(ctx, userID, row.ResumeID, UpdateInput{})
		if err != nil {
			t.Fatalf("update %d: %v", i+1, err)
		}
	}

	if row.VersionNumber != updates+1 {
		t.Fatalf("expected version_number %d, got %d", updates+1, row.VersionNumber)
	}

	var total, current int64
	if err := db.Model(&database.Resume{}).Where("resume_group_id = ?", groupID).Count(&total).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if err := db.Model(&database.Resume{}).Where("resume_group_id = ? AND is_current = ?", groupID, true).Count(&current).Error; err != nil {
		t.Fatalf("count current rows: %v", err)
	}
	if total != updates+1 {
		t.Fatalf("expected %d rows in chain, got %d", updates+1, total)
	}
	if current != 1 {
		t.Fatalf("expected exactly one current row, got %d", current)
	}
}

func TestUpdate_StaleVersionKeepsSingleCurrent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.Create(ctx, userID, CreateInput{Title: "v1 content"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.Update(ctx, userID, first.ResumeID, UpdateInput{Title: strPtr("v2 content")})
	if err != nil {
		t.Fatalf("update to v2: %v", err)
	}

	// 再次更新已非 current 的 v1 行：不得出现第二行 current，也不得复用版本号
	third, err := svc.Update(ctx, userID, first.ResumeID, UpdateInput{})
	if err != nil {
		t.Fatalf("update stale version: %v", err)
	}

	if third.VersionNumber != 3 {
		t.Fatalf("expected version_number 3, got %d", third.VersionNumber)
	}
	if third.Version != "v3.0" {
		t.Fatalf("expected version label v3.0, got %q", third.Version)
	}
	if third.Title != "v1 content" {
		t.Fatalf("stale update must carry forward the addressed version, got %q", third.Title)
	}

	var current []database.Resume
	if err := db.Where("resume_group_id = ? AND is_current = ?", first.ResumeGroupID, true).Find(&current).Error; err != nil {
		t.Fatalf("load current rows: %v", err)
	}
	if len(current) != 1 {
		t.Fatalf("expected exactly one current row, got %d", len(current))
	}
	if current[0].ResumeID != third.ResumeID {
		t.Fatal("the newest version must hold the current flag")
	}

	var old database.Resume
	if err := db.Where("resume_id = ?", second.ResumeID).First(&old).Error; err != nil {
		t.Fatalf("reload second version: %v", err)
	}
	if old.IsCurrent {
		t.Fatal("previous current row must be flipped even when another row was addressed")
	}

	var versions []int
	if err := db.Model(&database.Resume{}).
		Where("resume_group_id = ?", first.ResumeGroupID).
		Order("version_number").
		Pluck("version_number", &versions).Error; err != nil {
		t.Fatalf("load version numbers: %v", err)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] == versions[i-1] {
			t.Fatalf("version numbers must never repeat, got %v", versions)
		}
	}
}

func TestGet_DeniesForeignOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	stranger := uuid.New()

	row, err := svc.Create(ctx, owner, CreateInput{Title: "Private"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, stranger, row.ResumeID); !errors.Is(err, errcode.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if _, err := svc.Update(ctx, stranger, row.ResumeID, UpdateInput{Title: strPtr("hijacked")}); !errors.Is(err, errcode.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied on update, got %v", err)
	}
	if err := svc.Delete(ctx, stranger, row.ResumeID); !errors.Is(err, errcode.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied on delete, got %v", err)
	}
}

func TestGet_UnknownResume(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Get(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, errcode.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_RemovesSingleVersion(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.Create(ctx, userID, CreateInput{Title: "Chained"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.Update(ctx, userID, first.ResumeID, UpdateInput{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := svc.Delete(ctx, userID, first.ResumeID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var remaining int64
	if err := db.Model(&database.Resume{}).Where("resume_group_id = ?", first.ResumeGroupID).Count(&remaining).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected sibling version to survive, got %d rows", remaining)
	}

	if _, err := svc.Get(ctx, userID, second.ResumeID); err != nil {
		t.Fatalf("surviving version must stay readable: %v", err)
	}
}

func TestList_CountsFilteredSet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := svc.Create(ctx, userID, CreateInput{Title: "Draft"}); err != nil {
		t.Fatalf("create draft: %v", err)
	}
	active, err := svc.Create(ctx, userID, CreateInput{Title: "Active"})
	if err != nil {
		t.Fatalf("create active: %v", err)
	}
	if _, err := svc.Update(ctx, userID, active.ResumeID, UpdateInput{Status: strPtr(database.ResumeStatusActive)}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	// 另一个用户的数据不得混入
	if _, err := svc.Create(ctx, uuid.New(), CreateInput{Title: "Foreign"}); err != nil {
		t.Fatalf("create foreign: %v", err)
	}

	all, err := svc.List(ctx, userID, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if all.TotalCount != 3 {
		t.Fatalf("expected 3 rows, got %d", all.TotalCount)
	}
	if all.DraftCount != 2 || all.ActiveCount != 1 || all.ArchivedCount != 0 {
		t.Fatalf("unexpected counts: draft=%d active=%d archived=%d", all.DraftCount, all.ActiveCount, all.ArchivedCount)
	}

	drafts, err := svc.List(ctx, userID, database.ResumeStatusDraft)
	if err != nil {
		t.Fatalf("list drafts: %v", err)
	}
	if drafts.TotalCount != 2 || drafts.DraftCount != 2 || drafts.ActiveCount != 0 {
		t.Fatalf("filtered counts must cover the filtered set only: total=%d draft=%d active=%d",
			drafts.TotalCount, drafts.DraftCount, drafts.ActiveCount)
	}
}

func TestAttachFileAndRecordAnalysis(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	row, err := svc.Create(ctx, userID, CreateInput{Title: "With File"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.AttachFile(ctx, userID, row.ResumeID, FileInput{
		OriginalFilename: "resume.pdf",
		FileSize:         1024,
		FileType:         "application/pdf",
		ObjectKey:        "resume-files/u/abc.pdf",
	})
	if err != nil {
		t.Fatalf("attach file: %v", err)
	}
	if updated.ObjectKey != "resume-files/u/abc.pdf" {
		t.Fatalf("unexpected object key %q", updated.ObjectKey)
	}

	if err := svc.RecordAnalysis(ctx, row.ResumeID, 62.5); err != nil {
		t.Fatalf("record analysis: %v", err)
	}

	reloaded, err := svc.Get(ctx, userID, row.ResumeID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AnalysisCount != 1 {
		t.Fatalf("expected analysis_count 1, got %d", reloaded.AnalysisCount)
	}
	if reloaded.LastAnalyzedAt == nil {
		t.Fatal("last_analyzed_at must be set")
	}
	if reloaded.AverageMatchScore == nil || *reloaded.AverageMatchScore != 62.5 {
		t.Fatalf("unexpected average score %v", reloaded.AverageMatchScore)
	}
}

func TestObjectKeyInUse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	row, err := svc.Create(ctx, userID, CreateInput{Title: "With File"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.AttachFile(ctx, userID, row.ResumeID, FileInput{
		OriginalFilename: "resume.pdf",
		FileSize:         1024,
		FileType:         "application/pdf",
		ObjectKey:        "resume-files/u/shared.pdf",
	}); err != nil {
		t.Fatalf("attach file: %v", err)
	}

	// 新版本沿用旧版本的对象键
	second, err := svc.Update(ctx, userID, row.ResumeID, UpdateInput{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	inUse, err := svc.ObjectKeyInUse(ctx, "resume-files/u/shared.pdf")
	if err != nil {
		t.Fatalf("object key in use: %v", err)
	}
	if !inUse {
		t.Fatal("expected key to be referenced")
	}

	if err := svc.Delete(ctx, userID, row.ResumeID); err != nil {
		t.Fatalf("delete first version: %v", err)
	}
	inUse, err = svc.ObjectKeyInUse(ctx, "resume-files/u/shared.pdf")
	if err != nil {
		t.Fatalf("object key in use: %v", err)
	}
	if !inUse {
		t.Fatal("sibling version still references the key")
	}

	if err := svc.Delete(ctx, userID, second.ResumeID); err != nil {
		t.Fatalf("delete second version: %v", err)
	}
	inUse, err = svc.ObjectKeyInUse(ctx, "resume-files/u/shared.pdf")
	if err != nil {
		t.Fatalf("object key in use: %v", err)
	}
	if inUse {
		t.Fatal("expected key to be unreferenced after last version is gone")
	}
}
