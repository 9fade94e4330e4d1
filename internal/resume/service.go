package resume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resumatch/internal/database"
	"resumatch/internal/errcode"
)

// Service 维护简历版本链。
// 核心不变量：同一 ResumeGroupID 下任一时刻至多一行 IsCurrent=true；
// VersionNumber 逐次加一、永不复用；更新以"翻旧插新"的事务实现，绝不原地改写。
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewService 构造简历服务。
func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, logger: logger}
}

// ListResult 汇总用户的简历与各状态计数，计数基于过滤后的结果集。
type ListResult struct {
	Resumes       []database.Resume
	TotalCount    int
	ActiveCount   int
	DraftCount    int
	ArchivedCount int
}

// Create 新建一条版本链：version_number=1、is_current=true、状态为草稿。
func (s *Service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*database.Resume, error) {
	version := "v1.0"
	if input.Version != nil && *input.Version != "" {
		version = *input.Version
	}

	now := time.Now().UTC()
	row := database.Resume{
		ResumeID:         uuid.New(),
		ResumeGroupID:    uuid.New(),
		UserID:           userID,
		Title:            input.Title,
		VersionNumber:    1,
		Version:          version,
		IsCurrent:        true,
		Status:           database.ResumeStatusDraft,
		OriginalFilename: input.OriginalFilename,
		FileSize:         input.FileSize,
		FileType:         input.FileType,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logger.Error("create resume failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}

	s.logger.Info("resume created",
		slog.String("resume_id", row.ResumeID.String()),
		slog.String("group_id", row.ResumeGroupID.String()),
	)
	return &row, nil
}

// Get 返回指定版本行，并校验请求方是否为所有者。
func (s *Service) Get(ctx context.Context, userID, resumeID uuid.UUID) (*database.Resume, error) {
	row, err := s.find(ctx, resumeID)
	if err != nil {
		return nil, err
	}
	if row.UserID != userID {
		return nil, errcode.ErrAccessDenied
	}
	return row, nil
}

// Update 以新行承接变更。读行、翻旧、插新在同一事务内完成：
// 被更新的行持行锁重读，取消有效标记按整组清扫，
// 新行的 version_number 取组内最大值加一。
// 由此即便更新的是旧版本行、或两次更新并发进行，
// 组内也始终至多一行 current，版本号永不复用。
func (s *Service) Update(ctx context.Context, userID, resumeID uuid.UUID, input UpdateInput) (*database.Resume, error) {
	var next database.Resume

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing database.Resume
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("resume_id = ?", resumeID).
			First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errcode.ErrNotFound
			}
			return err
		}
		if existing.UserID != userID {
			return errcode.ErrAccessDenied
		}

		var maxVersionNumber int
		if err := tx.Model(&database.Resume{}).
			Where("resume_group_id = ?", existing.ResumeGroupID).
			Select("COALESCE(MAX(version_number), 0)").
			Scan(&maxVersionNumber).Error; err != nil {
			return err
		}

		newVersionNumber := maxVersionNumber + 1
		newVersion := fmt.Sprintf("v%d.0", newVersionNumber)
		if input.Version != nil && *input.Version != "" {
			newVersion = *input.Version
		}

		now := time.Now().UTC()
		next = database.Resume{
			ResumeID:          uuid.New(),
			ResumeGroupID:     existing.ResumeGroupID,
			UserID:            existing.UserID,
			Title:             existing.Title,
			VersionNumber:     newVersionNumber,
			Version:           newVersion,
			IsCurrent:         true,
			Status:            existing.Status,
			OriginalFilename:  existing.OriginalFilename,
			FileSize:          existing.FileSize,
			FileType:          existing.FileType,
			ObjectKey:         existing.ObjectKey,
			CreatedAt:         now,
			UpdatedAt:         now,
			LastAnalyzedAt:    existing.LastAnalyzedAt,
			AnalysisCount:     existing.AnalysisCount,
			AverageMatchScore: existing.AverageMatchScore,
		}
		if input.Title != nil {
			next.Title = *input.Title
		}
		if input.Status != nil {
			next.Status = *input.Status
		}
		if input.OriginalFilename != nil {
			next.OriginalFilename = input.OriginalFilename
		}
		if input.FileSize != nil {
			next.FileSize = input.FileSize
		}
		if input.FileType != nil {
			next.FileType = input.FileType
		}

		if err := tx.Model(&database.Resume{}).
			Where("resume_group_id = ? AND is_current = ?", existing.ResumeGroupID, true).
			Updates(map[string]any{"is_current": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Create(&next).Error
	})
	if err != nil {
		if errors.Is(err, errcode.ErrNotFound) || errors.Is(err, errcode.ErrAccessDenied) {
			return nil, err
		}
		s.logger.Error("update resume failed",
			slog.String("resume_id", resumeID.String()),
			slog.Any("error", err),
		)
		return nil, errcode.ErrInternal
	}

	s.logger.Info("resume version created",
		slog.String("group_id", next.ResumeGroupID.String()),
		slog.Int("version_number", next.VersionNumber),
	)
	return &next, nil
}

// Delete 删除指定版本行，不触碰同组的其余版本。
func (s *Service) Delete(ctx context.Context, userID, resumeID uuid.UUID) error {
	row, err := s.Get(ctx, userID, resumeID)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Where("resume_id = ?", row.ResumeID).Delete(&database.Resume{})
	if result.Error != nil {
		s.logger.Error("delete resume failed", slog.Any("error", result.Error))
		return errcode.ErrInternal
	}
	if result.RowsAffected == 0 {
		return errcode.ErrNotFound
	}
	return nil
}

// List 返回用户的简历，可按状态过滤；计数针对过滤后的集合。
func (s *Service) List(ctx context.Context, userID uuid.UUID, status string) (*ListResult, error) {
	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var rows []database.Resume
	if err := query.Find(&rows).Error; err != nil {
		s.logger.Error("list resumes failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}

	result := ListResult{
		Resumes:    rows,
		TotalCount: len(rows),
	}
	for _, r := range rows {
		switch r.Status {
		case database.ResumeStatusActive:
			result.ActiveCount++
		case database.ResumeStatusDraft:
			result.DraftCount++
		case database.ResumeStatusArchived:
			result.ArchivedCount++
		}
	}
	return &result, nil
}

// AttachFile 记录上传文件的元数据与对象键。
func (s *Service) AttachFile(ctx context.Context, userID, resumeID uuid.UUID, file FileInput) (*database.Resume, error) {
	row, err := s.Get(ctx, userID, resumeID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"original_filename": file.OriginalFilename,
		"file_size":         file.FileSize,
		"file_type":         file.FileType,
		"object_key":        file.ObjectKey,
	}
	if err := s.db.WithContext(ctx).Model(row).Updates(updates).Error; err != nil {
		s.logger.Error("attach file failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}

	return s.find(ctx, resumeID)
}

// RecordAnalysis 由匹配分析任务回写分析结果。
func (s *Service) RecordAnalysis(ctx context.Context, resumeID uuid.UUID, averageScore float64) error {
	row, err := s.find(ctx, resumeID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"last_analyzed_at":    now,
		"analysis_count":      row.AnalysisCount + 1,
		"average_match_score": averageScore,
	}
	if err := s.db.WithContext(ctx).Model(row).Updates(updates).Error; err != nil {
		s.logger.Error("record analysis failed", slog.Any("error", err))
		return errcode.ErrInternal
	}
	return nil
}

// ObjectKeyInUse 判断对象键是否仍被任一版本行引用，
// 供删除流程决定是否回收对象存储中的文件。
func (s *Service) ObjectKeyInUse(ctx context.Context, objectKey string) (bool, error) {
	if objectKey == "" {
		return false, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&database.Resume{}).
		Where("object_key = ?", objectKey).
		Count(&count).Error; err != nil {
		s.logger.Error("count object key references failed", slog.Any("error", err))
		return false, errcode.ErrInternal
	}
	return count > 0, nil
}

func (s *Service) find(ctx context.Context, resumeID uuid.UUID) (*database.Resume, error) {
	var row database.Resume
	err := s.db.WithContext(ctx).Where("resume_id = ?", resumeID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errcode.ErrNotFound
	case err != nil:
		s.logger.Error("query resume failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}
	return &row, nil
}
