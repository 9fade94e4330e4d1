package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"resumatch/internal/database"
	"resumatch/internal/errcode"
	"resumatch/internal/identity"
)

// Service 维护职位描述的生命周期。
// 授权锚点是建表时写入的 CreatedByUserID（内部代理键）：
// 请求方标识先经 identity.Resolver 解析，再与存量键比较，解析失败即拒绝。
type Service struct {
	db       *gorm.DB
	resolver *identity.Resolver
	policy   *bluemonday.Policy
	logger   *slog.Logger
}

// NewService 构造职位服务。
func NewService(db *gorm.DB, resolver *identity.Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		resolver: resolver,
		policy:   bluemonday.UGCPolicy(),
		logger:   logger,
	}
}

// CreateInput 描述新建职位所需字段。
type CreateInput struct {
	CompanyID       *uuid.UUID
	Title           string
	Location        *string
	JobType         *string
	SalaryRange     *string
	ExperienceLevel *string
	Description     string
	Requirements    []string
	Benefits        []string
	ExpiresAt       *time.Time
}

// UpdateInput 描述部分更新的可选字段，nil（或 nil 切片）表示不修改。
type UpdateInput struct {
	Title           *string
	Location        *string
	JobType         *string
	SalaryRange     *string
	ExperienceLevel *string
	Description     *string
	Requirements    []string
	Benefits        []string
	ExpiresAt       *time.Time
	IsActive        *bool
}

// Create 新建职位。creatorID 可以是公开 UUID 或内部数字键，
// 为空或无法解析时返回 ErrAuthenticationRequired。
func (s *Service) Create(ctx context.Context, input CreateInput, creatorID string) (*database.JobDescription, error) {
	if creatorID == "" {
		return nil, errcode.ErrAuthenticationRequired
	}
	internalID, ok := s.resolver.ResolveInternalID(ctx, creatorID)
	if !ok {
		return nil, errcode.ErrAuthenticationRequired
	}

	requirements, err := marshalList(s.sanitizeList(input.Requirements))
	if err != nil {
		return nil, errcode.ErrInternal
	}
	benefits, err := marshalList(s.sanitizeList(input.Benefits))
	if err != nil {
		return nil, errcode.ErrInternal
	}

	now := time.Now().UTC()
	row := database.JobDescription{
		JobID:           uuid.New(),
		CompanyID:       input.CompanyID,
		Title:           input.Title,
		Location:        input.Location,
		JobType:         input.JobType,
		SalaryRange:     input.SalaryRange,
		ExperienceLevel: input.ExperienceLevel,
		Description:     s.policy.Sanitize(input.Description),
		Requirements:    requirements,
		Benefits:        benefits,
		PostedAt:        now,
		ExpiresAt:       input.ExpiresAt,
		IsActive:        true,
		CreatedByUserID: internalID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logger.Error("create job failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}

	s.logger.Info("job created", slog.String("job_id", row.JobID.String()))
	return &row, nil
}

// Get 按 ID 返回职位。职位对外公开可读，不做所有权校验，
// 读取同时累加浏览计数。
func (s *Service) Get(ctx context.Context, jobID uuid.UUID) (*database.JobDescription, error) {
	row, err := s.find(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(row).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error; err != nil {
		// 浏览计数失败不阻断读取
		s.logger.Warn("increment view count failed", slog.Any("error", err))
	} else {
		row.ViewCount++
	}

	return row, nil
}

// Update 仅允许创建者更新，且只应用显式提供的字段。
func (s *Service) Update(ctx context.Context, jobID uuid.UUID, input UpdateInput, requesterID string) (*database.JobDescription, error) {
	existing, err := s.find(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, existing, requesterID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Location != nil {
		updates["location"] = *input.Location
	}
	if input.JobType != nil {
		updates["job_type"] = *input.JobType
	}
	if input.SalaryRange != nil {
		updates["salary_range"] = *input.SalaryRange
	}
	if input.ExperienceLevel != nil {
		updates["experience_level"] = *input.ExperienceLevel
	}
	if input.Description != nil {
		updates["description"] = s.policy.Sanitize(*input.Description)
	}
	if input.Requirements != nil {
		requirements, err := marshalList(s.sanitizeList(input.Requirements))
		if err != nil {
			return nil, errcode.ErrInternal
		}
		updates["requirements"] = requirements
	}
	if input.Benefits != nil {
		benefits, err := marshalList(s.sanitizeList(input.Benefits))
		if err != nil {
			return nil, errcode.ErrInternal
		}
		updates["benefits"] = benefits
	}
	if input.ExpiresAt != nil {
		updates["expires_at"] = *input.ExpiresAt
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(existing).Updates(updates).Error; err != nil {
			s.logger.Error("update job failed", slog.Any("error", err))
			return nil, errcode.ErrInternal
		}
	}

	return s.find(ctx, jobID)
}

// Delete 仅允许创建者删除；删除零行按未找到处理。
func (s *Service) Delete(ctx context.Context, jobID uuid.UUID, requesterID string) error {
	existing, err := s.find(ctx, jobID)
	if err != nil {
		return err
	}

	if err := s.authorize(ctx, existing, requesterID); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&database.JobDescription{})
	if result.Error != nil {
		s.logger.Error("delete job failed", slog.Any("error", result.Error))
		return errcode.ErrInternal
	}
	if result.RowsAffected == 0 {
		return errcode.ErrNotFound
	}

	s.logger.Info("job deleted", slog.String("job_id", jobID.String()))
	return nil
}

// ListByCreator 返回请求方创建的全部职位。
func (s *Service) ListByCreator(ctx context.Context, requesterID string) ([]database.JobDescription, error) {
	if requesterID == "" {
		return nil, errcode.ErrAuthenticationRequired
	}
	internalID, ok := s.resolver.ResolveInternalID(ctx, requesterID)
	if !ok {
		return nil, errcode.ErrAuthenticationRequired
	}

	var rows []database.JobDescription
	if err := s.db.WithContext(ctx).
		Where("created_by_user_id = ?", internalID).
		Order("posted_at DESC").
		Find(&rows).Error; err != nil {
		s.logger.Error("list jobs by creator failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}
	return rows, nil
}

// ListActive 返回当前有效的职位，供匹配分析使用。
func (s *Service) ListActive(ctx context.Context) ([]database.JobDescription, error) {
	var rows []database.JobDescription
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&rows).Error; err != nil {
		s.logger.Error("list active jobs failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}
	return rows, nil
}

func (s *Service) authorize(ctx context.Context, row *database.JobDescription, requesterID string) error {
	if requesterID == "" {
		return errcode.ErrAuthenticationRequired
	}
	internalID, ok := s.resolver.ResolveInternalID(ctx, requesterID)
	if !ok {
		return errcode.ErrAuthenticationRequired
	}
	if row.CreatedByUserID != internalID {
		return errcode.ErrNotAuthorized
	}
	return nil
}

func (s *Service) sanitizeList(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, s.policy.Sanitize(v))
	}
	return out
}

func (s *Service) find(ctx context.Context, jobID uuid.UUID) (*database.JobDescription, error) {
	var row database.JobDescription
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errcode.ErrNotFound
	case err != nil:
		s.logger.Error("query job failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}
	return &row, nil
}

func marshalList(values []string) (datatypes.JSON, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// UnmarshalList 将 JSON 列恢复为字符串切片，供响应层使用。
func UnmarshalList(data datatypes.JSON) []string {
	if len(data) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return []string{}
	}
	return out
}
