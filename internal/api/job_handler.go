package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"resumatch/internal/api/middleware"
	"resumatch/internal/database"
	"resumatch/internal/job"
)

// JobHandler 负责处理职位描述相关的 API 请求。
// 读取对外公开，增删改要求调用方身份并由服务层做所有权判断。
type JobHandler struct {
	jobService *job.Service
	logger     *slog.Logger
}

// NewJobHandler 构造 JobHandler。
func NewJobHandler(jobService *job.Service, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobService: jobService, logger: logger}
}

type createJobRequest struct {
	CompanyID       *uuid.UUID `json:"company_id"`
	Title           string     `json:"title" binding:"required,max=255"`
	Location        *string    `json:"location"`
	JobType         *string    `json:"job_type"`
	SalaryRange     *string    `json:"salary_range"`
	ExperienceLevel *string    `json:"experience_level"`
	Description     string     `json:"description" binding:"required"`
	Requirements    []string   `json:"requirements"`
	Benefits        []string   `json:"benefits"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

type updateJobRequest struct {
	Title           *string    `json:"title"`
	Location        *string    `json:"location"`
	JobType         *string    `json:"job_type"`
	SalaryRange     *string    `json:"salary_range"`
	ExperienceLevel *string    `json:"experience_level"`
	Description     *string    `json:"description"`
	Requirements    []string   `json:"requirements"`
	Benefits        []string   `json:"benefits"`
	ExpiresAt       *time.Time `json:"expires_at"`
	IsActive        *bool      `json:"is_active"`
}

type jobResponse struct {
	JobID            string     `json:"job_id"`
	CompanyID        *uuid.UUID `json:"company_id,omitempty"`
	Title            string     `json:"title"`
	Location         *string    `json:"location,omitempty"`
	JobType          *string    `json:"job_type,omitempty"`
	SalaryRange      *string    `json:"salary_range,omitempty"`
	ExperienceLevel  *string    `json:"experience_level,omitempty"`
	Description      string     `json:"description"`
	Requirements     []string   `json:"requirements"`
	Benefits         []string   `json:"benefits"`
	PostedAt         time.Time  `json:"posted_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	IsActive         bool       `json:"is_active"`
	ViewCount        int        `json:"view_count"`
	ApplicationCount int        `json:"application_count"`
}

// CreateJob 新建职位，创建者身份来自访问令牌。
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	requesterID, _ := middleware.UserUUIDFromContext(c)

	created, err := h.jobService.Create(c.Request.Context(), job.CreateInput{
		CompanyID:       req.CompanyID,
		Title:           req.Title,
		Location:        req.Location,
		JobType:         req.JobType,
		SalaryRange:     req.SalaryRange,
		ExperienceLevel: req.ExperienceLevel,
		Description:     req.Description,
		Requirements:    req.Requirements,
		Benefits:        req.Benefits,
		ExpiresAt:       req.ExpiresAt,
	}, requesterID)
	if err != nil {
		h.loggerFromContext(c).Info("create job failed", slog.Any("error", err))
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newJobResponse(*created))
}

// GetJob 返回职位详情。职位对外公开可读，无需认证。
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid job id")
		return
	}

	row, err := h.jobService.Get(c.Request.Context(), jobID)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newJobResponse(*row))
}

// UpdateJob 部分更新职位，仅创建者可操作。
func (h *JobHandler) UpdateJob(c *gin.Context) {
	var req updateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid job id")
		return
	}

	requesterID, _ := middleware.UserUUIDFromContext(c)

	updated, err := h.jobService.Update(c.Request.Context(), jobID, job.UpdateInput{
		Title:           req.Title,
		Location:        req.Location,
		JobType:         req.JobType,
		SalaryRange:     req.SalaryRange,
		ExperienceLevel: req.ExperienceLevel,
		Description:     req.Description,
		Requirements:    req.Requirements,
		Benefits:        req.Benefits,
		ExpiresAt:       req.ExpiresAt,
		IsActive:        req.IsActive,
	}, requesterID)
	if err != nil {
		h.loggerFromContext(c).Info("update job failed",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err),
		)
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newJobResponse(*updated))
}

// DeleteJob 删除职位，仅创建者可操作。
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid job id")
		return
	}

	requesterID, _ := middleware.UserUUIDFromContext(c)

	if err := h.jobService.Delete(c.Request.Context(), jobID, requesterID); err != nil {
		RespondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListMyJobs 列出当前用户创建的全部职位。
func (h *JobHandler) ListMyJobs(c *gin.Context) {
	requesterID, _ := middleware.UserUUIDFromContext(c)

	rows, err := h.jobService.ListByCreator(c.Request.Context(), requesterID)
	if err != nil {
		RespondError(c, err)
		return
	}

	items := make([]jobResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, newJobResponse(row))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": items, "total_count": len(items)})
}

func (h *JobHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

func newJobResponse(row database.JobDescription) jobResponse {
	return jobResponse{
		JobID:            row.JobID.String(),
		CompanyID:        row.CompanyID,
		Title:            row.Title,
		Location:         row.Location,
		JobType:          row.JobType,
		SalaryRange:      row.SalaryRange,
		ExperienceLevel:  row.ExperienceLevel,
		Description:      row.Description,
		Requirements:     job.UnmarshalList(row.Requirements),
		Benefits:         job.UnmarshalList(row.Benefits),
		PostedAt:         row.PostedAt,
		ExpiresAt:        row.ExpiresAt,
		IsActive:         row.IsActive,
		ViewCount:        row.ViewCount,
		ApplicationCount: row.ApplicationCount,
	}
}
