package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"resumatch/internal/api/middleware"
	"resumatch/internal/database"
	"resumatch/internal/resume"
	"resumatch/internal/storage"
	"resumatch/internal/tasks"
)

var errInvalidResumeID = errors.New("invalid resume id")

// ResumeHandler 负责处理与简历相关的 API 请求。
type ResumeHandler struct {
	resumeService *resume.Service
	asynqClient   *asynq.Client
	storage       *storage.Client
	logger        *slog.Logger
	clamdAddr     string
	maxUploadSize int64
}

// NewResumeHandler 构造 ResumeHandler。
func NewResumeHandler(resumeService *resume.Service, asynqClient *asynq.Client, storageClient *storage.Client, logger *slog.Logger, clamdAddr string, maxUploadSize int64) *ResumeHandler {
	return &ResumeHandler{
		resumeService: resumeService,
		asynqClient:   asynqClient,
		storage:       storageClient,
		logger:        logger,
		clamdAddr:     clamdAddr,
		maxUploadSize: maxUploadSize,
	}
}

type createResumeRequest struct {
	Title            string  `json:"title" binding:"required,max=255"`
	Version          *string `json:"version"`
	OriginalFilename *string `json:"original_filename"`
	FileSize         *int64  `json:"file_size"`
	FileType         *string `json:"file_type"`
}

type updateResumeRequest struct {
	Title            *string `json:"title"`
	Version          *string `json:"version"`
	Status           *string `json:"status"`
	OriginalFilename *string `json:"original_filename"`
	FileSize         *int64  `json:"file_size"`
	FileType         *string `json:"file_type"`
}

type resumeResponse struct {
	ResumeID          string     `json:"resume_id"`
	ResumeGroupID     string     `json:"resume_group_id"`
	UserID            string     `json:"user_id"`
	Title             string     `json:"title"`
	VersionNumber     int        `json:"version_number"`
	Version           string     `json:"version"`
	IsCurrent         bool       `json:"is_current"`
	Status            string     `json:"status"`
	OriginalFilename  *string    `json:"original_filename,omitempty"`
	FileSize          *int64     `json:"file_size,omitempty"`
	FileType          *string    `json:"file_type,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastAnalyzedAt    *time.Time `json:"last_analyzed_at,omitempty"`
	AnalysisCount     int        `json:"analysis_count"`
	AverageMatchScore *float64   `json:"average_match_score,omitempty"`
}

type resumeListResponse struct {
	Resumes       []resumeResponse `json:"resumes"`
	TotalCount    int              `json:"total_count"`
	ActiveCount   int              `json:"active_count"`
	DraftCount    int              `json:"draft_count"`
	ArchivedCount int              `json:"archived_count"`
}

// CreateResume 新建一条简历版本链。
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	var req createResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userUUID, ok := callerUUID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	created, err := h.resumeService.Create(c.Request.Context(), userUUID, resume.CreateInput{
		Title:            req.Title,
		Version:          req.Version,
		OriginalFilename: req.OriginalFilename,
		FileSize:         req.FileSize,
		FileType:         req.FileType,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	h.enqueueAnalysis(c, created)
	c.JSON(http.StatusCreated, newResumeResponse(*created))
}

// GetResume 返回指定版本行，仅所有者可读。
func (h *ResumeHandler) GetResume(c *gin.Context) {
	userUUID, ok := callerUUID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resumeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, errInvalidResumeID.Error())
		return
	}

	row, err := h.resumeService.Get(c.Request.Context(), userUUID, resumeID)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newResumeResponse(*row))
}

// ListResumes 列出用户全部简历，可按状态过滤。
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	userUUID, ok := callerUUID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	status := c.Query("status")
	switch status {
	case "", database.ResumeStatusDraft, database.ResumeStatusActive, database.ResumeStatusArchived:
	default:
		BadRequest(c, "invalid status filter")
		return
	}

	result, err := h.resumeService.List(c.Request.Context(), userUUID, status)
	if err != nil {
		RespondError(c, err)
		return
	}

	items := make([]resumeResponse, 0, len(result.Resumes))
	for _, r := range result.Resumes {
		items = append(items, newResumeResponse(r))
	}

	c.JSON(http.StatusOK, resumeListResponse{
		Resumes:       items,
		TotalCount:    result.TotalCount,
		ActiveCount:   result.ActiveCount,
		DraftCount:    result.DraftCount,
		ArchivedCount: result.ArchivedCount,
	})
}

// UpdateResume 创建新版本承接变更，旧版本保留在版本链中。
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	var req updateResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.Status != nil {
		switch *req.Status {
		case database.ResumeStatusDraft, database.ResumeStatusActive, database.ResumeStatusArchived:
		default:
			BadRequest(c, "invalid status")
			return
		}
	}

	userUUID, ok := callerUUID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resumeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, errInvalidResumeID.Error())
		return
	}

	next, err := h.resumeService.Update(c.Request.Context(), userUUID, resumeID, resume.UpdateInput{
		Title:            req.Title,
		Version:          req.Version,
		Status:           req.Status,
		OriginalFilename: req.OriginalFilename,
		FileSize:         req.FileSize,
		FileType:         req.FileType,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	h.enqueueAnalysis(c, next)
	c.JSON(http.StatusOK, newResumeResponse(*next))
}

// DeleteResume 删除指定版本行，同组其余版本不受影响。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	userUUID, ok := callerUUID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resumeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, errInvalidResumeID.Error())
		return
	}

	row, err := h.resumeService.Get(c.Request.Context(), userUUID, resumeID)
	if err != nil {
		RespondError(c, err)
		return
	}

	if err := h.resumeService.Delete(c.Request.Context(), userUUID, resumeID); err != nil {
		RespondError(c, err)
		return
	}

	// 对象回收尽力而为：同组其他版本仍引用同一对象键时保留文件
	if h.storage != nil && row.ObjectKey != "" {
		inUse, err := h.resumeService.ObjectKeyInUse(c.Request.Context(), row.ObjectKey)
		if err == nil && !inUse {
			if err := h.storage.DeleteObject(c.Request.Context(), row.ObjectKey); err != nil {
				h.loggerFromContext(c).Warn("delete resume object failed",
					slog.String("object_key", row.ObjectKey),
					slog.Any("error", err),
				)
			}
		}
	}

	c.Status(http.StatusNoContent)
}

// UploadResumeFile 接收简历原始文件：先经 clamd 扫描，再入对象存储，
// 最后把元数据记到版本行并触发匹配分析。
func (h *ResumeHandler) UploadResumeFile(c *gin.Context) {
	userUUID, ok := callerUUID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resumeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, errInvalidResumeID.Error())
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	logger := h.loggerFromContext(c).With(slog.String("resume_id", resumeID.String()))

	// 所有权在入库前校验，避免为他人的简历白白上传对象。
	if _, err := h.resumeService.Get(c.Request.Context(), userUUID, resumeID); err != nil {
		RespondError(c, err)
		return
	}

	if h.clamdAddr != "" {
		fileReader, err := file.Open()
		if err != nil {
			Internal(c, "failed to open file")
			return
		}

		clamdClient := clamd.NewClamd(h.clamdAddr)
		abortChan := make(chan bool)
		scanChan, err := clamdClient.ScanStream(fileReader, abortChan)
		fileReader.Close()
		if err != nil {
			logger.Error("scan file failed", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
		defer close(abortChan)

		for result := range scanChan {
			if result.Status != clamd.RES_OK {
				BadRequest(c, "malicious file detected")
				return
			}
		}
	}

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to reopen file")
		return
	}
	defer fileReader.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectKey := fmt.Sprintf("resume-files/%s/%s%s", userUUID, uuid.NewString(), filepath.Ext(file.Filename))

	if _, err := h.storage.UploadFile(c.Request.Context(), objectKey, fileReader, file.Size, contentType); err != nil {
		logger.Error("upload file failed", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	row, err := h.resumeService.AttachFile(c.Request.Context(), userUUID, resumeID, resume.FileInput{
		OriginalFilename: file.Filename,
		FileSize:         file.Size,
		FileType:         contentType,
		ObjectKey:        objectKey,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	h.enqueueAnalysis(c, row)
	c.JSON(http.StatusCreated, newResumeResponse(*row))
}

// GetDownloadLink 生成简历原始文件的预签名下载链接。
func (h *ResumeHandler) GetDownloadLink(c *gin.Context) {
	userUUID, ok := callerUUID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resumeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, errInvalidResumeID.Error())
		return
	}

	row, err := h.resumeService.Get(c.Request.Context(), userUUID, resumeID)
	if err != nil {
		RespondError(c, err)
		return
	}

	if row.ObjectKey == "" {
		Conflict(c, "no file uploaded for this version")
		return
	}

	signedURL, err := h.storage.GeneratePresignedURL(c.Request.Context(), row.ObjectKey, 5*time.Minute)
	if err != nil {
		h.loggerFromContext(c).Error("generate download link failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// enqueueAnalysis 异步触发匹配分析，失败只记日志，不影响主流程。
func (h *ResumeHandler) enqueueAnalysis(c *gin.Context, row *database.Resume) {
	if h.asynqClient == nil {
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewMatchAnalyzeTask(row.ResumeID.String(), row.UserID.String(), correlationID)
	if err != nil {
		h.loggerFromContext(c).Error("create analyze task failed", slog.Any("error", err))
		return
	}

	if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(3)); err != nil {
		h.loggerFromContext(c).Error("enqueue analyze task failed", slog.Any("error", err))
	}
}

func (h *ResumeHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

func newResumeResponse(row database.Resume) resumeResponse {
	return resumeResponse{
		ResumeID:          row.ResumeID.String(),
		ResumeGroupID:     row.ResumeGroupID.String(),
		UserID:            row.UserID.String(),
		Title:             row.Title,
		VersionNumber:     row.VersionNumber,
		Version:           row.Version,
		IsCurrent:         row.IsCurrent,
		Status:            row.Status,
		OriginalFilename:  row.OriginalFilename,
		FileSize:          row.FileSize,
		FileType:          row.FileType,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
		LastAnalyzedAt:    row.LastAnalyzedAt,
		AnalysisCount:     row.AnalysisCount,
		AverageMatchScore: row.AverageMatchScore,
	}
}
