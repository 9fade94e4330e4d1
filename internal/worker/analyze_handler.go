package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"resumatch/internal/database"
	"resumatch/internal/errcode"
	"resumatch/internal/job"
	"resumatch/internal/resume"
	"resumatch/internal/tasks"
)

// AnalyzeTaskHandler 消费 match:analyze 任务：
// 把简历与当前有效职位做词面匹配，回写平均匹配分，并通知前端。
type AnalyzeTaskHandler struct {
	resumeService *resume.Service
	jobService    *job.Service
	redisClient   redis.UniversalClient
	logger        *slog.Logger
}

// NewAnalyzeTaskHandler 构造分析任务处理器。
func NewAnalyzeTaskHandler(resumeService *resume.Service, jobService *job.Service, redisClient redis.UniversalClient, logger *slog.Logger) *AnalyzeTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeTaskHandler{
		resumeService: resumeService,
		jobService:    jobService,
		redisClient:   redisClient,
		logger:        logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *AnalyzeTaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload tasks.MatchAnalyzePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	logger := h.logger.With(
		slog.String("resume_id", payload.ResumeID),
		slog.String("correlation_id", payload.CorrelationID),
	)

	resumeID, err := uuid.Parse(payload.ResumeID)
	if err != nil {
		logger.Error("invalid resume id in payload", slog.Any("error", err))
		return fmt.Errorf("parse resume id: %w", err)
	}
	userUUID, err := uuid.Parse(payload.UserUUID)
	if err != nil {
		logger.Error("invalid user uuid in payload", slog.Any("error", err))
		return fmt.Errorf("parse user uuid: %w", err)
	}

	row, err := h.resumeService.Get(ctx, userUUID, resumeID)
	if err != nil {
		logger.Warn("load resume for analysis failed", slog.Any("error", err))
		h.notify(ctx, payload, MatchAnalyzeNotifyMessage{
			Status:        "failed",
			ResumeID:      payload.ResumeID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.Code(err),
			ErrorMessage:  err.Error(),
		})
		return err
	}

	jobs, err := h.jobService.ListActive(ctx)
	if err != nil {
		logger.Error("load active jobs failed", slog.Any("error", err))
		return err
	}

	score := averageMatchScore(row, jobs)
	if err := h.resumeService.RecordAnalysis(ctx, resumeID, score); err != nil {
		logger.Error("record analysis failed", slog.Any("error", err))
		return err
	}

	logger.Info("analysis completed",
		slog.Float64("score", score),
		slog.Int("job_count", len(jobs)),
	)

	h.notify(ctx, payload, MatchAnalyzeNotifyMessage{
		Status:        "completed",
		ResumeID:      payload.ResumeID,
		CorrelationID: payload.CorrelationID,
		MatchScore:    score,
		JobCount:      len(jobs),
	})
	return nil
}

func (h *AnalyzeTaskHandler) notify(ctx context.Context, payload tasks.MatchAnalyzePayload, msg MatchAnalyzeNotifyMessage) {
	if h.redisClient == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal notify message failed", slog.Any("error", err))
		return
	}
	channel := "user_notify:" + payload.UserUUID
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		h.logger.Warn("publish notify message failed",
			slog.String("channel", channel),
			slog.Any("error", err),
		)
	}
}

// averageMatchScore 对每个职位计算简历词集的覆盖率，再取均值（0-100）。
// 没有职位时返回 0。
func averageMatchScore(row *database.Resume, jobs []database.JobDescription) float64 {
	if len(jobs) == 0 {
		return 0
	}

	resumeTokens := tokenize(resumeCorpus(row))
	if len(resumeTokens) == 0 {
		return 0
	}

	var total float64
	for _, j := range jobs {
		jobTokens := tokenize(jobCorpus(&j))
		overlap := 0
		for token := range resumeTokens {
			if _, ok := jobTokens[token]; ok {
				overlap++
			}
		}
		total += float64(overlap) / float64(len(resumeTokens))
	}

	return total / float64(len(jobs)) * 100
}

func resumeCorpus(row *database.Resume) string {
	parts := []string{row.Title}
	if row.OriginalFilename != nil {
		parts = append(parts, *row.OriginalFilename)
	}
	return strings.Join(parts, " ")
}

func jobCorpus(row *database.JobDescription) string {
	parts := []string{row.Title, row.Description}
	parts = append(parts, job.UnmarshalList(row.Requirements)...)
	if row.Location != nil {
		parts = append(parts, *row.Location)
	}
	return strings.Join(parts, " ")
}

func tokenize(text string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(field) < 2 {
			continue
		}
		tokens[field] = struct{}{}
	}
	return tokens
}
