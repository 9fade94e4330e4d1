package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeMatchAnalyze = "match:analyze"
)

// MatchAnalyzePayload 描述一次简历匹配分析所需的最小信息。
type MatchAnalyzePayload struct {
	ResumeID      string `json:"resume_id"`
	UserUUID      string `json:"user_uuid"`
	CorrelationID string `json:"correlation_id"`
}

// NewMatchAnalyzeTask 构造一个新的简历匹配分析任务。
func NewMatchAnalyzeTask(resumeID, userUUID, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(MatchAnalyzePayload{
		ResumeID:      resumeID,
		UserUUID:      userUUID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMatchAnalyze, payload), nil
}
