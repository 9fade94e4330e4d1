package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 简历版本状态。
const (
	ResumeStatusDraft    = "draft"
	ResumeStatusActive   = "active"
	ResumeStatusArchived = "archived"
)

// User 表示系统中的账号信息。
// 主键为内部自增代理键，UserUUID 为对外暴露的公开标识，
// 所有权比较一律经过 identity.Resolver，不在两种标识之间做隐式转换。
type User struct {
	gorm.Model
	UserUUID     uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Name         string    `gorm:"size:255"`
	Email        string    `gorm:"uniqueIndex;size:255"` // 入库前统一小写
	PasswordHash string    `gorm:"size:255"`
	Phone        *string   `gorm:"size:32"`
	AvatarURL    *string   `gorm:"size:512"`
	Active       bool      `gorm:"default:true"`
}

// Resume 表示一条简历版本记录。
// 同一 ResumeGroupID 下的所有行构成一份逻辑文档的版本链，
// 任一时刻每组至多一行 IsCurrent=true；更新永远以插入新行实现。
type Resume struct {
	ResumeID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ResumeGroupID     uuid.UUID `gorm:"type:uuid;index"`
	UserID            uuid.UUID `gorm:"type:uuid;index"` // 创建后不可变
	Title             string    `gorm:"size:255"`
	VersionNumber     int       `gorm:"not null"`
	Version           string    `gorm:"size:32"`
	IsCurrent         bool      `gorm:"index"`
	Status            string    `gorm:"size:32;index"`
	OriginalFilename  *string   `gorm:"size:255"`
	FileSize          *int64
	FileType          *string `gorm:"size:64"`
	ObjectKey         string  `gorm:"size:512"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastAnalyzedAt    *time.Time
	AnalysisCount     int `gorm:"default:0"`
	AverageMatchScore *float64
}

// JobDescription 表示一条职位描述。
// CreatedByUserID 在创建时由 identity.Resolver 解析得到，
// 是 update/delete 授权判断的唯一依据。
type JobDescription struct {
	JobID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CompanyID        *uuid.UUID `gorm:"type:uuid"`
	Title            string     `gorm:"size:255"`
	Location         *string    `gorm:"size:255"`
	JobType          *string    `gorm:"size:64"`
	SalaryRange      *string    `gorm:"size:128"`
	ExperienceLevel  *string    `gorm:"size:64"`
	Description      string     `gorm:"type:text"`
	Requirements     datatypes.JSON
	Benefits         datatypes.JSON
	PostedAt         time.Time
	ExpiresAt        *time.Time
	IsActive         bool `gorm:"default:true;index"`
	CreatedByUserID  uint `gorm:"index"`
	ViewCount        int  `gorm:"default:0"`
	ApplicationCount int  `gorm:"default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
