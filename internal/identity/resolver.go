package identity

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"resumatch/internal/database"
)

// Resolver 将对外暴露的公开 UUID 解析为内部代理键。
// 授权判断只比较代理键，凡无法解析的输入一律按未找到处理（fail closed），
// 绝不把 UUID 强转成数字去碰撞代理键。
type Resolver struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewResolver 构造 Resolver。
func NewResolver(db *gorm.DB, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{db: db, logger: logger}
}

// ResolveInternalID 解析调用方标识。
// 纯数字输入视为已是内部键，直接透传；UUID 则查 users 表取代理键。
// 查询失败与查无此人对调用方不可区分，二者都返回 (0, false)。
func (r *Resolver) ResolveInternalID(ctx context.Context, value string) (uint, bool) {
	if value == "" {
		return 0, false
	}

	if id, err := strconv.ParseUint(value, 10, 64); err == nil {
		return uint(id), true
	}

	parsed, err := uuid.Parse(value)
	if err != nil {
		return 0, false
	}

	var user database.User
	if err := r.db.WithContext(ctx).
		Select("id").
		Where("user_uuid = ?", parsed).
		First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Error("resolve internal id failed", slog.Any("error", err))
		}
		return 0, false
	}

	return user.ID, true
}
