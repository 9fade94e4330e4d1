package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"resumatch/internal/auth"
	"resumatch/internal/database"
	"resumatch/internal/errcode"
)

// Service 承载用户目录的业务规则：注册、认证、改密与资料维护。
// 无请求间共享状态，所有并发控制交给底层存储。
type Service struct {
	db          *gorm.DB
	authService *auth.AuthService
	logger      *slog.Logger
}

// NewService 构造用户服务。
func NewService(db *gorm.DB, authService *auth.AuthService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, authService: authService, logger: logger}
}

// RegisterInput 描述注册所需字段。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    *string
}

// ProfileUpdateInput 描述资料更新的可选字段，nil 表示不修改。
type ProfileUpdateInput struct {
	Name      *string
	AvatarURL *string
	Phone     *string
}

// NormalizeEmail 统一邮箱大小写，保证全局唯一约束不区分大小写。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register 创建新账号。邮箱冲突返回 ErrDuplicateEmail。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*database.User, error) {
	name := strings.TrimSpace(input.Name)
	if len(name) < 2 {
		return nil, errcode.ErrInvalidInput
	}
	email := NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, errcode.ErrInvalidInput
	}

	var existing database.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil:
		return nil, errcode.ErrDuplicateEmail
	case !errors.Is(err, gorm.ErrRecordNotFound):
		s.logger.Error("register lookup failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}

	hashed, err := auth.HashPassword(input.Password)
	if err != nil {
		s.logger.Error("hash password failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}

	user := database.User{
		UserUUID:     uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hashed,
		Phone:        input.Phone,
		Active:       true,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		s.logger.Error("create user failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}

	s.logger.Info("user registered", slog.String("user_uuid", user.UserUUID.String()))
	return &user, nil
}

// FindByEmail 按邮箱查找用户，不区分大小写；查无此人返回 nil。
func (s *Service) FindByEmail(ctx context.Context, email string) (*database.User, error) {
	var user database.User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		s.logger.Error("find by email failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}
	return &user, nil
}

// FindByUUID 按公开 UUID 查找用户；查无此人返回 nil。
func (s *Service) FindByUUID(ctx context.Context, userUUID uuid.UUID) (*database.User, error) {
	var user database.User
	err := s.db.WithContext(ctx).Where("user_uuid = ?", userUUID).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		s.logger.Error("find by uuid failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}
	return &user, nil
}

// Authenticate 校验邮箱与密码并签发令牌对。
// 邮箱不存在与密码不匹配对调用方不可区分，均返回 ErrInvalidCredentials；
// 账号停用单独返回 ErrAccountDisabled。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*database.User, auth.TokenPair, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, auth.TokenPair{}, err
	}
	if user == nil {
		return nil, auth.TokenPair{}, errcode.ErrInvalidCredentials
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, auth.TokenPair{}, errcode.ErrInvalidCredentials
	}

	if !user.Active {
		return nil, auth.TokenPair{}, errcode.ErrAccountDisabled
	}

	pair, err := s.authService.GenerateTokenPair(user.UserUUID.String(), user.Email)
	if err != nil {
		s.logger.Error("generate token pair failed", slog.Any("error", err))
		return nil, auth.TokenPair{}, errcode.ErrInternal
	}

	return user, pair, nil
}

// Refresh 校验刷新令牌并签发新令牌对。
// 类型不符、用户不存在或已停用时统一返回 ErrInvalidCredentials，不暴露具体原因。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*auth.TokenClaims, auth.TokenPair, error) {
	claims, err := s.authService.ValidateToken(refreshToken)
	if err != nil {
		return nil, auth.TokenPair{}, errcode.ErrInvalidCredentials
	}
	if claims.TokenType != "refresh" {
		return nil, auth.TokenPair{}, errcode.ErrInvalidCredentials
	}

	parsed, err := uuid.Parse(claims.UserUUID)
	if err != nil {
		return nil, auth.TokenPair{}, errcode.ErrInvalidCredentials
	}

	user, err := s.FindByUUID(ctx, parsed)
	if err != nil {
		return nil, auth.TokenPair{}, err
	}
	if user == nil || !user.Active {
		return nil, auth.TokenPair{}, errcode.ErrInvalidCredentials
	}

	pair, err := s.authService.GenerateTokenPair(user.UserUUID.String(), user.Email)
	if err != nil {
		s.logger.Error("refresh generate token pair failed", slog.Any("error", err))
		return nil, auth.TokenPair{}, errcode.ErrInternal
	}

	return claims, pair, nil
}

// ChangePassword 先核对当前密码再更新哈希；核对失败不做任何改动。
func (s *Service) ChangePassword(ctx context.Context, userUUID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.FindByUUID(ctx, userUUID)
	if err != nil {
		return err
	}
	if user == nil {
		return errcode.ErrNotFound
	}

	if !auth.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return errcode.ErrInvalidCredentials
	}

	hashed, err := auth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("hash new password failed", slog.Any("error", err))
		return errcode.ErrInternal
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", hashed).Error; err != nil {
		s.logger.Error("update password failed", slog.Any("error", err))
		return errcode.ErrInternal
	}

	s.logger.Info("password changed", slog.String("user_uuid", userUUID.String()))
	return nil
}

// UpdateProfile 应用资料变更，仅更新显式提供的字段。
func (s *Service) UpdateProfile(ctx context.Context, userUUID uuid.UUID, input ProfileUpdateInput) (*database.User, error) {
	user, err := s.FindByUUID(ctx, userUUID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errcode.ErrNotFound
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len(name) < 2 {
			return nil, errcode.ErrInvalidInput
		}
		updates["name"] = name
	}
	if input.AvatarURL != nil {
		updates["avatar_url"] = *input.AvatarURL
	}
	if input.Phone != nil {
		updates["phone"] = *input.Phone
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		s.logger.Error("update profile failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}

	if err := s.db.WithContext(ctx).First(user, user.ID).Error; err != nil {
		s.logger.Error("reload profile failed", slog.Any("error", err))
		return nil, errcode.ErrInternal
	}
	return user, nil
}

// SetActive 切换账号启用状态，停用后认证与令牌刷新均会失败。
func (s *Service) SetActive(ctx context.Context, email string, active bool) error {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return errcode.ErrNotFound
	}

	if err := s.db.WithContext(ctx).Model(user).Update("active", active).Error; err != nil {
		s.logger.Error("set active failed", slog.Any("error", err))
		return errcode.ErrInternal
	}
	return nil
}
