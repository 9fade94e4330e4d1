package errcode

import "errors"

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复类错误（由调用方决定如何提示）
// - 5xxx：系统错误（需要中断流程）
const (
	OK                     = 0
	InvalidInput           = 4000
	DuplicateEmail         = 4001
	InvalidCredentials     = 4010
	AccountDisabled        = 4011
	AuthenticationRequired = 4012
	ResourceMissing        = 4004
	AccessDenied           = 4030
	NotAuthorized          = 4031
	SystemError            = 5000
)

// 业务层的哨兵错误。服务层只返回这些错误种类，
// HTTP 层通过 errors.Is 翻译为状态码，存储细节不向外泄露。
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrDuplicateEmail         = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountDisabled        = errors.New("account is disabled")
	ErrNotFound               = errors.New("resource not found")
	ErrAccessDenied           = errors.New("access denied")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInternal               = errors.New("internal error")
)

// Code 返回哨兵错误对应的数字错误码，未知错误归入 SystemError。
func Code(err error) int {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrInvalidInput):
		return InvalidInput
	case errors.Is(err, ErrDuplicateEmail):
		return DuplicateEmail
	case errors.Is(err, ErrInvalidCredentials):
		return InvalidCredentials
	case errors.Is(err, ErrAccountDisabled):
		return AccountDisabled
	case errors.Is(err, ErrAuthenticationRequired):
		return AuthenticationRequired
	case errors.Is(err, ErrNotFound):
		return ResourceMissing
	case errors.Is(err, ErrAccessDenied):
		return AccessDenied
	case errors.Is(err, ErrNotAuthorized):
		return NotAuthorized
	default:
		return SystemError
	}
}
