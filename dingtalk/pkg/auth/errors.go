package auth

import "errors"

var (
	// ErrTokenExchange 令牌交换失败
	ErrTokenExchange = errors.New("token exchange failed")
	// ErrMissingCode 缺少用户授权码
	ErrMissingCode = errors.New("missing authorization code")
)
