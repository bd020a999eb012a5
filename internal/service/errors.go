package service

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied 表示用户对目标集合没有所需的最低角色。
// 各 handler 统一映射为 403。
var ErrPermissionDenied = errors.New("没有执行该操作的权限")

// ErrInvalidCredentials 表示用户名或密码不正确，或凭证已失效。
// 统一返回同一个错误，不向调用方区分用户是否存在，handler 映射为 401。
var ErrInvalidCredentials = errors.New("无效的凭证")

// ValidationError 表示调用方传入的参数不合法。
// 这类错误在任何外部调用（嵌入、索引、存储）之前返回，handler 映射为 400。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError 构造一个参数校验错误。
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation 判断 err 是否为参数校验错误。
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
