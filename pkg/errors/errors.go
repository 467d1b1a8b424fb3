package errors

import (
	"github.com/go-kratos/kratos/v2/errors"
)

// 错误原因码
const (
	ReasonIllegalOperation = "ILLEGAL_OPERATION"
	ReasonUserInput        = "USER_INPUT_ERROR"
	ReasonNotFound         = "NOT_FOUND"
	ReasonForbidden        = "FORBIDDEN"
	ReasonInternal         = "INTERNAL_SERVER_ERROR"
)

// NewIllegalOperation 结构性违规 (409)
func NewIllegalOperation(message string) *errors.Error {
	return errors.Conflict(ReasonIllegalOperation, message)
}

// NewUserInputError 用户输入错误 (400)
func NewUserInputError(message string) *errors.Error {
	return errors.BadRequest(ReasonUserInput, message)
}

// NewNotFound 资源不存在 (404)
func NewNotFound(message string) *errors.Error {
	return errors.NotFound(ReasonNotFound, message)
}

// NewForbidden 禁止访问 (403)
func NewForbidden(message string) *errors.Error {
	return errors.Forbidden(ReasonForbidden, message)
}

// NewInternalServerError 内部错误 (500)
func NewInternalServerError(message string) *errors.Error {
	return errors.InternalServer(ReasonInternal, message)
}

// FromError 转换为 kratos 错误，非 kratos 错误视为内部错误
func FromError(err error) *errors.Error {
	if err == nil {
		return nil
	}
	if e := errors.FromError(err); e != nil && e.Reason != "" {
		return e
	}
	return NewInternalServerError(err.Error()).WithCause(err)
}

// IsIllegalOperation 是否结构性违规
func IsIllegalOperation(err error) bool {
	return errors.Reason(err) == ReasonIllegalOperation
}

// IsUserInputError 是否用户输入错误
func IsUserInputError(err error) bool {
	return errors.Reason(err) == ReasonUserInput
}

// IsNotFound 是否资源不存在
func IsNotFound(err error) bool {
	return errors.Reason(err) == ReasonNotFound
}
