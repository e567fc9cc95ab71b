package httptransport

import (
	"errors"
	"net/http"

	"twmailer/backend/internal/domain"
)

// 通用错误消息
const (
	MsgInvalidOrdinal = "message number must be a positive integer"
	MsgInternal       = "internal error"
)

// errorStatus 把存储错误映射为 HTTP 状态码和消息
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNoSuchMailbox):
		return http.StatusNotFound, "User has no inbox"
	case errors.Is(err, domain.ErrInvalidOrdinal):
		return http.StatusNotFound, "message not found"
	case errors.Is(err, domain.ErrNameEmpty),
		errors.Is(err, domain.ErrNameTooLong),
		errors.Is(err, domain.ErrInvalidName):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, MsgInternal
	}
}
