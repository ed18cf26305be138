package verifier

import (
	"errors"
	"strings"
)

var (
	// ErrCancelled được trả về khi user chủ động hủy, phân biệt với lỗi transport
	ErrCancelled = errors.New("cancelled by user")
)

// Message cho các trạng thái lỗi per-handle, giữ nguyên wording
// để phía trên nhận diện được lỗi quota còn retry được
const (
	MsgDeleted       = "not found or account deleted"
	MsgRateLimited   = "rate limit exceeded - please wait before retrying"
	MsgForbidden     = "access forbidden - may be private or suspended"
	MsgProtocolError = "unexpected protocol error"
)

// IsQuotaError nhận diện lỗi quota/rate-limit từ GitHub để quyết định backoff.
// GitHub trả rate limit qua 403 kèm message hoặc 429.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "429")
}

// IsQuotaMessage nhận diện message lỗi per-handle phản ánh điều kiện quota tạm thời
func IsQuotaMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "rate limit")
}
