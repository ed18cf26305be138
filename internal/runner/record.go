// Gói runner là control loop phía caller: sở hữu state machine cho từng
// identity record, đẩy batch qua orchestrator và hỗ trợ pause/resume/cancel.

package runner

import (
	"regexp"
	"strings"

	"github.com/thep200/github-verifier/internal/engagement"
	"github.com/thep200/github-verifier/internal/verifier"
)

type RecordStatus string

const (
	StatusPending    RecordStatus = "pending"
	StatusProcessing RecordStatus = "processing"
	StatusValid      RecordStatus = "valid"
	StatusInvalid    RecordStatus = "invalid"
	StatusDuplicate  RecordStatus = "duplicate"
	StatusDeleted    RecordStatus = "deleted"
	StatusError      RecordStatus = "error"
)

// Handle hợp lệ theo luật của GitHub: chữ/số, gạch ngang không đứng đầu,
// không đứng cuối, không lặp liên tiếp, dài 1-39 ký tự
var handleRe = regexp.MustCompile(`^[A-Za-z0-9](?:-?[A-Za-z0-9])*$`)

// IdentityRecord thuộc sở hữu của control loop, chỉ control loop được mutate.
// invalid và duplicate là trạng thái terminal gán trước mọi network call.
type IdentityRecord struct {
	OriginalValue string                       `json:"original_value"`
	Handle        string                       `json:"handle,omitempty"`
	Status        RecordStatus                 `json:"status"`
	Error         string                       `json:"error,omitempty"`
	Profile       *verifier.Profile            `json:"profile,omitempty"`
	Engagement    *engagement.EngagementResult `json:"engagement,omitempty"`
}

// NormalizeHandle chuẩn hóa giá trị thô thành handle: trim khoảng trắng
// và bỏ @ đứng đầu. Việc extract username từ text/URL là việc của tầng ngoài.
func NormalizeHandle(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "@")

	if len(s) == 0 || len(s) > 39 || !handleRe.MatchString(s) {
		return "", false
	}
	return s, true
}

// BuildRecords tạo record cho từng giá trị đầu vào: structural validation
// và dedup không phân biệt hoa thường, bản ghi đầu tiên thắng, các bản ghi
// trùng sau đó bị đánh duplicate. Cả hai loại này không bao giờ được submit.
func BuildRecords(values []string) []*IdentityRecord {
	records := make([]*IdentityRecord, 0, len(values))
	seen := make(map[string]bool, len(values))

	for _, raw := range values {
		record := &IdentityRecord{OriginalValue: raw}

		handle, ok := NormalizeHandle(raw)
		if !ok {
			record.Status = StatusInvalid
			record.Error = "invalid username format"
			records = append(records, record)
			continue
		}

		record.Handle = handle
		lower := strings.ToLower(handle)
		if seen[lower] {
			record.Status = StatusDuplicate
			record.Error = "duplicate username"
			records = append(records, record)
			continue
		}

		seen[lower] = true
		record.Status = StatusPending
		records = append(records, record)
	}

	return records
}

// IsTransient cho biết record lỗi có retry được không: chỉ lỗi phản ánh
// điều kiện quota tạm thời mới đủ điều kiện quay lại pending
func (r *IdentityRecord) IsTransient() bool {
	return r.Status == StatusError && verifier.IsQuotaMessage(r.Error)
}
