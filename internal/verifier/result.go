// Gói verifier là policy core: chọn protocol rẻ nhất còn dùng được,
// chia chunk, chạy song song có giới hạn và fallback khi protocol ưu tiên hỏng.

package verifier

import "time"

// Status là trạng thái verification của một handle sau một pass
type Status string

const (
	StatusValid   Status = "valid"
	StatusDeleted Status = "deleted"
	StatusError   Status = "error"
)

// Method là protocol được chọn cho một request
type Method string

const (
	MethodAuto    Method = "auto"
	MethodGraphql Method = "graphql"
	MethodRest    Method = "rest"

	// MethodCache báo rằng toàn bộ request được trả lời từ cache
	MethodCache Method = "cache"
)

// Profile là dữ liệu public của một user hợp lệ
type Profile struct {
	Name        string    `json:"name"`
	Bio         string    `json:"bio"`
	PublicRepos int       `json:"public_repos"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	CreatedAt   time.Time `json:"created_at"`
}

// VerificationResult được tạo đúng một lần cho mỗi handle trong một pass
// và không thay đổi sau đó. Profile chỉ có khi status = valid.
type VerificationResult struct {
	Handle       string   `json:"handle"`
	Status       Status   `json:"status"`
	Profile      *Profile `json:"profile,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// CacheStats đếm số handle được trả lời từ cache so với phải gọi network
type CacheStats struct {
	Cached    int `json:"cached"`
	Validated int `json:"validated"`
	Total     int `json:"total"`
}

// Report là kết quả của một lần Verify, theo đúng thứ tự handle đầu vào
type Report struct {
	Results    []VerificationResult `json:"results"`
	MethodUsed Method               `json:"method_used"`
	CacheStats CacheStats           `json:"cache_stats"`
}

// Options điều khiển một lần Verify
type Options struct {
	Token  string
	Method Method
}
