// Gói githubapi cung cấp các DTO cho hai protocol truy vấn của GitHub:
// REST (mỗi call một resource) và GraphQL (batch query theo alias)

package githubapi

import "time"

// UserResponse là profile trả về từ GET /users/{handle}
type UserResponse struct {
	Login       string    `json:"login"`
	Name        string    `json:"name"`
	Bio         string    `json:"bio"`
	PublicRepos int       `json:"public_repos"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	CreatedAt   time.Time `json:"created_at"`
}

type RepoOwner struct {
	Login string `json:"login"`
}

// RepoRef là một repository trong danh sách starred hoặc danh sách repo của user
type RepoRef struct {
	Name     string    `json:"name"`
	FullName string    `json:"full_name"`
	Fork     bool      `json:"fork"`
	Owner    RepoOwner `json:"owner"`
}

// UserCallResult gói kết quả thô của một lần gọi REST:
// status code, message lỗi từ body (nếu có) và profile khi 200
type UserCallResult struct {
	StatusCode    int
	Message       string
	User          *UserResponse
	RateRemaining string
	RateReset     string
}

// ListCallResult là kết quả thô của một lần gọi REST trả về danh sách repo
type ListCallResult struct {
	StatusCode int
	Message    string
	Repos      []RepoRef
}

// apiError là body lỗi chuẩn của GitHub API
type apiError struct {
	Message string `json:"message"`
}
