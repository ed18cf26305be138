// Gói engagement xác định một handle đã star hoặc fork một repository đích chưa.
// Kết quả engagement gắn với một repository cụ thể nên không bao giờ được cache.

package engagement

import (
	"fmt"
	"strings"
)

// RepositoryRef là repository đích, parse từ URL do caller cung cấp
type RepositoryRef struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// ParseRepoURL chấp nhận dạng https://github.com/owner/repo (kèm .git,
// query hoặc path thừa) và dạng rút gọn owner/repo.
func ParseRepoURL(rawUrl string) (*RepositoryRef, error) {
	s := strings.TrimSpace(rawUrl)
	if s == "" {
		return nil, fmt.Errorf("repository url is empty")
	}

	// Bỏ scheme và host nếu có
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.Trim(s, "/")

	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}

	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("cannot parse owner/repo from %q", rawUrl)
	}

	repo := strings.TrimSuffix(parts[1], ".git")
	if repo == "" {
		return nil, fmt.Errorf("cannot parse owner/repo from %q", rawUrl)
	}

	return &RepositoryRef{Owner: parts[0], Repo: repo}, nil
}

// FullName trả về dạng owner/repo
func (r *RepositoryRef) FullName() string {
	return r.Owner + "/" + r.Repo
}

// URL trả về URL chuẩn của repository
func (r *RepositoryRef) URL() string {
	return "https://github.com/" + r.FullName()
}

// Matches so khớp owner/repo không phân biệt hoa thường
func (r *RepositoryRef) Matches(nameWithOwner string) bool {
	return strings.EqualFold(nameWithOwner, r.FullName())
}

// MatchesName so khớp riêng tên repo, dùng cho danh sách fork bên REST
// vì listing không kèm thông tin parent.
func (r *RepositoryRef) MatchesName(name string) bool {
	return strings.EqualFold(name, r.Repo)
}
