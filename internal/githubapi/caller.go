// Caller thực hiện các yêu cầu REST một-resource-một-call tới GitHub API.
// Nó xử lý xác thực bằng access token nếu được cung cấp và đọc các header
// rate limit để caller phía trên biết còn bao nhiêu quota.

package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/pkg/log"
)

type Caller struct {
	Logger log.Logger
	Config *cfg.Config
	client *http.Client
}

func NewCaller(logger log.Logger, config *cfg.Config) *Caller {
	return &Caller{
		Logger: logger,
		Config: config,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// CallUser gọi GET /users/{handle}. Lỗi trả về chỉ là lỗi transport;
// mọi status code đều nằm trong UserCallResult để tầng trên tự map.
func (c *Caller) CallUser(ctx context.Context, handle string, token string) (*UserCallResult, error) {
	fullUrl := fmt.Sprintf("%s/users/%s", c.Config.GithubApi.ApiUrl, url.PathEscape(handle))

	resp, err := c.do(ctx, fullUrl, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &UserCallResult{
		StatusCode:    resp.StatusCode,
		RateRemaining: resp.Header.Get("X-RateLimit-Remaining"),
		RateReset:     resp.Header.Get("X-RateLimit-Reset"),
	}

	if resp.StatusCode == http.StatusOK {
		user := &UserResponse{}
		if err := json.NewDecoder(resp.Body).Decode(user); err != nil {
			return nil, fmt.Errorf("cannot decode user response: %w", err)
		}
		result.User = user
		return result, nil
	}

	// Body lỗi của GitHub có message dùng để phân biệt 403 rate limit với 403 thường
	apiErr := &apiError{}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err == nil {
		result.Message = apiErr.Message
	}

	return result, nil
}

// CallStarred gọi GET /users/{handle}/starred, lấy tối đa 100 repo gần nhất
func (c *Caller) CallStarred(ctx context.Context, handle string, token string) (*ListCallResult, error) {
	fullUrl := fmt.Sprintf("%s/users/%s/starred?per_page=100&sort=created&direction=desc",
		c.Config.GithubApi.ApiUrl, url.PathEscape(handle))
	return c.callList(ctx, fullUrl, token)
}

// CallRepos gọi GET /users/{handle}/repos, lấy tối đa 100 repo mới nhất.
// Danh sách này được dùng để dò fork vì GitHub không có endpoint fork riêng theo user.
func (c *Caller) CallRepos(ctx context.Context, handle string, token string) (*ListCallResult, error) {
	fullUrl := fmt.Sprintf("%s/users/%s/repos?per_page=100&sort=created&direction=desc",
		c.Config.GithubApi.ApiUrl, url.PathEscape(handle))
	return c.callList(ctx, fullUrl, token)
}

func (c *Caller) callList(ctx context.Context, fullUrl string, token string) (*ListCallResult, error) {
	resp, err := c.do(ctx, fullUrl, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &ListCallResult{StatusCode: resp.StatusCode}

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&result.Repos); err != nil {
			return nil, fmt.Errorf("cannot decode repo list: %w", err)
		}
		return result, nil
	}

	apiErr := &apiError{}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err == nil {
		result.Message = apiErr.Message
	}

	return result, nil
}

// ResetWait tính thời gian chờ tới khi quota reset từ header X-RateLimit-Reset.
// Header thiếu hoặc không parse được thì dùng RateLimitResetMin trong config.
func (c *Caller) ResetWait(rateReset string) time.Duration {
	fallback := time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute
	resetUnix, err := strconv.ParseInt(rateReset, 10, 64)
	if err != nil {
		return fallback
	}
	wait := time.Until(time.Unix(resetUnix, 0))
	if wait < 0 {
		return fallback
	}
	return wait
}

func (c *Caller) do(ctx context.Context, fullUrl string, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullUrl, nil)
	if err != nil {
		c.Logger.Error(ctx, "Cannot request: %v", err)
		return nil, err
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")

	// Token theo request được ưu tiên hơn token trong config
	if token == "" {
		token = c.Config.GithubApi.AccessToken
	}
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s", token))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.Logger.Error(ctx, "cannot send request: %v", err)
		return nil, err
	}

	return resp, nil
}
