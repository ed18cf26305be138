// GraphqlCaller thực hiện batch query theo alias tới GraphQL endpoint của GitHub.
// Một query gộp nhiều user (u0, u1, ...) để chỉ tốn một lần gọi cho cả chunk.
// Lỗi ở tầng transport hoặc protocol được trả về cho caller để fallback sang REST.

package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/pkg/log"
)

type GraphqlCaller struct {
	Logger log.Logger
	Config *cfg.Config
	client *http.Client
}

func NewGraphqlCaller(logger log.Logger, config *cfg.Config) *GraphqlCaller {
	return &GraphqlCaller{
		Logger: logger,
		Config: config,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// GraphqlUser là dữ liệu user lấy qua GraphQL, tương đương UserResponse bên REST
type GraphqlUser struct {
	Login        string    `json:"login"`
	Name         string    `json:"name"`
	Bio          string    `json:"bio"`
	CreatedAt    time.Time `json:"createdAt"`
	Repositories struct {
		TotalCount int `json:"totalCount"`
	} `json:"repositories"`
	Followers struct {
		TotalCount int `json:"totalCount"`
	} `json:"followers"`
	Following struct {
		TotalCount int `json:"totalCount"`
	} `json:"following"`
}

// UserAlias là union kết quả cho một alias: có user, NOT_FOUND,
// hoặc lỗi protocol khác (ErrType khác rỗng)
type UserAlias struct {
	User     *GraphqlUser
	NotFound bool
	ErrType  string
}

// EngagementAlias là kết quả engagement cho một alias
type EngagementAlias struct {
	NotFound bool
	ErrType  string
	Starred  []string   // nameWithOwner của các repo đã star
	Forks    []ForkNode // các fork mà user sở hữu
}

type ForkNode struct {
	Name   string
	Parent string // nameWithOwner của repo gốc, rỗng nếu GitHub không trả về
}

type graphqlError struct {
	Type    string   `json:"type"`
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

type graphqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []graphqlError             `json:"errors"`
}

// CallUserBatch gửi một aliased query cho tối đa 100 handle.
// Kết quả là map theo handle viết thường, không theo vị trí.
func (g *GraphqlCaller) CallUserBatch(ctx context.Context, handles []string, token string) (map[string]UserAlias, error) {
	var sb strings.Builder
	sb.WriteString("query {")
	for i, handle := range handles {
		fmt.Fprintf(&sb, " u%d: user(login: %q) {"+
			" login name bio createdAt"+
			" repositories(privacy: PUBLIC) { totalCount }"+
			" followers { totalCount }"+
			" following { totalCount }"+
			" }", i, handle)
	}
	sb.WriteString(" }")

	resp, err := g.post(ctx, sb.String(), token)
	if err != nil {
		return nil, err
	}

	results := make(map[string]UserAlias, len(handles))
	for i, handle := range handles {
		alias := fmt.Sprintf("u%d", i)
		ua := UserAlias{}

		raw, present := resp.Data[alias]
		if present && string(raw) != "null" {
			user := &GraphqlUser{}
			if err := json.Unmarshal(raw, user); err != nil {
				ua.ErrType = "DECODE_ERROR"
			} else {
				ua.User = user
			}
		} else if errType, found := aliasError(resp.Errors, alias); found {
			if errType == "NOT_FOUND" {
				ua.NotFound = true
			} else {
				ua.ErrType = errType
			}
		} else {
			// Không có data cũng không có error cho alias này
			ua.ErrType = "MISSING_ALIAS"
		}

		results[strings.ToLower(handle)] = ua
	}

	return results, nil
}

// CallEngagementBatch gửi một aliased query engagement cho tối đa 30 handle.
// Chunk nhỏ hơn batch validation vì mỗi alias kéo theo hai nested list.
func (g *GraphqlCaller) CallEngagementBatch(ctx context.Context, handles []string, token string) (map[string]EngagementAlias, error) {
	var sb strings.Builder
	sb.WriteString("query {")
	for i, handle := range handles {
		fmt.Fprintf(&sb, " e%d: user(login: %q) {"+
			" login"+
			" starredRepositories(first: 100, orderBy: {field: STARRED_AT, direction: DESC}) {"+
			" nodes { nameWithOwner } }"+
			" repositories(first: 100, isFork: true, orderBy: {field: CREATED_AT, direction: DESC}) {"+
			" nodes { name parent { nameWithOwner } } }"+
			" }", i, handle)
	}
	sb.WriteString(" }")

	resp, err := g.post(ctx, sb.String(), token)
	if err != nil {
		return nil, err
	}

	type engagementNode struct {
		StarredRepositories struct {
			Nodes []struct {
				NameWithOwner string `json:"nameWithOwner"`
			} `json:"nodes"`
		} `json:"starredRepositories"`
		Repositories struct {
			Nodes []struct {
				Name   string `json:"name"`
				Parent *struct {
					NameWithOwner string `json:"nameWithOwner"`
				} `json:"parent"`
			} `json:"nodes"`
		} `json:"repositories"`
	}

	results := make(map[string]EngagementAlias, len(handles))
	for i, handle := range handles {
		alias := fmt.Sprintf("e%d", i)
		ea := EngagementAlias{}

		raw, present := resp.Data[alias]
		if present && string(raw) != "null" {
			node := &engagementNode{}
			if err := json.Unmarshal(raw, node); err != nil {
				ea.ErrType = "DECODE_ERROR"
			} else {
				for _, n := range node.StarredRepositories.Nodes {
					ea.Starred = append(ea.Starred, n.NameWithOwner)
				}
				for _, n := range node.Repositories.Nodes {
					fork := ForkNode{Name: n.Name}
					if n.Parent != nil {
						fork.Parent = n.Parent.NameWithOwner
					}
					ea.Forks = append(ea.Forks, fork)
				}
			}
		} else if errType, found := aliasError(resp.Errors, alias); found {
			if errType == "NOT_FOUND" {
				ea.NotFound = true
			} else {
				ea.ErrType = errType
			}
		} else {
			ea.ErrType = "MISSING_ALIAS"
		}

		results[strings.ToLower(handle)] = ea
	}

	return results, nil
}

// post gửi query và decode response. Mọi thất bại ở mức request
// (transport, HTTP status, RATE_LIMITED) đều trả về error để caller fallback.
func (g *GraphqlCaller) post(ctx context.Context, query string, token string) (*graphqlResponse, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Config.GithubApi.GraphqlUrl, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if token == "" {
		token = g.Config.GithubApi.AccessToken
	}
	if token == "" {
		// GraphQL endpoint của GitHub bắt buộc phải có token
		return nil, fmt.Errorf("graphql requires an access token")
	}

	req.Header.Set("Authorization", fmt.Sprintf("bearer %s", token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.Logger.Error(ctx, "cannot send graphql request: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("graphql rate limit exceeded: status %d", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graphql request failed: %s", resp.Status)
	}

	gqlResp := &graphqlResponse{}
	if err := json.NewDecoder(resp.Body).Decode(gqlResp); err != nil {
		return nil, fmt.Errorf("cannot decode graphql response: %w", err)
	}

	// RATE_LIMITED áp dụng cho cả chunk, không phải từng alias
	for _, e := range gqlResp.Errors {
		if e.Type == "RATE_LIMITED" {
			return nil, fmt.Errorf("graphql rate limit exceeded: %s", e.Message)
		}
	}

	return gqlResp, nil
}

func aliasError(errors []graphqlError, alias string) (string, bool) {
	for _, e := range errors {
		for _, p := range e.Path {
			if p == alias {
				return e.Type, true
			}
		}
	}
	return "", false
}
