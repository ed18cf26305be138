package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/pkg/log"
)

func testConfig(apiUrl string) *cfg.Config {
	config, _ := (&cfg.MockLoader{}).Load()
	config.GithubApi.ApiUrl = apiUrl
	config.GithubApi.RequestsPerSecond = 1000
	config.GithubApi.ThrottleDelay = 1
	config.Verifier.RestDelayMs = 1
	config.Verifier.RestDelayTokenMs = 1
	return config
}

func newTestServer(config *cfg.Config) *Server {
	logger, _ := log.NewNopLogger()
	return NewServer(logger, config)
}

// githubStub trả lời cả user lookup lẫn starred/repos listing
func githubStub() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/starred"):
			fmt.Fprint(w, `[{"name":"hello-world","full_name":"octo-org/hello-world","fork":false,"owner":{"login":"octo-org"}}]`)
		case strings.HasSuffix(r.URL.Path, "/repos"):
			fmt.Fprint(w, `[]`)
		case strings.HasPrefix(r.URL.Path, "/users/nosuchuser"):
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		default:
			handle := strings.TrimPrefix(r.URL.Path, "/users/")
			fmt.Fprintf(w, `{"login":%q,"name":"User","created_at":"2020-01-01T00:00:00Z"}`, handle)
		}
	}))
}

func postJson(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.RemoteAddr = "10.0.0.1:12345"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleValidate(t *testing.T) {
	stub := githubStub()
	defer stub.Close()
	srv := newTestServer(testConfig(stub.URL))

	rec := postJson(t, srv.Router(), "/api/validate", map[string]interface{}{
		"handles": []string{"octocat", "nosuchuser"},
		"method":  "single",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "valid", string(resp.Results[0].Status))
	assert.Equal(t, "deleted", string(resp.Results[1].Status))
	assert.Equal(t, "rest", resp.MethodUsed)
	assert.Equal(t, 2, resp.CacheStats.Total)

	// Đường single dùng ceiling bảo thủ 30/giờ
	assert.Equal(t, 30, resp.Quota.Limit)
	assert.Equal(t, 29, resp.Quota.Remaining)
}

func TestHandleValidateRejectsBadInput(t *testing.T) {
	srv := newTestServer(testConfig("http://127.0.0.1:1"))

	rec := postJson(t, srv.Router(), "/api/validate", map[string]interface{}{"handles": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJson(t, srv.Router(), "/api/validate", map[string]interface{}{
		"handles": []string{"octocat"},
		"method":  "turbo",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Không có credentials thì ceiling là đường plain
	tooMany := make([]string, 21)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("user-%02d", i)
	}
	rec = postJson(t, srv.Router(), "/api/validate", map[string]interface{}{"handles": tooMany})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleValidateQuotaExceeded(t *testing.T) {
	stub := githubStub()
	defer stub.Close()
	config := testConfig(stub.URL)
	config.Verifier.QuotaPerHourSingle = 2
	srv := newTestServer(config)

	for _, handle := range []string{"user-a", "user-b"} {
		rec := postJson(t, srv.Router(), "/api/validate", map[string]interface{}{
			"handles": []string{handle},
			"method":  "single",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// Lượt thứ ba vượt quota: 429 kèm resetTime, khác hẳn lỗi 400/500
	rec := postJson(t, srv.Router(), "/api/validate", map[string]interface{}{
		"handles": []string{"user-c"},
		"method":  "single",
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
	require.NotNil(t, resp.ResetTime)
	require.NotNil(t, resp.Remaining)
	assert.Equal(t, 0, *resp.Remaining)
}

func TestHandleValidateCacheHitDoesNotConsumeQuota(t *testing.T) {
	stub := githubStub()
	defer stub.Close()
	srv := newTestServer(testConfig(stub.URL))

	body := map[string]interface{}{"handles": []string{"octocat"}, "method": "single"}
	rec := postJson(t, srv.Router(), "/api/validate", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var first validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, 29, first.Quota.Remaining)

	// Submit lại trong freshness window: cache hit, quota đứng yên
	rec = postJson(t, srv.Router(), "/api/validate", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var second validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 29, second.Quota.Remaining)
	assert.Equal(t, "cache", second.MethodUsed)
}

func TestHandleEngagement(t *testing.T) {
	stub := githubStub()
	defer stub.Close()
	srv := newTestServer(testConfig(stub.URL))

	rec := postJson(t, srv.Router(), "/api/engagement", map[string]interface{}{
		"repositoryUrl": "https://github.com/octo-org/hello-world",
		"handles":       []string{"octocat", "hubot"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp engagementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "octo-org", resp.Repository.Owner)
	assert.Equal(t, "hello-world", resp.Repository.Repo)
	require.Len(t, resp.Users, 2)
	assert.Equal(t, 2, resp.Summary.TotalUsers)
	assert.Equal(t, 2, resp.Summary.Starred)
	assert.Equal(t, 0, resp.Summary.Forked)
}

func TestHandleEngagementRejectsBadRepoUrl(t *testing.T) {
	srv := newTestServer(testConfig("http://127.0.0.1:1"))

	rec := postJson(t, srv.Router(), "/api/engagement", map[string]interface{}{
		"repositoryUrl": "https://github.com/only-owner",
		"handles":       []string{"octocat"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQuota(t *testing.T) {
	srv := newTestServer(testConfig("http://127.0.0.1:1"))

	req := httptest.NewRequest(http.MethodGet, "/api/quota", nil)
	req.RemoteAddr = "10.0.0.2:4444"
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp quotaInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 60, resp.Limit)
	assert.Equal(t, 60, resp.Remaining)

	// Có token thì ceiling elevated
	req = httptest.NewRequest(http.MethodGet, "/api/quota", nil)
	req.RemoteAddr = "10.0.0.2:4444"
	req.Header.Set("Authorization", "token tok")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5000, resp.Limit)
}