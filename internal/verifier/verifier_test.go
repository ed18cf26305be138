package verifier

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/pkg/log"
)

func fastConfig() *cfg.Config {
	config, _ := (&cfg.MockLoader{}).Load()
	config.GithubApi.RequestsPerSecond = 1000
	config.GithubApi.ThrottleDelay = 1
	config.Verifier.RestDelayMs = 1
	config.Verifier.RestDelayTokenMs = 1
	config.Verifier.BackoffBaseSec = 0
	config.Verifier.BackoffCapSec = 0
	config.Verifier.BackoffMaxRetries = 1
	return config
}

// restUserServer trả profile hợp lệ cho mọi /users/{handle}
func restUserServer(calls *int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		handle := strings.TrimPrefix(r.URL.Path, "/users/")
		fmt.Fprintf(w, `{"login":%q,"name":"User %s","public_repos":1,"followers":2,"following":3,"created_at":"2020-01-01T00:00:00Z"}`, handle, handle)
	}))
}

func newTestVerifier(config *cfg.Config) *Verifier {
	logger, _ := log.NewNopLogger()
	return NewVerifier(logger, config)
}

func handleList(n int) []string {
	handles := make([]string, n)
	for i := range handles {
		handles[i] = fmt.Sprintf("user-%02d", i)
	}
	return handles
}

func TestVerifyEmptyInput(t *testing.T) {
	config := fastConfig()
	config.GithubApi.ApiUrl = "http://127.0.0.1:1" // nếu gọi network sẽ fail
	v := newTestVerifier(config)

	report, err := v.Verify(context.Background(), nil, Options{Method: MethodAuto})
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Equal(t, MethodCache, report.MethodUsed)
}

func TestVerifyAllCacheHitSkipsNetworkAndQuota(t *testing.T) {
	var calls int64
	srv := restUserServer(&calls)
	defer srv.Close()

	config := fastConfig()
	config.GithubApi.ApiUrl = srv.URL
	v := newTestVerifier(config)

	v.Cache.Put("torvalds", VerificationResult{Handle: "torvalds", Status: StatusValid})

	report, err := v.Verify(context.Background(), []string{"torvalds"}, Options{Method: MethodAuto})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, StatusValid, report.Results[0].Status)
	assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
	assert.Equal(t, CacheStats{Cached: 1, Validated: 0, Total: 1}, report.CacheStats)
	assert.Equal(t, MethodCache, report.MethodUsed)
}

func TestVerifyIdempotentWithinFreshnessWindow(t *testing.T) {
	var calls int64
	srv := restUserServer(&calls)
	defer srv.Close()

	config := fastConfig()
	config.GithubApi.ApiUrl = srv.URL
	v := newTestVerifier(config)

	first, err := v.Verify(context.Background(), []string{"octocat"}, Options{Method: MethodRest})
	require.NoError(t, err)
	require.Len(t, first.Results, 1)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	// Submit lại trong freshness window: kết quả y hệt, không thêm call nào
	second, err := v.Verify(context.Background(), []string{"octocat"}, Options{Method: MethodRest})
	require.NoError(t, err)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestVerifyDuplicateHandlesKeepPositions(t *testing.T) {
	var calls int64
	srv := restUserServer(&calls)
	defer srv.Close()

	config := fastConfig()
	config.GithubApi.ApiUrl = srv.URL
	v := newTestVerifier(config)

	report, err := v.Verify(context.Background(),
		[]string{"octocat", "OCTOCAT", "torvalds", "octocat"}, Options{Method: MethodRest})
	require.NoError(t, err)

	// Mỗi vị trí đầu vào có đúng một kết quả, handle trùng chỉ tốn một network call
	require.Len(t, report.Results, 4)
	assert.Equal(t, "octocat", report.Results[0].Handle)
	assert.Equal(t, report.Results[0], report.Results[1])
	assert.Equal(t, "torvalds", report.Results[2].Handle)
	assert.Equal(t, report.Results[0], report.Results[3])
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	assert.Equal(t, CacheStats{Cached: 0, Validated: 4, Total: 4}, report.CacheStats)
}

func TestVerifyStrategySelection(t *testing.T) {
	var restCalls, gqlCalls int64
	rest := restUserServer(&restCalls)
	defer rest.Close()
	gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&gqlCalls, 1)
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer gql.Close()

	config := fastConfig()
	config.GithubApi.ApiUrl = rest.URL
	config.GithubApi.GraphqlUrl = gql.URL

	// 15 handle với token, auto: đủ miss để chọn graphql
	v := newTestVerifier(config)
	report, err := v.Verify(context.Background(), handleList(15), Options{Method: MethodAuto, Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, MethodGraphql, report.MethodUsed)
	assert.Positive(t, atomic.LoadInt64(&gqlCalls))

	// 5 handle với token, auto: dưới ngưỡng, đi REST
	atomic.StoreInt64(&gqlCalls, 0)
	v = newTestVerifier(config)
	report, err = v.Verify(context.Background(), handleList(5), Options{Method: MethodAuto, Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, MethodRest, report.MethodUsed)
	assert.Equal(t, int64(0), atomic.LoadInt64(&gqlCalls))

	// Không có token thì luôn REST kể cả khi nhiều miss
	v = newTestVerifier(config)
	report, err = v.Verify(context.Background(), handleList(15), Options{Method: MethodAuto})
	require.NoError(t, err)
	assert.Equal(t, MethodRest, report.MethodUsed)
}

func TestVerifyFallbackCompleteness(t *testing.T) {
	var restCalls int64
	rest := restUserServer(&restCalls)
	defer rest.Close()

	// GraphQL chết hẳn: mọi chunk phải rơi xuống REST, không handle nào bị rớt
	gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gql.Close()

	config := fastConfig()
	config.GithubApi.ApiUrl = rest.URL
	config.GithubApi.GraphqlUrl = gql.URL
	v := newTestVerifier(config)

	handles := handleList(12)
	report, err := v.Verify(context.Background(), handles, Options{Method: MethodAuto, Token: "tok"})
	require.NoError(t, err)
	require.Len(t, report.Results, len(handles))
	for _, result := range report.Results {
		assert.Equal(t, StatusValid, result.Status)
	}
}

func TestVerifyOrderPreservation(t *testing.T) {
	// Server trả lời với độ trễ lệch nhau để thứ tự hoàn thành bị xáo trộn
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle := strings.TrimPrefix(r.URL.Path, "/users/")
		if strings.HasSuffix(handle, "1") || strings.HasSuffix(handle, "3") {
			time.Sleep(30 * time.Millisecond)
		}
		fmt.Fprintf(w, `{"login":%q,"created_at":"2020-01-01T00:00:00Z"}`, handle)
	}))
	defer srv.Close()

	config := fastConfig()
	config.GithubApi.ApiUrl = srv.URL
	v := newTestVerifier(config)

	handles := handleList(25)
	report, err := v.Verify(context.Background(), handles, Options{Method: MethodRest, Token: "tok"})
	require.NoError(t, err)
	require.Len(t, report.Results, len(handles))
	for i, result := range report.Results {
		assert.Equal(t, handles[i], result.Handle)
	}
}

func TestVerifyDeletedResultCached(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	}))
	defer srv.Close()

	config := fastConfig()
	config.GithubApi.ApiUrl = srv.URL
	v := newTestVerifier(config)

	report, err := v.Verify(context.Background(), []string{"ghost"}, Options{Method: MethodRest})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, StatusDeleted, report.Results[0].Status)

	// deleted cũng được cache, lần hai không gọi network
	_, err = v.Verify(context.Background(), []string{"ghost"}, Options{Method: MethodRest})
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestVerifyGraphqlQuotaBackoffThenFallback(t *testing.T) {
	var restCalls, gqlCalls int64
	rest := restUserServer(&restCalls)
	defer rest.Close()

	gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&gqlCalls, 1)
		fmt.Fprint(w, `{"data":null,"errors":[{"type":"RATE_LIMITED","message":"API rate limit exceeded"}]}`)
	}))
	defer gql.Close()

	config := fastConfig()
	config.GithubApi.ApiUrl = rest.URL
	config.GithubApi.GraphqlUrl = gql.URL
	v := newTestVerifier(config)

	handles := handleList(10)
	report, err := v.Verify(context.Background(), handles, Options{Method: MethodGraphql, Token: "tok"})
	require.NoError(t, err)

	// Chunk được retry đúng một lần (BackoffMaxRetries=1) rồi fallback
	assert.Equal(t, int64(2), atomic.LoadInt64(&gqlCalls))
	require.Len(t, report.Results, len(handles))
	for _, result := range report.Results {
		assert.Equal(t, StatusValid, result.Status)
	}
}

func TestVerifyCancellationKeepsCompletedResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		if n >= 5 {
			cancel() // hủy sau wave đầu tiên
		}
		handle := strings.TrimPrefix(r.URL.Path, "/users/")
		fmt.Fprintf(w, `{"login":%q,"created_at":"2020-01-01T00:00:00Z"}`, handle)
	}))
	defer srv.Close()

	config := fastConfig()
	config.Verifier.RestWaveSize = 5
	config.GithubApi.ApiUrl = srv.URL
	v := newTestVerifier(config)

	handles := handleList(15)
	report, err := v.Verify(ctx, handles, Options{Method: MethodRest})
	require.ErrorIs(t, err, ErrCancelled)

	// Wave 1 đã xong trước khi hủy, kết quả của nó phải còn nguyên
	assert.GreaterOrEqual(t, len(report.Results), 5)
	assert.Less(t, len(report.Results), len(handles))
}
