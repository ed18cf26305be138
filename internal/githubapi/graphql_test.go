package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/pkg/log"
)

func graphqlConfig(gqlUrl string) *cfg.Config {
	config, _ := (&cfg.MockLoader{}).Load()
	config.GithubApi.GraphqlUrl = gqlUrl
	return config
}

func TestCallUserBatch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bearer tok123", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		gotQuery = payload["query"]

		fmt.Fprint(w, `{
			"data": {
				"u0": {"login":"octocat","name":"The Octocat","createdAt":"2011-01-25T18:44:36Z",
					"repositories":{"totalCount":8},"followers":{"totalCount":100},"following":{"totalCount":9}},
				"u1": null
			},
			"errors": [{"type":"NOT_FOUND","path":["u1"],"message":"Could not resolve to a User"}]
		}`)
	}))
	defer srv.Close()

	logger, _ := log.NewNopLogger()
	gql := NewGraphqlCaller(logger, graphqlConfig(srv.URL))

	results, err := gql.CallUserBatch(context.Background(), []string{"octocat", "GhostUser"}, "tok123")
	require.NoError(t, err)

	// Query phải chứa alias cho từng handle
	assert.Contains(t, gotQuery, `u0: user(login: "octocat")`)
	assert.Contains(t, gotQuery, `u1: user(login: "GhostUser")`)

	// Kết quả map theo handle viết thường
	oc := results["octocat"]
	require.NotNil(t, oc.User)
	assert.Equal(t, "The Octocat", oc.User.Name)
	assert.Equal(t, 8, oc.User.Repositories.TotalCount)

	ghost := results["ghostuser"]
	assert.Nil(t, ghost.User)
	assert.True(t, ghost.NotFound)
}

func TestCallUserBatchMissingAlias(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Alias u0 biến mất khỏi response mà không có error đi kèm
		fmt.Fprint(w, `{"data": {}}`)
	}))
	defer srv.Close()

	logger, _ := log.NewNopLogger()
	gql := NewGraphqlCaller(logger, graphqlConfig(srv.URL))

	results, err := gql.CallUserBatch(context.Background(), []string{"octocat"}, "tok")
	require.NoError(t, err)
	assert.Equal(t, "MISSING_ALIAS", results["octocat"].ErrType)
}

func TestCallUserBatchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": null, "errors": [{"type":"RATE_LIMITED","message":"API rate limit exceeded"}]}`)
	}))
	defer srv.Close()

	logger, _ := log.NewNopLogger()
	gql := NewGraphqlCaller(logger, graphqlConfig(srv.URL))

	_, err := gql.CallUserBatch(context.Background(), []string{"octocat"}, "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestCallUserBatchRequiresToken(t *testing.T) {
	logger, _ := log.NewNopLogger()
	gql := NewGraphqlCaller(logger, graphqlConfig("http://127.0.0.1:1"))

	_, err := gql.CallUserBatch(context.Background(), []string{"octocat"}, "")
	require.Error(t, err)
}

func TestCallEngagementBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"data": {
				"e0": {
					"login": "octocat",
					"starredRepositories": {"nodes": [{"nameWithOwner":"vercel/next.js"}]},
					"repositories": {"nodes": [{"name":"next.js","parent":{"nameWithOwner":"vercel/next.js"}}]}
				},
				"e1": null
			},
			"errors": [{"type":"NOT_FOUND","path":["e1"],"message":"Could not resolve to a User"}]
		}`)
	}))
	defer srv.Close()

	logger, _ := log.NewNopLogger()
	gql := NewGraphqlCaller(logger, graphqlConfig(srv.URL))

	results, err := gql.CallEngagementBatch(context.Background(), []string{"octocat", "ghost"}, "tok")
	require.NoError(t, err)

	oc := results["octocat"]
	require.Len(t, oc.Starred, 1)
	assert.Equal(t, "vercel/next.js", oc.Starred[0])
	require.Len(t, oc.Forks, 1)
	assert.Equal(t, "vercel/next.js", oc.Forks[0].Parent)

	assert.True(t, results["ghost"].NotFound)
}
