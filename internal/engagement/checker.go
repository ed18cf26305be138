package engagement

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/internal/githubapi"
	"github.com/thep200/github-verifier/internal/limiter"
	"github.com/thep200/github-verifier/pkg/log"
)

// EngagementResult cho biết một handle đã star/fork repository đích chưa.
// Error chỉ được set khi cả hai call của đường single cùng fault;
// khi đó hai flag vẫn là false.
type EngagementResult struct {
	Handle     string `json:"handle"`
	HasStarred bool   `json:"has_starred"`
	HasForked  bool   `json:"has_forked"`
	Error      string `json:"error,omitempty"`
}

// Checker chạy engagement theo đúng pattern batch-vs-single của verifier:
// GraphQL chunk nhỏ (mỗi alias kéo hai nested list) có fallback REST per-chunk.
type Checker struct {
	Logger log.Logger
	Config *cfg.Config
	Caller *githubapi.Caller
	Gql    *githubapi.GraphqlCaller
	pacer  *limiter.RateLimiter
}

func NewChecker(logger log.Logger, config *cfg.Config) *Checker {
	return &Checker{
		Logger: logger,
		Config: config,
		Caller: githubapi.NewCaller(logger, config),
		Gql:    githubapi.NewGraphqlCaller(logger, config),
		pacer:  limiter.NewRateLimiter(config.GithubApi.RequestsPerSecond),
	}
}

// ApplyConfig nhận config mới khi file được reload và cập nhật pacing
func (c *Checker) ApplyConfig(config *cfg.Config) {
	c.Config = config
	c.pacer.SetLimit(config.GithubApi.RequestsPerSecond)
}

// CheckEngagement trả về engagement cho từng handle theo thứ tự đầu vào.
// Có token thì đi batch GraphQL, không thì đi REST từng handle.
func (c *Checker) CheckEngagement(ctx context.Context, ref *RepositoryRef, handles []string, token string) ([]EngagementResult, error) {
	if len(handles) == 0 {
		return []EngagementResult{}, nil
	}
	if token == "" {
		token = c.Config.GithubApi.AccessToken
	}

	resolved := make(map[string]EngagementResult, len(handles))
	var mu sync.Mutex
	merge := func(results []EngagementResult) {
		mu.Lock()
		defer mu.Unlock()
		for _, r := range results {
			resolved[strings.ToLower(r.Handle)] = r
		}
	}

	var runErr error
	if token != "" {
		runErr = c.runGraphql(ctx, ref, handles, token, merge)
	} else {
		runErr = c.runRestWaves(ctx, ref, handles, token, merge)
	}

	out := make([]EngagementResult, 0, len(handles))
	seen := make(map[string]bool, len(handles))
	for _, handle := range handles {
		lower := strings.ToLower(handle)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		if r, ok := resolved[lower]; ok {
			out = append(out, r)
		}
	}

	return out, runErr
}

func (c *Checker) runGraphql(ctx context.Context, ref *RepositoryRef, handles []string, token string, merge func([]EngagementResult)) error {
	cfgV := c.Config.Verifier
	chunks := chunkStrings(handles, cfgV.EngagementChunkSize)

	workers := make(chan struct{}, cfgV.EngagementConcurrency)
	var wg sync.WaitGroup

	var cancelMu sync.Mutex
	var cancelErr error
	setCancel := func(err error) {
		cancelMu.Lock()
		if cancelErr == nil {
			cancelErr = err
		}
		cancelMu.Unlock()
	}

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			setCancel(err)
			break
		}

		workers <- struct{}{}
		wg.Add(1)
		go func(chunk []string) {
			defer wg.Done()
			defer func() { <-workers }()

			c.pacer.Wait(time.Duration(c.Config.GithubApi.ThrottleDelay) * time.Millisecond)
			aliases, err := c.Gql.CallEngagementBatch(ctx, chunk, token)
			if err != nil {
				if ctx.Err() != nil {
					setCancel(ctx.Err())
					return
				}

				// Chunk hỏng thì từng handle trong chunk đi đường REST
				c.Logger.Warn(ctx, "Engagement GraphQL chunk failed, falling back to REST for %d handles: %v", len(chunk), err)
				if fbErr := c.runRestWaves(ctx, ref, chunk, token, merge); fbErr != nil {
					setCancel(fbErr)
				}
				return
			}

			results := make([]EngagementResult, 0, len(chunk))
			for _, handle := range chunk {
				ea := aliases[strings.ToLower(handle)]
				result := EngagementResult{Handle: handle}

				for _, starred := range ea.Starred {
					if ref.Matches(starred) {
						result.HasStarred = true
						break
					}
				}
				for _, fork := range ea.Forks {
					if ref.Matches(fork.Parent) || (fork.Parent == "" && ref.MatchesName(fork.Name)) {
						result.HasForked = true
						break
					}
				}

				results = append(results, result)
			}
			merge(results)
		}(chunk)
	}

	wg.Wait()

	cancelMu.Lock()
	defer cancelMu.Unlock()
	return cancelErr
}

// runRestWaves kiểm tra engagement từng handle bằng hai call REST độc lập:
// danh sách starred và danh sách repo (dò fork). Call nào non-success thì
// flag tương ứng giữ false; cả hai cùng fault mới set Error cho handle.
func (c *Checker) runRestWaves(ctx context.Context, ref *RepositoryRef, handles []string, token string, merge func([]EngagementResult)) error {
	cfgV := c.Config.Verifier

	waveSize := cfgV.RestWaveSize
	delay := time.Duration(cfgV.RestDelayMs) * time.Millisecond
	if token != "" {
		waveSize = cfgV.RestWaveSizeToken
		delay = time.Duration(cfgV.RestDelayTokenMs) * time.Millisecond
	}

	waves := chunkStrings(handles, waveSize)
	for i, wave := range waves {
		if err := ctx.Err(); err != nil {
			return err
		}

		results := make([]EngagementResult, len(wave))
		var wg sync.WaitGroup
		for j, handle := range wave {
			wg.Add(1)
			go func(j int, handle string) {
				defer wg.Done()
				results[j] = c.checkSingle(ctx, ref, handle, token)
			}(j, handle)
		}
		wg.Wait()
		merge(results)

		if i < len(waves)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil
}

func (c *Checker) checkSingle(ctx context.Context, ref *RepositoryRef, handle string, token string) EngagementResult {
	result := EngagementResult{Handle: handle}

	c.pacer.Wait(time.Duration(c.Config.GithubApi.ThrottleDelay) * time.Millisecond)
	starred, starredErr := c.Caller.CallStarred(ctx, handle, token)
	if starredErr == nil && starred.StatusCode == 200 {
		for _, repo := range starred.Repos {
			if ref.Matches(repo.FullName) {
				result.HasStarred = true
				break
			}
		}
	}

	c.pacer.Wait(time.Duration(c.Config.GithubApi.ThrottleDelay) * time.Millisecond)
	repos, reposErr := c.Caller.CallRepos(ctx, handle, token)
	if reposErr == nil && repos.StatusCode == 200 {
		for _, repo := range repos.Repos {
			if repo.Fork && ref.MatchesName(repo.Name) {
				result.HasForked = true
				break
			}
		}
	}

	// Cả hai call cùng fault thì handle này mang error nhưng flag vẫn false
	if starredErr != nil && reposErr != nil {
		result.Error = starredErr.Error()
	}

	return result
}

func chunkStrings(items []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
