// Orchestrator chọn chiến lược verification cho một batch handle:
// cache hit trả ngay, phần miss đi GraphQL theo chunk hoặc REST theo wave,
// chunk GraphQL hỏng thì fallback sang REST cho riêng chunk đó.

package verifier

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/internal/cache"
	"github.com/thep200/github-verifier/internal/githubapi"
	"github.com/thep200/github-verifier/internal/limiter"
	"github.com/thep200/github-verifier/pkg/log"
)

type Verifier struct {
	Logger log.Logger
	Config *cfg.Config
	Cache  *cache.ResultCache[VerificationResult]
	Single *SingleValidator
	Batch  *BatchValidator
	pacer  *limiter.RateLimiter
}

func NewVerifier(logger log.Logger, config *cfg.Config) *Verifier {
	caller := githubapi.NewCaller(logger, config)
	gql := githubapi.NewGraphqlCaller(logger, config)
	pacer := limiter.NewRateLimiter(config.GithubApi.RequestsPerSecond)
	resultCache := cache.NewResultCache[VerificationResult](time.Duration(config.Verifier.CacheTtlMin) * time.Minute)

	return &Verifier{
		Logger: logger,
		Config: config,
		Cache:  resultCache,
		Single: NewSingleValidator(logger, config, caller, pacer),
		Batch:  NewBatchValidator(logger, config, gql),
		pacer:  pacer,
	}
}

// ApplyConfig nhận config mới khi file được reload và cập nhật pacing
// mà không cần restart. Cache và TTL hiện hành giữ nguyên.
func (v *Verifier) ApplyConfig(config *cfg.Config) {
	v.Config = config
	v.Single.Config = config
	v.Batch.Config = config
	v.pacer.SetLimit(config.GithubApi.RequestsPerSecond)
}

// Verify xử lý một batch handle và trả kết quả theo đúng thứ tự đầu vào.
// Khi bị hủy giữa chừng, kết quả của các chunk đã hoàn thành vẫn được giữ
// và error trả về là ErrCancelled.
func (v *Verifier) Verify(ctx context.Context, handles []string, opts Options) (*Report, error) {
	report := &Report{
		Results:    make([]VerificationResult, 0, len(handles)),
		MethodUsed: MethodCache,
		CacheStats: CacheStats{Total: len(handles)},
	}

	if len(handles) == 0 {
		return report, nil
	}

	// Partition cache hit / miss. Miss được dedup theo lowercase
	// để không gọi network hai lần cho cùng một handle.
	resolved := make(map[string]VerificationResult, len(handles))
	cacheHit := make(map[string]bool, len(handles))
	misses := make([]string, 0, len(handles))
	for _, handle := range handles {
		lower := strings.ToLower(handle)
		if _, ok := resolved[lower]; ok {
			continue
		}
		if result, ok := v.Cache.Get(handle); ok {
			resolved[lower] = result
			cacheHit[lower] = true
			continue
		}
		resolved[lower] = VerificationResult{}
		misses = append(misses, handle)
	}

	var cancelErr error
	if len(misses) > 0 {
		method := v.chooseMethod(len(misses), opts)
		report.MethodUsed = method

		merge := v.newMergeSink(resolved)
		if method == MethodGraphql {
			cancelErr = v.runGraphql(ctx, misses, opts.Token, merge)
		} else {
			cancelErr = v.runRestWaves(ctx, misses, opts.Token, merge)
		}

		// Ghi cache cho các miss đã resolve xong, lỗi transient không cache
		for _, handle := range misses {
			result := resolved[strings.ToLower(handle)]
			if result.Status == StatusValid || result.Status == StatusDeleted {
				v.Cache.Put(handle, result)
			}
		}
	}

	// Trả đúng một kết quả cho mỗi vị trí đầu vào, theo thứ tự submit;
	// vị trí trùng handle nhận lại cùng kết quả đã resolve
	for _, handle := range handles {
		lower := strings.ToLower(handle)
		result := resolved[lower]
		if result.Status == "" {
			continue
		}
		report.Results = append(report.Results, result)
		if cacheHit[lower] {
			report.CacheStats.Cached++
		} else {
			report.CacheStats.Validated++
		}
	}

	if cancelErr != nil {
		return report, ErrCancelled
	}
	return report, nil
}

// chooseMethod chọn protocol: GraphQL khi được chỉ định tường minh, hoặc auto
// với token và số miss đủ lớn để đáng giá một batch query; còn lại dùng REST
func (v *Verifier) chooseMethod(missCount int, opts Options) Method {
	if opts.Method == MethodGraphql {
		return MethodGraphql
	}
	if opts.Method == MethodAuto && opts.Token != "" && missCount >= v.Config.Verifier.BatchThreshold {
		return MethodGraphql
	}
	return MethodRest
}

// mergeSink là điểm collect có đồng bộ duy nhất cho kết quả từ các task song song
type mergeSink func(results []VerificationResult)

func (v *Verifier) newMergeSink(resolved map[string]VerificationResult) mergeSink {
	var mu sync.Mutex
	return func(results []VerificationResult) {
		mu.Lock()
		defer mu.Unlock()
		for _, r := range results {
			resolved[strings.ToLower(r.Handle)] = r
		}
	}
}

// runGraphql chạy các chunk GraphQL với số chunk đồng thời bị chặn trên.
// Một chunk hỏng chỉ kéo chunk đó sang REST fallback, không kéo cả request.
func (v *Verifier) runGraphql(ctx context.Context, handles []string, token string, merge mergeSink) error {
	cfgV := v.Config.Verifier
	chunks := chunkStrings(handles, cfgV.GraphqlChunkSize)

	workers := make(chan struct{}, cfgV.GraphqlConcurrency)
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

			var results []VerificationResult
			err := withBackoff(ctx, v.Logger,
				time.Duration(cfgV.BackoffBaseSec)*time.Second,
				time.Duration(cfgV.BackoffCapSec)*time.Second,
				cfgV.BackoffMaxRetries,
				func() error {
					v.pacer.Wait(time.Duration(v.Config.GithubApi.ThrottleDelay) * time.Millisecond)
					var callErr error
					results, callErr = v.Batch.ValidateBatch(ctx, chunk, token)
					return callErr
				})

			if err != nil {
				if ctx.Err() != nil {
					setCancel(ctx.Err())
					return
				}

				// Chunk fail cả sau backoff thì từng handle đi đường REST
				v.Logger.Warn(ctx, "GraphQL chunk failed, falling back to REST for %d handles: %v", len(chunk), err)
				if fbErr := v.runRestWaves(ctx, chunk, token, merge); fbErr != nil {
					setCancel(fbErr)
				}
				return
			}

			merge(results)
		}(chunk)
	}

	wg.Wait()

	cancelMu.Lock()
	defer cancelMu.Unlock()
	return cancelErr
}

// runRestWaves xử lý handle theo wave: song song hết cỡ trong một wave,
// nghỉ một khoảng giữa các wave để giữ quota. Wave size và delay phụ thuộc
// vào việc có token hay không.
func (v *Verifier) runRestWaves(ctx context.Context, handles []string, token string, merge mergeSink) error {
	cfgV := v.Config.Verifier

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

		results := make([]VerificationResult, len(wave))
		var wg sync.WaitGroup
		for j, handle := range wave {
			wg.Add(1)
			go func(j int, handle string) {
				defer wg.Done()
				results[j] = v.Single.Validate(ctx, handle, token)
			}(j, handle)
		}
		wg.Wait()
		merge(results)

		// Delay giữa các wave, wave cuối không cần
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
