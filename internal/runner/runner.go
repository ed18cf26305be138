package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/internal/engagement"
	"github.com/thep200/github-verifier/internal/verifier"
	"github.com/thep200/github-verifier/pkg/kafka"
	"github.com/thep200/github-verifier/pkg/log"
)

// Stats là snapshot trạng thái của một lượt chạy, đọc được bất cứ lúc nào
type Stats struct {
	IsRunning      bool      `json:"is_running"`
	IsPaused       bool      `json:"is_paused"`
	Cancelled      bool      `json:"cancelled"`
	StartTime      time.Time `json:"start_time"`
	Duration       string    `json:"duration"`
	EstimatedTotal string    `json:"estimated_total"`
	MethodUsed     string    `json:"method_used"`
	Pending        int       `json:"pending"`
	Processing     int       `json:"processing"`
	Valid          int       `json:"valid"`
	Invalid        int       `json:"invalid"`
	Duplicate      int       `json:"duplicate"`
	Deleted        int       `json:"deleted"`
	Error          int       `json:"error"`
	Starred        int       `json:"starred"`
	Forked         int       `json:"forked"`
	LastError      string    `json:"last_error,omitempty"`
}

// Event phát lên kafka sau mỗi record chuyển trạng thái
type Event struct {
	Type       string `json:"type"`
	Handle     string `json:"handle"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Repository string `json:"repository,omitempty"`
	HasStarred bool   `json:"has_starred,omitempty"`
	HasForked  bool   `json:"has_forked,omitempty"`
}

// Runner điều khiển vòng đời của một lượt verify: submit theo chunk,
// engagement pass cho record valid, pause/resume tại ranh giới chunk
type Runner struct {
	Logger   log.Logger
	Config   *cfg.Config
	Verifier *verifier.Verifier
	Checker  *engagement.Checker

	// Producer là optional, nil nghĩa là không phát event
	VerificationProducer *kafka.Producer
	EngagementProducer   *kafka.Producer

	mu        sync.RWMutex
	records   []*IdentityRecord
	running   bool
	cancelled bool
	startTime time.Time
	duration  time.Duration
	estimated time.Duration
	method    verifier.Method
	lastError string

	// resumeCh đóng nghĩa là đang chạy, mở nghĩa là đang pause.
	// Pause chỉ có hiệu lực tại ranh giới chunk, chunk đang bay vẫn chạy nốt.
	resumeCh chan struct{}
}

func NewRunner(logger log.Logger, config *cfg.Config, vf *verifier.Verifier, checker *engagement.Checker) *Runner {
	ch := make(chan struct{})
	close(ch)
	return &Runner{
		Logger:   logger,
		Config:   config,
		Verifier: vf,
		Checker:  checker,
		resumeCh: ch,
	}
}

// Load thay toàn bộ record set bằng input mới. Validation và dedup chạy
// ngay tại đây, trước khi bất kỳ network call nào được thực hiện
func (r *Runner) Load(values []string) {
	records := BuildRecords(values)
	r.mu.Lock()
	r.records = records
	r.cancelled = false
	r.lastError = ""
	r.duration = 0
	r.mu.Unlock()
}

// Run xử lý toàn bộ record pending rồi chạy engagement pass nếu có repoUrl.
// Trả về verifier.ErrCancelled khi bị hủy, kết quả đã hoàn thành được giữ lại
func (r *Runner) Run(ctx context.Context, repoUrl string, opts verifier.Options) error {
	var ref *engagement.RepositoryRef
	if repoUrl != "" {
		parsed, err := engagement.ParseRepoURL(repoUrl)
		if err != nil {
			return fmt.Errorf("invalid repository url: %w", err)
		}
		ref = parsed
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("verification already running")
	}
	r.running = true
	r.cancelled = false
	r.startTime = time.Now()
	r.lastError = ""
	pending := make([]*IdentityRecord, 0, len(r.records))
	for _, record := range r.records {
		if record.Status == StatusPending {
			pending = append(pending, record)
		}
	}
	r.estimated = r.estimateDuration(len(pending), opts)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.duration = time.Since(r.startTime)
		r.mu.Unlock()
	}()

	if err := r.verifyPass(ctx, pending, opts); err != nil {
		return err
	}
	if ref != nil {
		if err := r.engagementPass(ctx, ref, opts.Token); err != nil {
			return err
		}
	}

	r.Logger.Info(ctx, "verification run finished, total=%d", len(pending))
	return nil
}

func (r *Runner) verifyPass(ctx context.Context, pending []*IdentityRecord, opts verifier.Options) error {
	chunkSize := r.Config.Verifier.SubmitChunkSize
	delay := time.Duration(r.Config.Verifier.SubmitDelayMs) * time.Millisecond
	chunks := chunkRecords(pending, chunkSize)

	for i, chunk := range chunks {
		if err := r.gate(ctx); err != nil {
			return r.abort(err)
		}

		handles := make([]string, 0, len(chunk))
		r.mu.Lock()
		for _, record := range chunk {
			record.Status = StatusProcessing
			handles = append(handles, record.Handle)
		}
		r.mu.Unlock()

		report, err := r.Verifier.Verify(ctx, handles, opts)
		r.applyResults(ctx, chunk, report)
		if err != nil {
			return r.abort(err)
		}

		if i < len(chunks)-1 && delay > 0 {
			select {
			case <-ctx.Done():
				return r.abort(verifier.ErrCancelled)
			case <-time.After(delay):
			}
		}
	}
	return nil
}

// applyResults chuyển record processing sang trạng thái terminal theo report.
// Record không có kết quả (lượt chạy bị hủy giữa chừng) quay lại pending
func (r *Runner) applyResults(ctx context.Context, chunk []*IdentityRecord, report *verifier.Report) {
	byHandle := make(map[string]verifier.VerificationResult)
	if report != nil {
		for _, result := range report.Results {
			byHandle[strings.ToLower(result.Handle)] = result
		}
	}

	// Payload cho event được dựng ngay trong critical section vì
	// RetryTransient có thể ghi đè record cùng lúc
	events := make([]Event, 0, len(chunk))
	r.mu.Lock()
	if report != nil {
		r.method = report.MethodUsed
	}
	for _, record := range chunk {
		result, ok := byHandle[strings.ToLower(record.Handle)]
		if !ok {
			record.Status = StatusPending
			continue
		}
		switch result.Status {
		case verifier.StatusValid:
			record.Status = StatusValid
			record.Profile = result.Profile
			record.Error = ""
		case verifier.StatusDeleted:
			record.Status = StatusDeleted
			record.Error = result.ErrorMessage
		default:
			record.Status = StatusError
			record.Error = result.ErrorMessage
		}
		events = append(events, Event{
			Type:   "verification",
			Handle: record.Handle,
			Status: string(record.Status),
			Error:  record.Error,
		})
	}
	r.mu.Unlock()

	for _, event := range events {
		r.publish(ctx, r.VerificationProducer, event)
	}
}

func (r *Runner) engagementPass(ctx context.Context, ref *engagement.RepositoryRef, token string) error {
	r.mu.RLock()
	valid := make([]*IdentityRecord, 0)
	for _, record := range r.records {
		if record.Status == StatusValid && record.Engagement == nil {
			valid = append(valid, record)
		}
	}
	r.mu.RUnlock()
	if len(valid) == 0 {
		return nil
	}

	chunkSize := r.Config.Verifier.SubmitChunkSize
	delay := time.Duration(r.Config.Verifier.SubmitDelayMs) * time.Millisecond
	chunks := chunkRecords(valid, chunkSize)

	for i, chunk := range chunks {
		if err := r.gate(ctx); err != nil {
			return r.abort(err)
		}

		handles := make([]string, 0, len(chunk))
		for _, record := range chunk {
			handles = append(handles, record.Handle)
		}
		results, err := r.Checker.CheckEngagement(ctx, ref, handles, token)
		r.applyEngagement(ctx, chunk, ref, results)
		if err != nil {
			return r.abort(err)
		}

		if i < len(chunks)-1 && delay > 0 {
			select {
			case <-ctx.Done():
				return r.abort(verifier.ErrCancelled)
			case <-time.After(delay):
			}
		}
	}
	return nil
}

func (r *Runner) applyEngagement(ctx context.Context, chunk []*IdentityRecord, ref *engagement.RepositoryRef, results []engagement.EngagementResult) {
	byHandle := make(map[string]engagement.EngagementResult, len(results))
	for _, result := range results {
		byHandle[strings.ToLower(result.Handle)] = result
	}

	events := make([]Event, 0, len(chunk))
	r.mu.Lock()
	for _, record := range chunk {
		result, ok := byHandle[strings.ToLower(record.Handle)]
		if !ok {
			continue
		}
		copied := result
		record.Engagement = &copied
		events = append(events, Event{
			Type:       "engagement",
			Handle:     record.Handle,
			Status:     string(record.Status),
			Error:      copied.Error,
			Repository: ref.FullName(),
			HasStarred: copied.HasStarred,
			HasForked:  copied.HasForked,
		})
	}
	r.mu.Unlock()

	for _, event := range events {
		r.publish(ctx, r.EngagementProducer, event)
	}
}

// gate chặn tại ranh giới chunk khi đang pause, thoát khi resume hoặc cancel
func (r *Runner) gate(ctx context.Context) error {
	for {
		r.mu.RLock()
		cancelled := r.cancelled
		ch := r.resumeCh
		r.mu.RUnlock()

		if cancelled {
			return verifier.ErrCancelled
		}
		select {
		case <-ctx.Done():
			return verifier.ErrCancelled
		case <-ch:
		}

		// Channel đóng nghĩa là hết pause, nhưng phải đọc lại state vì
		// Cancel hoặc một lần Pause mới có thể vừa xen vào
		r.mu.RLock()
		cancelled = r.cancelled
		same := ch == r.resumeCh
		r.mu.RUnlock()
		if cancelled {
			return verifier.ErrCancelled
		}
		if same {
			return nil
		}
	}
}

func (r *Runner) abort(err error) error {
	r.mu.Lock()
	if err != nil {
		r.lastError = err.Error()
	}
	if errors.Is(err, verifier.ErrCancelled) || errors.Is(err, context.Canceled) {
		r.cancelled = true
		r.lastError = verifier.ErrCancelled.Error()
		err = verifier.ErrCancelled
	}
	r.mu.Unlock()
	return err
}

// Pause tạm dừng tại ranh giới chunk kế tiếp, chunk đang bay chạy nốt
func (r *Runner) Pause(ctx context.Context) {
	r.mu.Lock()
	select {
	case <-r.resumeCh:
		r.resumeCh = make(chan struct{})
		r.Logger.Info(ctx, "verification paused")
	default:
	}
	r.mu.Unlock()
}

func (r *Runner) Resume(ctx context.Context) {
	r.mu.Lock()
	select {
	case <-r.resumeCh:
	default:
		close(r.resumeCh)
		r.Logger.Info(ctx, "verification resumed")
	}
	r.mu.Unlock()
}

// Cancel dừng hẳn lượt chạy, kết quả đã hoàn thành được giữ nguyên
func (r *Runner) Cancel(ctx context.Context) {
	r.mu.Lock()
	r.cancelled = true
	select {
	case <-r.resumeCh:
	default:
		close(r.resumeCh)
	}
	r.mu.Unlock()
	r.Logger.Info(ctx, "verification cancelled by user")
}

// RetryTransient đưa record lỗi quota quay lại pending, trả về số record retry
func (r *Runner) RetryTransient() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.records {
		if record.IsTransient() {
			record.Status = StatusPending
			record.Error = ""
			count++
		}
	}
	return count
}

func (r *Runner) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		IsRunning:      r.running,
		Cancelled:      r.cancelled,
		StartTime:      r.startTime,
		EstimatedTotal: r.estimated.Round(time.Second).String(),
		MethodUsed:     string(r.method),
		LastError:      r.lastError,
	}
	select {
	case <-r.resumeCh:
	default:
		stats.IsPaused = true
	}
	if r.running {
		stats.Duration = time.Since(r.startTime).Round(time.Second).String()
	} else {
		stats.Duration = r.duration.Round(time.Second).String()
	}

	for _, record := range r.records {
		switch record.Status {
		case StatusPending:
			stats.Pending++
		case StatusProcessing:
			stats.Processing++
		case StatusValid:
			stats.Valid++
		case StatusInvalid:
			stats.Invalid++
		case StatusDuplicate:
			stats.Duplicate++
		case StatusDeleted:
			stats.Deleted++
		case StatusError:
			stats.Error++
		}
		if record.Engagement != nil {
			if record.Engagement.HasStarred {
				stats.Starred++
			}
			if record.Engagement.HasForked {
				stats.Forked++
			}
		}
	}
	return stats
}

// Records trả về snapshot copy để caller đọc an toàn
func (r *Runner) Records() []IdentityRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]IdentityRecord, 0, len(r.records))
	for _, record := range r.records {
		out = append(out, *record)
	}
	return out
}

// estimateDuration ước lượng thô thời gian chạy để hiển thị ETA,
// không dùng cho bất kỳ quyết định scheduling nào
func (r *Runner) estimateDuration(count int, opts verifier.Options) time.Duration {
	if count == 0 {
		return 0
	}
	vc := r.Config.Verifier
	if opts.Token != "" && count >= vc.BatchThreshold && opts.Method != verifier.MethodRest {
		chunks := (count + vc.GraphqlChunkSize - 1) / vc.GraphqlChunkSize
		rounds := (chunks + vc.GraphqlConcurrency - 1) / vc.GraphqlConcurrency
		return time.Duration(rounds) * 2 * time.Second
	}

	waveSize := vc.RestWaveSize
	waveDelay := time.Duration(vc.RestDelayMs) * time.Millisecond
	if opts.Token != "" {
		waveSize = vc.RestWaveSizeToken
		waveDelay = time.Duration(vc.RestDelayTokenMs) * time.Millisecond
	}
	waves := (count + waveSize - 1) / waveSize
	return time.Duration(waves) * (waveDelay + 500*time.Millisecond)
}

func (r *Runner) publish(ctx context.Context, producer *kafka.Producer, event Event) {
	if producer == nil {
		return
	}
	if err := producer.Publish(ctx, event.Handle, event); err != nil {
		r.Logger.Warn(ctx, "failed to publish event for %s: %v", event.Handle, err)
	}
}

func chunkRecords(records []*IdentityRecord, size int) [][]*IdentityRecord {
	if size <= 0 {
		size = len(records)
	}
	var chunks [][]*IdentityRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
