// Package api cung cấp các API public để tương tác với GitHub verifier
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/internal/engagement"
	"github.com/thep200/github-verifier/internal/runner"
	"github.com/thep200/github-verifier/internal/verifier"
	"github.com/thep200/github-verifier/pkg/kafka"
	"github.com/thep200/github-verifier/pkg/log"
)

// VerifierAPI cung cấp các API để tương tác với verification engine
type VerifierAPI struct {
	ctx     context.Context
	config  *cfg.Config
	logger  log.Logger
	runner  *runner.Runner
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewVerifierAPI tạo một instance mới của VerifierAPI
func NewVerifierAPI() *VerifierAPI {
	return &VerifierAPI{}
}

// Initialize khởi tạo các thành phần cần thiết cho verifier
func (a *VerifierAPI) Initialize(ctx context.Context) error {
	a.ctx = ctx

	var err error

	// Load configuration
	loader, _ := cfg.NewViperLoader()
	a.config, err = loader.Load()
	if err != nil {
		a.logger, _ = log.NewCslLogger()
		a.logger.Error(a.ctx, "Failed to load configuration: %v", err)
		return err
	}

	// Set up logger
	a.logger, err = log.NewCslLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	vf := verifier.NewVerifier(a.logger, a.config)
	checker := engagement.NewChecker(a.logger, a.config)
	a.runner = runner.NewRunner(a.logger, a.config, vf, checker)

	// Kafka producer là optional, không có broker thì chạy không event
	if producer, err := kafka.NewProducer(a.config, a.logger, a.config.Kafka.Producer.TopicVerification); err == nil {
		a.runner.VerificationProducer = producer
	} else {
		a.logger.Warn(a.ctx, "Kafka producer disabled: %v", err)
	}
	if producer, err := kafka.NewProducer(a.config, a.logger, a.config.Kafka.Producer.TopicEngagement); err == nil {
		a.runner.EngagementProducer = producer
	}

	return nil
}

// LoadUsernames nạp danh sách username, validate và dedup trước khi chạy
func (a *VerifierAPI) LoadUsernames(values []string) (int, error) {
	if a.runner == nil {
		return 0, errors.New("verifier is not initialized")
	}

	a.mu.Lock()
	running := a.running
	a.mu.Unlock()
	if running {
		return 0, errors.New("cannot load usernames while verification is running")
	}

	a.runner.Load(values)
	stats := a.runner.Stats()
	return stats.Pending, nil
}

// StartVerification bắt đầu lượt verify trong background.
// repoUrl rỗng nghĩa là bỏ qua engagement pass.
func (a *VerifierAPI) StartVerification(repoUrl string, token string, method string) (string, error) {
	if a.runner == nil {
		return "", errors.New("verifier is not initialized")
	}

	opts := verifier.Options{Token: token}
	switch method {
	case "", "auto":
		opts.Method = verifier.MethodAuto
	case "batch":
		opts.Method = verifier.MethodGraphql
	case "single":
		opts.Method = verifier.MethodRest
	default:
		return "", errors.New("invalid method: " + method)
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return "Verification is already in progress", nil
	}
	a.running = true
	runCtx, cancel := context.WithCancel(a.ctx)
	a.cancel = cancel
	a.mu.Unlock()

	go func() {
		err := a.runner.Run(runCtx, repoUrl, opts)
		if err != nil && !errors.Is(err, verifier.ErrCancelled) {
			a.logger.Error(runCtx, "Verification run failed: %v", err)
		}
		cancel()

		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	return "Started verification", nil
}

// PauseVerification tạm dừng tại ranh giới chunk kế tiếp
func (a *VerifierAPI) PauseVerification() (string, error) {
	if a.runner == nil {
		return "", errors.New("verifier is not initialized")
	}
	a.runner.Pause(a.ctx)
	return "Verification paused", nil
}

// ResumeVerification tiếp tục lượt verify đang pause
func (a *VerifierAPI) ResumeVerification() (string, error) {
	if a.runner == nil {
		return "", errors.New("verifier is not initialized")
	}
	a.runner.Resume(a.ctx)
	return "Verification resumed", nil
}

// StopVerification hủy lượt verify, kết quả đã hoàn thành được giữ lại
func (a *VerifierAPI) StopVerification() (string, error) {
	if a.runner == nil {
		return "", errors.New("verifier is not initialized")
	}

	a.mu.Lock()
	running := a.running
	cancel := a.cancel
	a.mu.Unlock()

	if !running {
		return "No verification is in progress", nil
	}

	a.runner.Cancel(a.ctx)
	if cancel != nil {
		cancel()
	}
	return "Stopping verification (completed results are kept)", nil
}

// RetryTransient đưa các record lỗi quota quay lại hàng chờ
func (a *VerifierAPI) RetryTransient() (int, error) {
	if a.runner == nil {
		return 0, errors.New("verifier is not initialized")
	}
	return a.runner.RetryTransient(), nil
}

// GetVerifyStats trả về thống kê của lượt verify hiện tại
func (a *VerifierAPI) GetVerifyStats() (*runner.Stats, error) {
	if a.runner == nil {
		return &runner.Stats{}, nil
	}
	stats := a.runner.Stats()
	return &stats, nil
}

// GetRecords trả về snapshot toàn bộ record cho tầng hiển thị
func (a *VerifierAPI) GetRecords() ([]runner.IdentityRecord, error) {
	if a.runner == nil {
		return nil, errors.New("verifier is not initialized")
	}
	return a.runner.Records(), nil
}
