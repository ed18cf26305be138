package verifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/internal/githubapi"
	"github.com/thep200/github-verifier/internal/limiter"
	"github.com/thep200/github-verifier/pkg/log"
)

// SingleValidator xác thực một handle qua REST, mỗi call một resource.
// Đây là primitive cho fallback và cho các request nhỏ/không có token.
type SingleValidator struct {
	Logger log.Logger
	Config *cfg.Config
	Caller *githubapi.Caller
	pacer  *limiter.RateLimiter
}

func NewSingleValidator(logger log.Logger, config *cfg.Config, caller *githubapi.Caller, pacer *limiter.RateLimiter) *SingleValidator {
	return &SingleValidator{
		Logger: logger,
		Config: config,
		Caller: caller,
		pacer:  pacer,
	}
}

// Validate không bao giờ trả lỗi ra ngoài: mọi outcome, kể cả lỗi transport,
// đều được map thành một VerificationResult.
func (s *SingleValidator) Validate(ctx context.Context, handle string, token string) VerificationResult {
	s.pacer.Wait(time.Duration(s.Config.GithubApi.ThrottleDelay) * time.Millisecond)

	res, err := s.Caller.CallUser(ctx, handle, token)
	if err != nil {
		return VerificationResult{
			Handle:       handle,
			Status:       StatusError,
			ErrorMessage: err.Error(),
		}
	}

	switch {
	case res.StatusCode == http.StatusOK:
		return VerificationResult{
			Handle: handle,
			Status: StatusValid,
			Profile: &Profile{
				Name:        res.User.Name,
				Bio:         res.User.Bio,
				PublicRepos: res.User.PublicRepos,
				Followers:   res.User.Followers,
				Following:   res.User.Following,
				CreatedAt:   res.User.CreatedAt,
			},
		}

	case res.StatusCode == http.StatusNotFound:
		return VerificationResult{
			Handle:       handle,
			Status:       StatusDeleted,
			ErrorMessage: MsgDeleted,
		}

	case res.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(res.Message), "rate limit"):
		s.Logger.Warn(ctx, "Rate limit hit for %s, quota resets in %v",
			handle, s.Caller.ResetWait(res.RateReset).Round(time.Second))
		return VerificationResult{
			Handle:       handle,
			Status:       StatusError,
			ErrorMessage: MsgRateLimited,
		}

	case res.StatusCode == http.StatusForbidden:
		return VerificationResult{
			Handle:       handle,
			Status:       StatusError,
			ErrorMessage: MsgForbidden,
		}

	default:
		return VerificationResult{
			Handle:       handle,
			Status:       StatusError,
			ErrorMessage: fmt.Sprintf("unexpected status code %d", res.StatusCode),
		}
	}
}
