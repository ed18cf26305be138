package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/internal/engagement"
	"github.com/thep200/github-verifier/internal/limiter"
	"github.com/thep200/github-verifier/internal/verifier"
	"github.com/thep200/github-verifier/pkg/log"
)

type Handler struct {
	Logger   log.Logger
	Config   *cfg.Config
	Verifier *verifier.Verifier
	Checker  *engagement.Checker
	Quota    *limiter.QuotaLimiter
}

type validateRequest struct {
	Handles     []string `json:"handles"`
	Credentials string   `json:"credentials,omitempty"`
	Method      string   `json:"method,omitempty"`
}

type quotaInfo struct {
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
	Limit     int       `json:"limit"`
}

type validateResponse struct {
	Results    []verifier.VerificationResult `json:"results"`
	Quota      quotaInfo                     `json:"quota"`
	CacheStats verifier.CacheStats           `json:"cacheStats"`
	MethodUsed string                        `json:"methodUsed"`
}

type engagementRequest struct {
	RepositoryUrl string   `json:"repositoryUrl"`
	Handles       []string `json:"handles"`
	Credentials   string   `json:"credentials,omitempty"`
}

type engagementResponse struct {
	Repository repositoryInfo                `json:"repository"`
	Users      []engagement.EngagementResult `json:"users"`
	Summary    engagementSummary             `json:"summary"`
}

type repositoryInfo struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Url   string `json:"url"`
}

type engagementSummary struct {
	TotalUsers int `json:"totalUsers"`
	Starred    int `json:"starred"`
	Forked     int `json:"forked"`
	Errors     int `json:"errors"`
}

type errorResponse struct {
	Error     string     `json:"error"`
	ResetTime *time.Time `json:"resetTime,omitempty"`
	Remaining *int       `json:"remaining,omitempty"`
}

// HandleValidate nhận batch handle, enforce bound và quota per-caller
// rồi chạy orchestrator. Quota bị vượt trả 429 kèm resetTime để caller
// tự lên lịch retry, phân biệt hẳn với lỗi thường.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	method, ok := parseMethod(req.Method)
	if !ok {
		writeError(w, http.StatusBadRequest, "method must be auto, batch or single")
		return
	}

	maxHandles := h.Config.Verifier.MaxHandles
	if method == verifier.MethodRest || req.Credentials == "" {
		maxHandles = h.Config.Verifier.MaxHandlesSingle
	}
	if len(req.Handles) == 0 {
		writeError(w, http.StatusBadRequest, "no handles provided")
		return
	}
	if len(req.Handles) > maxHandles {
		writeError(w, http.StatusBadRequest, "too many handles in one request")
		return
	}

	caller := callerId(r)
	limit := h.quotaLimit(req.Credentials, method)
	quota := h.Quota.Peek(caller, limit)
	if !quota.Allowed {
		writeQuotaExceeded(w, quota)
		return
	}

	report, err := h.Verifier.Verify(r.Context(), req.Handles, verifier.Options{
		Token:  req.Credentials,
		Method: method,
	})
	if err != nil && report == nil {
		h.Logger.Error(r.Context(), "validate request failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Request trả lời hoàn toàn từ cache không tiêu lượt quota nào
	if report.CacheStats.Validated > 0 {
		quota = h.Quota.Check(caller, limit)
	}

	writeJson(w, http.StatusOK, validateResponse{
		Results: report.Results,
		Quota: quotaInfo{
			Remaining: quota.Remaining,
			ResetTime: quota.ResetAt,
			Limit:     quota.Limit,
		},
		CacheStats: report.CacheStats,
		MethodUsed: string(report.MethodUsed),
	})
}

// HandleEngagement resolve repository url rồi check star/fork cho từng handle
func (h *Handler) HandleEngagement(w http.ResponseWriter, r *http.Request) {
	var req engagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ref, err := engagement.ParseRepoURL(req.RepositoryUrl)
	if err != nil {
		writeError(w, http.StatusBadRequest, "repository url must contain owner and repo")
		return
	}
	if len(req.Handles) == 0 {
		writeError(w, http.StatusBadRequest, "no handles provided")
		return
	}
	if len(req.Handles) > h.Config.Verifier.MaxHandles {
		writeError(w, http.StatusBadRequest, "too many handles in one request")
		return
	}

	quota := h.Quota.Check(callerId(r), h.quotaLimit(req.Credentials, verifier.MethodAuto))
	if !quota.Allowed {
		writeQuotaExceeded(w, quota)
		return
	}

	results, err := h.Checker.CheckEngagement(r.Context(), ref, req.Handles, req.Credentials)
	if err != nil {
		h.Logger.Error(r.Context(), "engagement request failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summary := engagementSummary{TotalUsers: len(results)}
	for _, result := range results {
		if result.HasStarred {
			summary.Starred++
		}
		if result.HasForked {
			summary.Forked++
		}
		if result.Error != "" {
			summary.Errors++
		}
	}

	writeJson(w, http.StatusOK, engagementResponse{
		Repository: repositoryInfo{
			Owner: ref.Owner,
			Repo:  ref.Repo,
			Url:   ref.URL(),
		},
		Users:   results,
		Summary: summary,
	})
}

// HandleQuota trả trạng thái quota hiện tại của caller mà không tiêu lượt nào
func (h *Handler) HandleQuota(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	quota := h.Quota.Peek(callerId(r), h.quotaLimit(token, verifier.MethodAuto))
	writeJson(w, http.StatusOK, quotaInfo{
		Remaining: quota.Remaining,
		ResetTime: quota.ResetAt,
		Limit:     quota.Limit,
	})
}

// quotaLimit chọn ceiling theo credentials: caller đi đường single luôn
// dùng mức bảo thủ, có token được mức cao, còn lại mức mặc định
func (h *Handler) quotaLimit(credentials string, method verifier.Method) int {
	if method == verifier.MethodRest {
		return h.Config.Verifier.QuotaPerHourSingle
	}
	if credentials != "" {
		return h.Config.Verifier.QuotaPerHourToken
	}
	return h.Config.Verifier.QuotaPerHour
}

func parseMethod(raw string) (verifier.Method, bool) {
	switch raw {
	case "", "auto":
		return verifier.MethodAuto, true
	case "batch":
		return verifier.MethodGraphql, true
	case "single":
		return verifier.MethodRest, true
	default:
		return "", false
	}
}

// callerId là IP của caller, RealIP middleware đã chuẩn hóa RemoteAddr
func callerId(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	for _, prefix := range []string{"token ", "Bearer "} {
		if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
			return auth[len(prefix):]
		}
	}
	return ""
}

func writeJson(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJson(w, status, errorResponse{Error: msg})
}

func writeQuotaExceeded(w http.ResponseWriter, quota limiter.QuotaResult) {
	writeJson(w, http.StatusTooManyRequests, errorResponse{
		Error:     "too many requests - quota exceeded",
		ResetTime: &quota.ResetAt,
		Remaining: &quota.Remaining,
	})
}
