package verifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/internal/githubapi"
	"github.com/thep200/github-verifier/pkg/log"
)

// BatchValidator xác thực nhiều handle trong một aliased GraphQL query.
// Thất bại ở mức chunk được propagate lên orchestrator để fallback sang REST,
// không bao giờ tự ý đánh dấu cả chunk valid hay invalid.
type BatchValidator struct {
	Logger log.Logger
	Config *cfg.Config
	Gql    *githubapi.GraphqlCaller
}

func NewBatchValidator(logger log.Logger, config *cfg.Config, gql *githubapi.GraphqlCaller) *BatchValidator {
	return &BatchValidator{
		Logger: logger,
		Config: config,
		Gql:    gql,
	}
}

// ValidateBatch xử lý tối đa GraphqlChunkSize handle một lần gọi.
// Kết quả match lại theo handle, không theo vị trí.
func (b *BatchValidator) ValidateBatch(ctx context.Context, handles []string, token string) ([]VerificationResult, error) {
	if len(handles) > b.Config.Verifier.GraphqlChunkSize {
		return nil, fmt.Errorf("batch size %d exceeds chunk limit %d", len(handles), b.Config.Verifier.GraphqlChunkSize)
	}

	aliases, err := b.Gql.CallUserBatch(ctx, handles, token)
	if err != nil {
		return nil, err
	}

	results := make([]VerificationResult, 0, len(handles))
	for _, handle := range handles {
		ua := aliases[strings.ToLower(handle)]

		switch {
		case ua.User != nil:
			results = append(results, VerificationResult{
				Handle: handle,
				Status: StatusValid,
				Profile: &Profile{
					Name:        ua.User.Name,
					Bio:         ua.User.Bio,
					PublicRepos: ua.User.Repositories.TotalCount,
					Followers:   ua.User.Followers.TotalCount,
					Following:   ua.User.Following.TotalCount,
					CreatedAt:   ua.User.CreatedAt,
				},
			})

		case ua.NotFound:
			results = append(results, VerificationResult{
				Handle:       handle,
				Status:       StatusDeleted,
				ErrorMessage: MsgDeleted,
			})

		default:
			// Alias không có data và cũng không có structured NOT_FOUND
			results = append(results, VerificationResult{
				Handle:       handle,
				Status:       StatusError,
				ErrorMessage: MsgProtocolError,
			})
		}
	}

	return results, nil
}
