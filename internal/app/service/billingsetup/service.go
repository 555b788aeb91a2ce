package billingsetup

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fernlabs/tally/internal/app/service/account"
	"github.com/fernlabs/tally/internal/platform/checkout"
	"github.com/fernlabs/tally/pkg/config"
	"github.com/fernlabs/tally/pkg/logctx"
	"github.com/fernlabs/tally/pkg/metrics"
)

// ErrAlreadyConnected is returned when the account already has a vaulted
// payment method and the caller did not ask to replace it.
var ErrAlreadyConnected = errors.New("payment method already connected")

// Service orchestrates payment-method vaulting through the checkout
// provider's hosted flow. It never flips payment_method_connected itself;
// that happens when the provider's setup webhook lands.
type Service struct {
	cfg       *config.Config
	accounts  *account.Service
	processor checkout.Processor
	log       *zap.SugaredLogger
}

func NewService(cfg *config.Config, accounts *account.Service, processor checkout.Processor, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, accounts: accounts, processor: processor, log: log}
}

type BeginSetupRequest struct {
	ExternalUserID    string
	ExternalCompanyID string
	ExternalMemberID  string
	Email             *string
	// AllowUpdate lets an already-connected account vault a replacement
	// payment method.
	AllowUpdate bool
}

type BeginSetupResult struct {
	AccountID   string `json:"account_id"`
	PurchaseURL string `json:"purchase_url"`
}

// BeginSetup resolves (or lazily creates) the account and opens a hosted
// vaulting session, returning the URL the user completes checkout at.
func (s *Service) BeginSetup(ctx context.Context, req *BeginSetupRequest) (*BeginSetupResult, error) {
	if req == nil || req.ExternalUserID == "" {
		return nil, fmt.Errorf("invalid params: external user id required")
	}

	acc, err := s.accounts.FindOrCreate(ctx, &account.CreateRequest{
		ExternalUserID:    req.ExternalUserID,
		ExternalCompanyID: req.ExternalCompanyID,
		ExternalMemberID:  req.ExternalMemberID,
		Email:             req.Email,
	})
	if err != nil {
		return nil, err
	}

	if acc.PaymentMethodConnected && !req.AllowUpdate {
		return nil, ErrAlreadyConnected
	}

	session, err := s.processor.CreateVaultingSession(ctx, &checkout.VaultingSessionRequest{
		CompanyID:   acc.ExternalCompanyID,
		RedirectURL: s.cfg.Checkout.RedirectURL,
		Metadata: map[string]string{
			"account_id":          acc.ID,
			"external_company_id": acc.ExternalCompanyID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vaulting session: %w", err)
	}

	metrics.VaultSessions.Inc()
	logctx.FromCtx(ctx, s.log).Infow("vaulting session opened",
		"account_id", acc.ID, "session_id", session.SessionID, "update", req.AllowUpdate)

	return &BeginSetupResult{AccountID: acc.ID, PurchaseURL: session.PurchaseURL}, nil
}
