package account

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	models "github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/pkg/logctx"
	"github.com/fernlabs/tally/pkg/tool"
)

var (
	// ErrAccountNotFound is returned by lookups when no account matches.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateAccount is returned by Create when an account already
	// exists for the external user id.
	ErrDuplicateAccount = errors.New("account already exists for external user id")
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

type CreateRequest struct {
	ExternalUserID    string
	ExternalCompanyID string
	ExternalMemberID  string
	Email             *string
}

func (s *Service) FindByID(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &acc, nil
}

func (s *Service) FindByExternalUserID(ctx context.Context, externalUserID string) (*models.Account, error) {
	var acc models.Account
	if err := s.db.WithContext(ctx).Where("external_user_id = ?", externalUserID).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &acc, nil
}

// Create inserts a new account. The unique index on external_user_id backs up
// the check-then-create done here, so concurrent creates cannot both win.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*models.Account, error) {
	if req == nil || req.ExternalUserID == "" {
		return nil, fmt.Errorf("invalid params: external user id required")
	}

	if _, err := s.FindByExternalUserID(ctx, req.ExternalUserID); err == nil {
		return nil, ErrDuplicateAccount
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	acc := &models.Account{
		ID:                tool.GenerateUUIDV7(),
		ExternalUserID:    req.ExternalUserID,
		ExternalCompanyID: req.ExternalCompanyID,
		ExternalMemberID:  req.ExternalMemberID,
		Email:             req.Email,
	}
	if err := s.db.WithContext(ctx).Create(acc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("account created",
		"account_id", acc.ID, "external_user_id", acc.ExternalUserID)
	return acc, nil
}

// FindOrCreate resolves the account for an external user id, creating it
// lazily on first use. A concurrent create by another request is treated as
// success and the winner's row is returned.
func (s *Service) FindOrCreate(ctx context.Context, req *CreateRequest) (*models.Account, error) {
	acc, err := s.FindByExternalUserID(ctx, req.ExternalUserID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	acc, err = s.Create(ctx, req)
	if errors.Is(err, ErrDuplicateAccount) {
		return s.FindByExternalUserID(ctx, req.ExternalUserID)
	}
	return acc, err
}

// MarkPaymentMethodConnected flips payment_method_connected. Driven by the
// processor's setup confirmation webhook, never by BeginSetup.
func (s *Service) MarkPaymentMethodConnected(ctx context.Context, accountID string, connected bool) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("payment_method_connected", connected)
	if res.Error != nil {
		return fmt.Errorf("failed to update account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
