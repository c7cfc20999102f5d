package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/storage"
	"github.com/axomx/reward-ledger/internal/app/wallet"
)

const (
	referralCodeLength   = 8
	referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxCreateAttempts    = 5
)

// AuthenticateWallet returns the profile for address, creating it on first
// sight. refCode binds the new profile to a referrer; unknown codes are
// ignored. Repeated calls return the same profile.
func (s *Service) AuthenticateWallet(ctx context.Context, address, refCode string) (profile domain.Profile, err error) {
	start := time.Now()
	defer func() { s.observe("authenticate_wallet", start, err) }()

	addr, err := wallet.Normalize(address)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	code := strings.ToUpper(strings.TrimSpace(refCode))

	// A duplicate is either a concurrent first login for the same wallet or
	// a referral code collision; the next attempt resolves both.
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		var created bool
		err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
			existing, err := tx.GetProfileByWallet(ctx, addr)
			if err == nil {
				profile = existing
				return nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}

			now := s.clock()
			fresh := domain.Profile{
				ID:               uuid.NewString(),
				WalletAddress:    addr,
				Rank:             rates.RankNone,
				NodeType:         rates.NodeNone,
				TotalDeposited:   decimal.Zero,
				TotalWithdrawn:   decimal.Zero,
				ReferralEarnings: decimal.Zero,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if code != "" {
				referrer, err := tx.GetProfileByReferralCode(ctx, code)
				switch {
				case err == nil && referrer.WalletAddress != addr:
					fresh.ReferrerID = &referrer.ID
				case err != nil && !errors.Is(err, storage.ErrNotFound):
					return err
				}
			}
			if fresh.ReferralCode, err = newReferralCode(); err != nil {
				return err
			}
			profile, err = tx.CreateProfile(ctx, fresh)
			created = err == nil
			return err
		})
		if err == nil {
			if created {
				s.log.WithField("wallet", addr).WithField("referred", profile.HasReferrer()).Info("profile created")
			}
			return profile, nil
		}
		if !errors.Is(err, storage.ErrDuplicate) {
			return domain.Profile{}, translate(err)
		}
	}
	return domain.Profile{}, fmt.Errorf("create profile for %s: %w", addr, err)
}

func newReferralCode() (string, error) {
	buf := make([]byte, referralCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate referral code: %w", err)
	}
	for i, b := range buf {
		buf[i] = referralCodeAlphabet[int(b)%len(referralCodeAlphabet)]
	}
	return string(buf), nil
}

// GetProfile returns the profile for address.
func (s *Service) GetProfile(ctx context.Context, address string) (domain.Profile, error) {
	return s.profileByAddress(ctx, s.store, address)
}

// SetRank assigns a referral rank. Ranks are computed by an operator process
// outside the ledger.
func (s *Service) SetRank(ctx context.Context, address string, rank rates.Rank) (profile domain.Profile, err error) {
	start := time.Now()
	defer func() { s.observe("set_rank", start, err) }()

	if !rank.Valid() {
		return domain.Profile{}, validationf("unknown rank %q", rank)
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		current, err := s.lockProfile(ctx, tx, address)
		if err != nil {
			return err
		}
		current.Rank = rank
		current.UpdatedAt = s.clock()
		profile, err = tx.UpdateProfile(ctx, current)
		return err
	})
	if err != nil {
		return domain.Profile{}, translate(err)
	}
	return profile, nil
}

// SubscribeVip buys or extends a VIP subscription. Extensions start from the
// current expiry when it is still in the future.
func (s *Service) SubscribeVip(ctx context.Context, address, plan, txHash string) (profile domain.Profile, err error) {
	start := time.Now()
	defer func() { s.observe("subscribe_vip", start, err) }()

	vip, ok := s.table.VipPlans[plan]
	if !ok {
		return domain.Profile{}, validationf("unknown vip plan %q", plan)
	}
	hash, status, err := s.txHash(txHash)
	if err != nil {
		return domain.Profile{}, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		current, err := s.lockProfile(ctx, tx, address)
		if err != nil {
			return err
		}
		now := s.clock()
		if _, err := tx.CreateTransaction(ctx, domain.Transaction{
			ID:          uuid.NewString(),
			ProfileID:   current.ID,
			Type:        domain.TxVipSubscription,
			Token:       domain.DefaultToken,
			Amount:      vip.Price,
			TxHash:      hash,
			Status:      status,
			ReferenceID: plan,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		from := now
		if current.ActiveVip(now) {
			from = *current.VipExpiresAt
		}
		expires := from.AddDate(0, vip.Months, 0)
		current.IsVip = true
		current.VipExpiresAt = &expires
		current.UpdatedAt = now
		profile, err = tx.UpdateProfile(ctx, current)
		return err
	})
	if err != nil {
		return domain.Profile{}, translate(err)
	}
	s.log.WithField("wallet", profile.WalletAddress).Infof("vip %s active until %s", plan, profile.VipExpiresAt.Format(time.RFC3339))
	return profile, nil
}

// ListTransactions returns the wallet's transactions in creation order,
// optionally filtered by type.
func (s *Service) ListTransactions(ctx context.Context, address string, txType domain.TransactionType) ([]domain.Transaction, error) {
	if txType != "" && !txType.Valid() {
		return nil, validationf("unknown transaction type %q", txType)
	}
	profile, err := s.profileByAddress(ctx, s.store, address)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, profile.ID, txType)
	return txs, translate(err)
}
