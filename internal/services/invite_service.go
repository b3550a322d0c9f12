package services

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/forgeapps/licensing-backend/internal/token"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// passwordHashCost is deliberately above bcrypt's default.
const passwordHashCost = 12

// InviteService issues and redeems single-use registration codes.
type InviteService struct {
	db       *gorm.DB
	sessions *token.SessionSigner
}

func NewInviteService(db *gorm.DB, sessions *token.SessionSigner) *InviteService {
	return &InviteService{db: db, sessions: sessions}
}

// Issue creates a pending invite. An unknown affiliate code is not an
// error; the invite is simply issued without the referral link.
func (s *InviteService) Issue(email, affiliateCode, enquiryID string, expiresAt *time.Time) (*models.Invite, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, errors.New("email is required")
	}

	code, err := randomToken(12)
	if err != nil {
		return nil, err
	}

	invite := models.Invite{
		ID:            uuid.New(),
		Code:          code,
		IssuedToEmail: email,
		EnquiryID:     enquiryID,
		Status:        models.InviteStatusPending,
		Uses:          0,
		MaxUses:       1,
		ExpiresAt:     expiresAt,
	}

	if affiliateCode != "" {
		var aff models.Affiliate
		if err := s.db.Where("code = ?", affiliateCode).First(&aff).Error; err == nil {
			invite.AffiliateID = &aff.ID
		} else {
			slog.Warn("invite issued with unknown affiliate code", "affiliate_code", affiliateCode)
		}
	}

	if err := s.db.Create(&invite).Error; err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	slog.Info("invite issued", "invite_id", invite.ID, "email", email)
	return &invite, nil
}

// Validate is a read-only redeemability check. It never mutates state.
func (s *InviteService) Validate(code string) (bool, error) {
	var invite models.Invite
	if err := s.db.Where("code = ?", code).First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load invite: %w", err)
	}
	return invite.Redeemable(time.Now()), nil
}

// Redeem consumes one use of an invite and registers the customer. The use
// increment is a conditional update on the redeemability predicate, and it
// shares a transaction with the customer insert, so concurrent redemptions
// of a maxUses=1 code produce exactly one customer.
func (s *InviteService) Redeem(code, email, password, firstName, lastName string) (*models.Customer, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var existing models.Customer
	if err := s.db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, "", ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	customer := models.Customer{
		ID:        uuid.New(),
		Email:     email,
		Password:  string(hash),
		FirstName: firstName,
		LastName:  lastName,
		Role:      models.RoleCustomer,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		res := tx.Model(&models.Invite{}).
			Where("code = ? AND status = ? AND uses < max_uses AND (expires_at IS NULL OR expires_at > ?)",
				code, models.InviteStatusPending, now).
			Update("uses", gorm.Expr("uses + 1"))
		if res.Error != nil {
			return fmt.Errorf("failed to claim invite use: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInviteInvalid
		}

		var invite models.Invite
		if err := tx.Where("code = ?", code).First(&invite).Error; err != nil {
			return fmt.Errorf("failed to reload invite: %w", err)
		}

		if err := tx.Create(&customer).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return fmt.Errorf("failed to create customer: %w", err)
		}

		updates := map[string]interface{}{"customer_id": customer.ID}
		if invite.Uses >= invite.MaxUses {
			updates["status"] = models.InviteStatusRedeemed
			updates["redeemed_at"] = now
		}
		if err := tx.Model(&invite).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to finalize invite: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	sessionToken, err := s.sessions.SignSession(&customer)
	if err != nil {
		return nil, "", err
	}

	slog.Info("invite redeemed", "code", code, "customer_id", customer.ID)
	return &customer, sessionToken, nil
}
