package services

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/forgeapps/licensing-backend/internal/token"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LicenseService drives the per-key activation state machine:
// unused -> active -> unused, with trial keys carrying a one-shot marker
// that survives deactivation.
type LicenseService struct {
	db     *gorm.DB
	signer *token.Signer
}

func NewLicenseService(db *gorm.DB, signer *token.Signer) *LicenseService {
	return &LicenseService{db: db, signer: signer}
}

// Activate binds a license key to a machine and returns a signed activation
// token. Two concurrent calls for the same key cannot both succeed: the
// transition is a conditional update on status=unused, so the second writer
// observes zero affected rows and gets ErrLicenseAlreadyActive.
func (s *LicenseService) Activate(key, machineID string) (string, error) {
	// Fail closed before touching the record: an unsigned token must never
	// be issued, and a half-activated key with no token helps nobody.
	if !s.signer.Ready() {
		return "", token.ErrNoSigningKey
	}

	var lk models.LicenseKey
	if err := s.db.Where("key = ?", key).First(&lk).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrLicenseNotFound
		}
		return "", fmt.Errorf("failed to load license key: %w", err)
	}

	if lk.Status == models.LicenseStatusActive {
		return "", ErrLicenseAlreadyActive
	}
	if lk.Type == models.LicenseTypeTrial && lk.Activated {
		return "", ErrTrialAlreadyUsed
	}
	if lk.ExpiresAt != nil && time.Now().After(*lk.ExpiresAt) {
		return "", ErrLicenseExpired
	}

	now := time.Now().UTC()
	jti := uuid.NewString()
	machineHash := HashMachineID(machineID)

	updates := map[string]interface{}{
		"status":              models.LicenseStatusActive,
		"machine_id":          machineHash,
		"jti":                 jti,
		"activated":           true,
		"activated_at":        now,
		"current_activations": gorm.Expr("current_activations + 1"),
	}
	if lk.Type == models.LicenseTypeTrial && lk.TrialStart == nil {
		updates["trial_start"] = now
		lk.TrialStart = &now
	}

	res := s.db.Model(&models.LicenseKey{}).
		Where("id = ? AND status = ?", lk.ID, models.LicenseStatusUnused).
		Updates(updates)
	if res.Error != nil {
		return "", fmt.Errorf("failed to activate license: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Someone else won the race between our read and write.
		return "", ErrLicenseAlreadyActive
	}

	signed, err := s.signer.SignActivation(&lk, jti, machineHash, now)
	if err != nil {
		return "", err
	}

	slog.Info("license activated", "license_id", lk.ID, "type", lk.Type, "jti", jti)
	return signed, nil
}

// Deactivate releases a machine binding. The caller must present the exact
// key, the jti from its activation token and the same machine ID; anything
// else is indistinguishable from "no such activation".
func (s *LicenseService) Deactivate(key, jti, machineID string) error {
	machineHash := HashMachineID(machineID)
	now := time.Now().UTC()

	res := s.db.Model(&models.LicenseKey{}).
		Where("key = ? AND jti = ? AND machine_id = ? AND status = ?",
			key, jti, machineHash, models.LicenseStatusActive).
		Updates(map[string]interface{}{
			"status":         models.LicenseStatusUnused,
			"jti":            nil,
			"machine_id":     "",
			"activated_at":   nil,
			"deactivated_at": now,
			// The Activated trial marker is deliberately left in place.
		})
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate license: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoMatchingActivation
	}

	slog.Info("license deactivated", "key", key, "jti", jti)
	return nil
}

// ListByCustomer returns all license keys owned by a customer.
func (s *LicenseService) ListByCustomer(customerID uuid.UUID) ([]models.LicenseKey, error) {
	var keys []models.LicenseKey
	err := s.db.Where("customer_id = ?", customerID).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// GenerateActivationCode rotates the short manual-entry code for a key the
// customer owns.
func (s *LicenseService) GenerateActivationCode(customerID, keyID uuid.UUID) (string, error) {
	var lk models.LicenseKey
	if err := s.db.Where("id = ?", keyID).First(&lk).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrLicenseNotFound
		}
		return "", fmt.Errorf("failed to load license key: %w", err)
	}

	if lk.CustomerID == nil || *lk.CustomerID != customerID {
		return "", ErrNotOwner
	}

	code, err := groupedCode(2, 4)
	if err != nil {
		return "", err
	}

	if err := s.db.Model(&lk).Update("activation_code", code).Error; err != nil {
		return "", fmt.Errorf("failed to store activation code: %w", err)
	}
	return code, nil
}
