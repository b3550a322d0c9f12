package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// metadataMigratedAt marks a license key whose entitlement has been derived,
// making legacy migration idempotent across reruns.
const metadataMigratedAt = "migratedAt"

// PaymentEvent is a normalized confirmed-payment notification. The webhook
// handler translates provider payloads into this shape before the reconciler
// sees them.
type PaymentEvent struct {
	EventID          string
	Type             string
	CustomerEmail    string
	StripeCustomerID string
	SubscriptionID   string
	PriceID          string
	PurchaseID       string
	PeriodEnd        *time.Time
}

// EntitlementService reconciles payment events and legacy license keys into
// unified entitlement records.
type EntitlementService struct {
	db             *gorm.DB
	prices         *PriceResolver
	foundersCutoff time.Time
}

func NewEntitlementService(db *gorm.DB, prices *PriceResolver, foundersCutoff time.Time) *EntitlementService {
	return &EntitlementService{db: db, prices: prices, foundersCutoff: foundersCutoff}
}

// TierForLicenseType maps legacy license key types onto unified tiers.
func TierForLicenseType(licenseType string) (string, error) {
	switch licenseType {
	case models.LicenseTypeTrial, models.LicenseTypeStarter, models.LicenseTypePaid:
		return models.TierMaker, nil
	case models.LicenseTypePro:
		return models.TierPro, nil
	case models.LicenseTypeEnterprise:
		return models.TierEnterprise, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLicenseType, licenseType)
	}
}

// devicesForTier is the default device allowance per tier.
func devicesForTier(tier string) int {
	switch tier {
	case models.TierEnterprise:
		return 5
	case models.TierEducation:
		return 2
	default:
		return 1
	}
}

// OnPaymentConfirmed creates or updates exactly one entitlement for the
// paying customer and tier. The processed-event insert is the gate and it
// runs first, inside the same transaction as the entitlement write: of two
// concurrent deliveries of one event id, exactly one wins the insert; the
// other observes zero affected rows and no-ops before touching anything
// else. A failure anywhere rolls the claim back, so redelivery reprocesses
// from scratch. Lifetime entitlements never lose IsLifetime or gain an
// expiry here.
func (s *EntitlementService) OnPaymentConfirmed(event *PaymentEvent) error {
	if event.EventID == "" {
		return ErrMissingEventID
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		claim := models.WebhookEvent{ID: uuid.New(), EventID: event.EventID, Type: event.Type}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(&claim)
		if res.Error != nil {
			return fmt.Errorf("failed to claim event id: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			slog.Info("payment event replayed, skipping", "event_id", event.EventID)
			return nil
		}

		customer, err := s.resolveCustomer(tx, event)
		if err != nil {
			return err
		}

		tier, err := s.prices.Resolve(event.PriceID)
		if err != nil {
			return err
		}

		if err := s.upsertEntitlement(tx, customer, tier, event); err != nil {
			return err
		}

		slog.Info("payment event processed", "event_id", event.EventID, "customer_id", customer.ID, "tier", tier)
		return nil
	})
}

func (s *EntitlementService) resolveCustomer(tx *gorm.DB, event *PaymentEvent) (*models.Customer, error) {
	var customer models.Customer
	q := tx
	switch {
	case event.StripeCustomerID != "":
		q = q.Where("stripe_customer_id = ? OR email = ?", event.StripeCustomerID, event.CustomerEmail)
	case event.CustomerEmail != "":
		q = q.Where("email = ?", event.CustomerEmail)
	default:
		return nil, ErrCustomerNotFound
	}
	if err := q.First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}
	return &customer, nil
}

func (s *EntitlementService) upsertEntitlement(tx *gorm.DB, customer *models.Customer, tier string, event *PaymentEvent) error {
	var existing models.Entitlement
	err := tx.
		Where("customer_id = ? AND tier = ? AND is_archived = ?", customer.ID, tier, false).
		Order("created_at ASC").
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		ent := models.Entitlement{
			ID:                   uuid.New(),
			CustomerID:           customer.ID,
			Tier:                 tier,
			Status:               models.EntitlementStatusActive,
			ExpiresAt:            event.PeriodEnd,
			MaxDevices:           devicesForTier(tier),
			Source:               models.EntitlementSourceSubscription,
			PurchaseID:           event.PurchaseID,
			StripeSubscriptionID: event.SubscriptionID,
		}
		if err := tx.Create(&ent).Error; err != nil {
			return fmt.Errorf("failed to create entitlement: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up entitlement: %w", err)
	}

	updates := map[string]interface{}{
		"status":                 models.EntitlementStatusActive,
		"stripe_subscription_id": event.SubscriptionID,
	}
	if existing.IsLifetime {
		// Founders protection: a later subscription event must not downgrade
		// a lifetime record, so expiry and the lifetime flag stay untouched.
		slog.Info("lifetime entitlement shielded from webhook update",
			"entitlement_id", existing.ID, "event_id", event.EventID)
	} else {
		updates["expires_at"] = event.PeriodEnd
		updates["purchase_id"] = event.PurchaseID
	}

	if err := tx.Model(&existing).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update entitlement: %w", err)
	}
	return nil
}

// MigrateLegacyKey derives an entitlement from a legacy license key. It is
// idempotent: keys already marked migrated, or already backed by an
// entitlement, are skipped. The returned entitlement is nil on skip.
func (s *EntitlementService) MigrateLegacyKey(lk *models.LicenseKey) (*models.Entitlement, error) {
	if metadataHasKey(lk.Metadata, metadataMigratedAt) {
		return nil, nil
	}

	var count int64
	if err := s.db.Model(&models.Entitlement{}).
		Where("license_key_id = ?", lk.ID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing entitlement: %w", err)
	}
	if count > 0 {
		// The entitlement exists but the marker write was lost; repair it.
		if err := s.markMigrated(lk); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if lk.CustomerID == nil {
		return nil, fmt.Errorf("%w: key %s", ErrKeyWithoutCustomer, lk.Key)
	}

	tier, err := TierForLicenseType(lk.Type)
	if err != nil {
		return nil, err
	}

	// Founders rule: bought at or before the cutoff with no recurring
	// subscription attached means a lifetime entitlement.
	lifetime := !lk.CreatedAt.After(s.foundersCutoff) && lk.SubscriptionID == ""

	ent := models.Entitlement{
		ID:                   uuid.New(),
		CustomerID:           *lk.CustomerID,
		Tier:                 tier,
		LicenseKeyID:         &lk.ID,
		Status:               models.EntitlementStatusActive,
		IsLifetime:           lifetime,
		MaxDevices:           devicesForTier(tier),
		Source:               models.EntitlementSourceLegacyMigration,
		StripeSubscriptionID: lk.SubscriptionID,
	}
	if !lifetime {
		ent.ExpiresAt = lk.ExpiresAt
	}

	if err := s.db.Create(&ent).Error; err != nil {
		return nil, fmt.Errorf("failed to create entitlement for key %s: %w", lk.Key, err)
	}
	if err := s.markMigrated(lk); err != nil {
		return nil, err
	}

	slog.Info("legacy key migrated", "key", lk.Key, "tier", tier, "lifetime", lifetime)
	return &ent, nil
}

// MigrationReport summarizes one migration run. Per-key failures are
// collected so a single bad record never aborts the batch.
type MigrationReport struct {
	Migrated int
	Skipped  int
	Errors   []error
}

// MigrateAllLegacyKeys walks every license key and derives entitlements.
// Safe to re-run: already-migrated keys are skipped via their marker.
func (s *EntitlementService) MigrateAllLegacyKeys() (*MigrationReport, error) {
	var keys []models.LicenseKey
	if err := s.db.Order("created_at ASC").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list license keys: %w", err)
	}

	report := &MigrationReport{}
	for i := range keys {
		ent, err := s.MigrateLegacyKey(&keys[i])
		switch {
		case err != nil:
			report.Errors = append(report.Errors, err)
		case ent == nil:
			report.Skipped++
		default:
			report.Migrated++
		}
	}
	return report, nil
}

// PlanLegacyMigration reports which keys a migration run would touch
// without writing anything. Keys that would fail (no owning customer,
// unmapped type) are returned as errors so they are never silently dropped.
func (s *EntitlementService) PlanLegacyMigration() ([]models.LicenseKey, []error, error) {
	var keys []models.LicenseKey
	if err := s.db.Order("created_at ASC").Find(&keys).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to list license keys: %w", err)
	}

	var candidates []models.LicenseKey
	var errs []error
	for _, lk := range keys {
		if metadataHasKey(lk.Metadata, metadataMigratedAt) {
			continue
		}
		var count int64
		if err := s.db.Model(&models.Entitlement{}).
			Where("license_key_id = ?", lk.ID).
			Count(&count).Error; err != nil {
			errs = append(errs, fmt.Errorf("key %s: %w", lk.Key, err))
			continue
		}
		if count > 0 {
			continue
		}
		if lk.CustomerID == nil {
			errs = append(errs, fmt.Errorf("%w: key %s", ErrKeyWithoutCustomer, lk.Key))
			continue
		}
		if _, err := TierForLicenseType(lk.Type); err != nil {
			errs = append(errs, err)
			continue
		}
		candidates = append(candidates, lk)
	}
	return candidates, errs, nil
}

// ListByCustomer returns non-archived entitlements for one customer.
func (s *EntitlementService) ListByCustomer(customerID uuid.UUID) ([]models.Entitlement, error) {
	var ents []models.Entitlement
	err := s.db.
		Where("customer_id = ? AND is_archived = ?", customerID, false).
		Order("created_at ASC").
		Find(&ents).Error
	return ents, err
}

func (s *EntitlementService) markMigrated(lk *models.LicenseKey) error {
	meta := map[string]interface{}{}
	if len(lk.Metadata) > 0 {
		if err := json.Unmarshal(lk.Metadata, &meta); err != nil {
			meta = map[string]interface{}{}
		}
	}
	meta[metadataMigratedAt] = time.Now().UTC().Format(time.RFC3339)

	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	lk.Metadata = datatypes.JSON(raw)
	if err := s.db.Model(&models.LicenseKey{}).
		Where("id = ?", lk.ID).
		Update("metadata", lk.Metadata).Error; err != nil {
		return fmt.Errorf("failed to mark key migrated: %w", err)
	}
	return nil
}

func metadataHasKey(raw datatypes.JSON, key string) bool {
	if len(raw) == 0 {
		return false
	}
	meta := map[string]interface{}{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return false
	}
	_, ok := meta[key]
	return ok
}
