package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/forgeapps/licensing-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_secret"

func newWebhookApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()
	prices := services.NewPriceResolverWithLookup(
		map[string]string{"price_pro_monthly": models.TierPro},
		time.Minute,
		func(priceID string) (string, error) {
			return "", errors.New("no remote lookup in tests")
		},
	)
	cutoff := time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)
	handler := NewWebhookHandler(services.NewEntitlementService(db, prices, cutoff), testWebhookSecret)

	app := fiber.New()
	app.Post("/stripe/webhook", handler.HandleStripe)
	return app
}

// signedWebhookRequest signs the payload the way Stripe does: an HMAC-SHA256
// over "<timestamp>.<body>" carried in the Stripe-Signature header.
func signedWebhookRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, sig))
	return req
}

func invoicePayload(eventID, email string) []byte {
	return []byte(`{
		"id": "` + eventID + `",
		"api_version": "2023-10-16",
		"type": "invoice.payment_succeeded",
		"data": {
			"object": {
				"id": "in_123",
				"object": "invoice",
				"customer_email": "` + email + `",
				"subscription": "sub_777",
				"lines": {
					"data": [
						{
							"price": {"id": "price_pro_monthly"},
							"period": {"end": 1767225600}
						}
					]
				}
			}
		}
	}`)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	db := newTestDB(t)
	app := newWebhookApp(t, db)

	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook",
		bytes.NewReader(invoicePayload("evt_bad", "x@example.com")))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookProcessesInvoicePayment(t *testing.T) {
	db := newTestDB(t)
	app := newWebhookApp(t, db)

	customer := models.Customer{ID: uuid.New(), Email: "payer@example.com", Role: models.RoleCustomer}
	require.NoError(t, db.Create(&customer).Error)

	resp, err := app.Test(signedWebhookRequest(t, invoicePayload("evt_ok_1", customer.Email)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ent models.Entitlement
	require.NoError(t, db.First(&ent, "customer_id = ?", customer.ID).Error)
	assert.Equal(t, models.TierPro, ent.Tier)
	assert.Equal(t, "sub_777", ent.StripeSubscriptionID)
	require.NotNil(t, ent.ExpiresAt)
	assert.Equal(t, int64(1767225600), ent.ExpiresAt.Unix())

	// Redelivery of the same event is acknowledged without a second write.
	resp, err = app.Test(signedWebhookRequest(t, invoicePayload("evt_ok_1", customer.Email)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var count int64
	require.NoError(t, db.Model(&models.Entitlement{}).
		Where("customer_id = ?", customer.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestWebhookAcknowledgesUnsupportedEvents(t *testing.T) {
	db := newTestDB(t)
	app := newWebhookApp(t, db)

	payload := []byte(`{
		"id": "evt_other",
		"api_version": "2023-10-16",
		"type": "customer.created",
		"data": {"object": {"id": "cus_1", "object": "customer"}}
	}`)

	resp, err := app.Test(signedWebhookRequest(t, payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestWebhookReturns500ForRedelivery(t *testing.T) {
	db := newTestDB(t)
	app := newWebhookApp(t, db)

	// No matching customer: the event must not be acknowledged, so Stripe
	// redelivers after the account is linked.
	resp, err := app.Test(signedWebhookRequest(t, invoicePayload("evt_orphan", "ghost@example.com")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestWebhookCheckoutSessionCompleted(t *testing.T) {
	db := newTestDB(t)
	app := newWebhookApp(t, db)

	customer := models.Customer{ID: uuid.New(), Email: "buyer@example.com", Role: models.RoleCustomer}
	require.NoError(t, db.Create(&customer).Error)

	payload := []byte(`{
		"id": "evt_checkout_1",
		"api_version": "2023-10-16",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_123",
				"object": "checkout.session",
				"customer_details": {"email": "buyer@example.com"},
				"metadata": {"price_id": "price_pro_monthly"}
			}
		}
	}`)

	resp, err := app.Test(signedWebhookRequest(t, payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ent models.Entitlement
	require.NoError(t, db.First(&ent, "customer_id = ?", customer.ID).Error)
	assert.Equal(t, models.TierPro, ent.Tier)
	assert.Equal(t, "cs_123", ent.PurchaseID)
}
