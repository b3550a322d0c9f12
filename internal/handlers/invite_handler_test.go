package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forgeapps/licensing-backend/internal/config"
	"github.com/forgeapps/licensing-backend/internal/dto"
	"github.com/forgeapps/licensing-backend/internal/middleware"
	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/forgeapps/licensing-backend/internal/services"
	"github.com/forgeapps/licensing-backend/internal/token"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testStaffToken = "staff-token-for-tests"

func newInviteApp(t *testing.T, db *gorm.DB) (*fiber.App, *token.SessionSigner) {
	t.Helper()
	sessions := token.NewSessionSigner(testSessionSecret, time.Hour)
	handler := NewInviteHandler(services.NewInviteService(db, sessions), "https://app.example.com/join")

	cfg := &config.Config{SessionSecret: testSessionSecret, StaffToken: testStaffToken}
	app := fiber.New()
	invites := app.Group("/invites")
	invites.Get("/validate", handler.Validate)
	invites.Post("/redeem", handler.Redeem)
	invites.Post("/issue", middleware.StaffRequired(db, cfg, sessions), handler.Issue)
	return app, sessions
}

func TestIssueRequiresStaff(t *testing.T) {
	db := newTestDB(t)
	app, sessions := newInviteApp(t, db)

	body := dto.IssueInviteRequest{Email: "invitee@example.com"}

	// No credentials at all.
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/invites/issue", body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A plain customer session is not enough.
	customer := models.Customer{ID: uuid.New(), Email: "plain@example.com", Role: models.RoleCustomer}
	require.NoError(t, db.Create(&customer).Error)
	customerToken, err := sessions.SignSession(&customer)
	require.NoError(t, err)

	req := jsonRequest(t, http.MethodPost, "/invites/issue", body)
	req.Header.Set("Authorization", "Bearer "+customerToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The back-office token works.
	req = jsonRequest(t, http.MethodPost, "/invites/issue", body)
	req.Header.Set("X-Staff-Token", testStaffToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	issued := decodeBody[dto.IssueInviteResponse](t, resp)
	assert.NotEmpty(t, issued.Code)
	assert.Equal(t, "https://app.example.com/join?code="+issued.Code, issued.JoinURL)

	// So does a staff member's session.
	staff := models.Customer{ID: uuid.New(), Email: "staff@example.com", Role: models.RoleStaff}
	require.NoError(t, db.Create(&staff).Error)
	staffToken, err := sessions.SignSession(&staff)
	require.NoError(t, err)

	req = jsonRequest(t, http.MethodPost, "/invites/issue", dto.IssueInviteRequest{Email: "second@example.com"})
	req.Header.Set("Authorization", "Bearer "+staffToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRedeemEndpoint(t *testing.T) {
	db := newTestDB(t)
	app, sessions := newInviteApp(t, db)

	svc := services.NewInviteService(db, sessions)
	invite, err := svc.Issue("join@example.com", "", "", nil)
	require.NoError(t, err)

	// Short passwords are rejected before any state changes.
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/invites/redeem", dto.RedeemInviteRequest{
		Code: invite.Code, Email: "join@example.com", Password: "short", FirstName: "Jo", LastName: "Ham",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/invites/redeem", dto.RedeemInviteRequest{
		Code: invite.Code, Email: "join@example.com", Password: "long-enough-pass", FirstName: "Jo", LastName: "Ham",
	}), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	redeemed := decodeBody[dto.RedeemInviteResponse](t, resp)
	assert.Equal(t, "join@example.com", redeemed.Customer.Email)
	id, _, err := sessions.VerifySession(redeemed.Token)
	require.NoError(t, err)
	assert.Equal(t, redeemed.Customer.ID, id)

	// The code is spent now.
	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/invites/redeem", dto.RedeemInviteRequest{
		Code: invite.Code, Email: "again@example.com", Password: "long-enough-pass", FirstName: "A", LastName: "B",
	}), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidateEndpoint(t *testing.T) {
	db := newTestDB(t)
	app, sessions := newInviteApp(t, db)

	svc := services.NewInviteService(db, sessions)
	invite, err := svc.Issue("check@example.com", "", "", nil)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/invites/validate?code="+invite.Code, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[dto.ValidateInviteResponse](t, resp).Valid)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/invites/validate?code=missing", nil))
	require.NoError(t, err)
	assert.False(t, decodeBody[dto.ValidateInviteResponse](t, resp).Valid)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/invites/validate", nil))
	require.NoError(t, err)
	assert.False(t, decodeBody[dto.ValidateInviteResponse](t, resp).Valid)
}
