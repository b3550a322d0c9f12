package middleware

import (
	"strings"

	"github.com/forgeapps/licensing-backend/internal/config"
	"github.com/forgeapps/licensing-backend/internal/dto"
	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/forgeapps/licensing-backend/internal/token"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// StaffRequired gates invite issuance and other back-office routes. It
// accepts either the configured staff token header or a bearer session
// whose customer record carries the staff role.
func StaffRequired(db *gorm.DB, cfg *config.Config, sessions *token.SessionSigner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.StaffToken != "" && c.Get("X-Staff-Token") == cfg.StaffToken {
			return c.Next()
		}

		auth := c.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		customerID, role, err := sessions.VerifySession(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		if role == models.RoleStaff {
			return c.Next()
		}

		// Role claims can go stale; fall back to the stored record.
		var customer models.Customer
		if err := db.First(&customer, "id = ?", customerID).Error; err == nil {
			if customer.Role == models.RoleStaff {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Staff access required",
		})
	}
}
