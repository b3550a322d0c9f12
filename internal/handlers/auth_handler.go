package handlers

import (
	"errors"

	"github.com/forgeapps/licensing-backend/internal/dto"
	"github.com/forgeapps/licensing-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: validationMessage(err),
		})
	}

	customer, sessionToken, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return err
	}

	return c.JSON(dto.LoginResponse{
		Token: sessionToken,
		Customer: dto.CustomerResponse{
			ID:        customer.ID,
			Email:     customer.Email,
			FirstName: customer.FirstName,
			LastName:  customer.LastName,
		},
	})
}
