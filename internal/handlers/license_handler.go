package handlers

import (
	"errors"

	"github.com/forgeapps/licensing-backend/internal/dto"
	"github.com/forgeapps/licensing-backend/internal/middleware"
	"github.com/forgeapps/licensing-backend/internal/services"
	"github.com/forgeapps/licensing-backend/internal/token"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type LicenseHandler struct {
	licenseService *services.LicenseService
}

func NewLicenseHandler(licenseService *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{licenseService: licenseService}
}

// Activate binds a license key to a machine and returns the activation token.
func (h *LicenseHandler) Activate(c *fiber.Ctx) error {
	var req dto.ActivateLicenseRequest
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

	signed, err := h.licenseService.Activate(req.LicenceKey, req.MachineID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLicenseNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, services.ErrLicenseAlreadyActive),
			errors.Is(err, services.ErrTrialAlreadyUsed),
			errors.Is(err, services.ErrLicenseExpired):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, token.ErrNoSigningKey):
			// Fails closed; details stay out of the response.
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error: true, Message: "Server is not configured to issue licenses",
			})
		default:
			return err
		}
	}

	return c.JSON(dto.ActivateLicenseResponse{Token: signed})
}

// Deactivate releases the machine binding identified by key+jti+machineId.
func (h *LicenseHandler) Deactivate(c *fiber.Ctx) error {
	var req dto.DeactivateLicenseRequest
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

	if err := h.licenseService.Deactivate(req.LicenceKey, req.JTI, req.MachineID); err != nil {
		if errors.Is(err, services.ErrNoMatchingActivation) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return err
	}

	return c.JSON(dto.DeactivateLicenseResponse{Success: true})
}

// List returns the signed-in customer's license keys.
func (h *LicenseHandler) List(c *fiber.Ctx) error {
	customerID, err := middleware.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	keys, err := h.licenseService.ListByCustomer(customerID)
	if err != nil {
		return err
	}
	return c.JSON(dto.LicenseKeyListResponse{LicenseKeys: keys})
}

// GenerateActivationCode rotates the manual-entry code for an owned key.
func (h *LicenseHandler) GenerateActivationCode(c *fiber.Ctx) error {
	customerID, err := middleware.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	keyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "License key not found",
		})
	}

	code, err := h.licenseService.GenerateActivationCode(customerID, keyID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLicenseNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, services.ErrNotOwner):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		default:
			return err
		}
	}

	return c.JSON(dto.ActivationCodeResponse{ActivationCode: code})
}
