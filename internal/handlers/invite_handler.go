package handlers

import (
	"errors"

	"github.com/forgeapps/licensing-backend/internal/dto"
	"github.com/forgeapps/licensing-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type InviteHandler struct {
	inviteService *services.InviteService
	joinURLBase   string
}

func NewInviteHandler(inviteService *services.InviteService, joinURLBase string) *InviteHandler {
	return &InviteHandler{inviteService: inviteService, joinURLBase: joinURLBase}
}

// Issue creates an invite code. Staff only (enforced in routing).
func (h *InviteHandler) Issue(c *fiber.Ctx) error {
	var req dto.IssueInviteRequest
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

	invite, err := h.inviteService.Issue(req.Email, req.AffiliateCode, req.EnquiryID, req.ExpiresAt)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}

	return c.JSON(dto.IssueInviteResponse{
		Code:    invite.Code,
		JoinURL: h.joinURLBase + "?code=" + invite.Code,
	})
}

// Validate is a public, side-effect-free redeemability check.
func (h *InviteHandler) Validate(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return c.JSON(dto.ValidateInviteResponse{Valid: false})
	}

	valid, err := h.inviteService.Validate(code)
	if err != nil {
		return err
	}
	return c.JSON(dto.ValidateInviteResponse{Valid: valid})
}

// Redeem consumes an invite and registers the customer.
func (h *InviteHandler) Redeem(c *fiber.Ctx) error {
	var req dto.RedeemInviteRequest
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

	customer, sessionToken, err := h.inviteService.Redeem(req.Code, req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, services.ErrInviteInvalid) || errors.Is(err, services.ErrEmailTaken) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return err
	}

	return c.JSON(dto.RedeemInviteResponse{
		Customer: dto.CustomerResponse{
			ID:        customer.ID,
			Email:     customer.Email,
			FirstName: customer.FirstName,
			LastName:  customer.LastName,
		},
		Token: sessionToken,
	})
}
