package dto

import "github.com/forgeapps/licensing-backend/internal/models"

type ActivateLicenseRequest struct {
	LicenceKey string `json:"licenceKey" validate:"required"`
	MachineID  string `json:"machineId" validate:"required"`
}

type ActivateLicenseResponse struct {
	Token string `json:"token"`
}

type DeactivateLicenseRequest struct {
	LicenceKey string `json:"licenceKey" validate:"required"`
	JTI        string `json:"jti" validate:"required"`
	MachineID  string `json:"machineId" validate:"required"`
}

type DeactivateLicenseResponse struct {
	Success bool `json:"success"`
}

type LicenseKeyListResponse struct {
	LicenseKeys []models.LicenseKey `json:"licenseKeys"`
}

type ActivationCodeResponse struct {
	ActivationCode string `json:"activationCode"`
}
