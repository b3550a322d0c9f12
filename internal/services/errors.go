package services

import "errors"

var (
	// License activation.
	ErrLicenseNotFound      = errors.New("license key not found")
	ErrLicenseAlreadyActive = errors.New("license is already active on another machine")
	ErrTrialAlreadyUsed     = errors.New("trial license can only be activated once")
	ErrLicenseExpired       = errors.New("license key has expired")
	ErrNoMatchingActivation = errors.New("no matching active license")
	ErrNotOwner             = errors.New("license key does not belong to this customer")

	// Invites and registration.
	ErrInviteInvalid = errors.New("invite code is invalid, expired or already redeemed")
	ErrEmailTaken    = errors.New("email already registered")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrCustomerNotFound   = errors.New("customer not found")

	// Entitlement reconciliation.
	ErrUnknownPrice       = errors.New("price is not mapped to a tier")
	ErrKeyWithoutCustomer = errors.New("license key has no resolvable customer")
	ErrUnknownLicenseType = errors.New("license type has no tier mapping")
	ErrMissingEventID     = errors.New("payment event is missing an event id")
)
