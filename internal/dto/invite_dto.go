package dto

import "time"

type IssueInviteRequest struct {
	Email         string     `json:"email" validate:"required,email"`
	AffiliateCode string     `json:"affiliateCode"`
	EnquiryID     string     `json:"enquiryId"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

type IssueInviteResponse struct {
	Code    string `json:"code"`
	JoinURL string `json:"joinUrl"`
}

type ValidateInviteResponse struct {
	Valid bool `json:"valid"`
}

type RedeemInviteRequest struct {
	Code      string `json:"code" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

type RedeemInviteResponse struct {
	Customer CustomerResponse `json:"customer"`
	Token    string           `json:"token"`
}
