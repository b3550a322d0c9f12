package services

import (
	"strings"

	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/forgeapps/licensing-backend/internal/token"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthService signs returning customers into the portal. Registration goes
// through invite redemption.
type AuthService struct {
	db       *gorm.DB
	sessions *token.SessionSigner
}

func NewAuthService(db *gorm.DB, sessions *token.SessionSigner) *AuthService {
	return &AuthService{db: db, sessions: sessions}
}

// Login verifies credentials and returns a session token.
func (s *AuthService) Login(email, password string) (*models.Customer, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var customer models.Customer
	if err := s.db.Where("email = ?", email).First(&customer).Error; err != nil {
		return nil, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(customer.Password), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	sessionToken, err := s.sessions.SignSession(&customer)
	if err != nil {
		return nil, "", err
	}
	return &customer, sessionToken, nil
}
