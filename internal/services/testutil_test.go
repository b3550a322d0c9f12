package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/forgeapps/licensing-backend/internal/database"
	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/forgeapps/licensing-backend/internal/token"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database per test. cache=shared keeps
// the pool's connections on the same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// singleConn caps the pool at one connection so concurrent transactions
// serialize at the pool instead of tripping sqlite's shared-cache table
// locks. The code under test still decides winners through its own
// conditional writes.
func singleConn(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
}

func newTestCustomer(t *testing.T, db *gorm.DB, email string) *models.Customer {
	t.Helper()
	customer := &models.Customer{
		ID:    uuid.New(),
		Email: email,
		Role:  models.RoleCustomer,
	}
	require.NoError(t, db.Create(customer).Error)
	return customer
}

func newTestSessionSigner() *token.SessionSigner {
	return token.NewSessionSigner("test-session-secret", time.Hour)
}
