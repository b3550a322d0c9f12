package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingHandler struct {
	min  slog.Level
	fail error
	msgs []string
}

func (h *recordingHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.min }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.msgs = append(h.msgs, r.Message)
	return h.fail
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestLevelFromEnv(t *testing.T) {
	for value, want := range map[string]slog.Level{
		"debug":  slog.LevelDebug,
		"WARN":   slog.LevelWarn,
		"error":  slog.LevelError,
		"":       slog.LevelInfo,
		"verbos": slog.LevelInfo,
	} {
		t.Setenv("LOG_LEVEL", value)
		assert.Equal(t, want, Level(), "LOG_LEVEL=%q", value)
	}
}

func TestMultiHandlerRespectsSinkLevels(t *testing.T) {
	stdout := &recordingHandler{min: slog.LevelInfo}
	dbSink := &recordingHandler{min: slog.LevelError}
	m := NewMultiHandler(stdout, dbSink)

	ctx := context.Background()
	info := slog.NewRecord(time.Now(), slog.LevelInfo, "payment event processed", 0)
	require.NoError(t, m.Handle(ctx, info))

	failure := slog.NewRecord(time.Now(), slog.LevelError, "activation failed", 0)
	require.NoError(t, m.Handle(ctx, failure))

	assert.Equal(t, []string{"payment event processed", "activation failed"}, stdout.msgs)
	assert.Equal(t, []string{"activation failed"}, dbSink.msgs)
}

func TestMultiHandlerKeepsGoingPastFailingSink(t *testing.T) {
	broken := &recordingHandler{min: slog.LevelInfo, fail: errors.New("sink down")}
	healthy := &recordingHandler{min: slog.LevelInfo}
	m := NewMultiHandler(broken, healthy)

	record := slog.NewRecord(time.Now(), slog.LevelError, "webhook rejected", 0)
	err := m.Handle(context.Background(), record)
	assert.ErrorContains(t, err, "sink down")
	assert.Equal(t, []string{"webhook rejected"}, healthy.msgs)
}

func TestPruneSystemLogsKeepsRecentRecords(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SystemLog{}))

	stale := models.SystemLog{
		ID:        uuid.New(),
		Timestamp: time.Now().Add(-systemLogRetention - 24*time.Hour),
		Level:     slog.LevelError.String(),
		Message:   "stale failure",
	}
	recent := models.SystemLog{
		ID:        uuid.New(),
		Timestamp: time.Now().Add(-time.Hour),
		Level:     slog.LevelError.String(),
		Message:   "recent failure",
	}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Create(&recent).Error)

	pruneSystemLogs(db)

	var remaining []models.SystemLog
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, recent.ID, remaining[0].ID)
}
