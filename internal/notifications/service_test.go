package notifications

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/gin-gonic/gin"
	"github.com/muilab/notigpt/internal/logger"
	"github.com/muilab/notigpt/internal/storage"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []*messaging.Message
	failFor  map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, message *messaging.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	if f.failFor[message.Token] {
		return "", errors.New("registration-token-not-registered")
	}
	return "projects/test/messages/" + message.Token, nil
}

func setupTokenStore(t *testing.T) *TokenStore {
	t.Helper()
	db, err := storage.InitDatabase(storage.DriverSQLite, filepath.Join(t.TempDir(), "push.db"), storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewTokenStore(db)
}

func TestTokenStore_RegisterIsIdempotent(t *testing.T) {
	store := setupTokenStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, Device{Token: "tok-a", DeviceID: "pixel", UpdatedAt: time.UnixMilli(1000)}))
	require.NoError(t, store.Register(ctx, Device{Token: "tok-a", DeviceID: "pixel-8", UpdatedAt: time.UnixMilli(3000)}))
	require.NoError(t, store.Register(ctx, Device{Token: "tok-b", DeviceID: "tablet", UpdatedAt: time.UnixMilli(2000)}))

	devices, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.Equal(t, "tok-a", devices[0].Token)
	require.Equal(t, "pixel-8", devices[0].DeviceID)

	require.NoError(t, store.Remove(ctx, "tok-a"))
	require.NoError(t, store.Remove(ctx, "unknown"))
	devices, err = store.All(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
}

func TestSendDigestReady(t *testing.T) {
	store := setupTokenStore(t)
	ctx := context.Background()
	require.NoError(t, store.Register(ctx, Device{Token: "tok-a", DeviceID: "a"}))
	require.NoError(t, store.Register(ctx, Device{Token: "tok-b", DeviceID: "b"}))

	sender := &fakeSender{failFor: map[string]bool{"tok-b": true}}
	svc := NewService(sender, store, logger.Nop(), true)

	require.NoError(t, svc.SendDigestReady(ctx, "d1", "summarize", "Chat: Alice asks about lunch"))
	require.Len(t, sender.messages, 2)

	msg := sender.messages[0]
	require.Equal(t, "Digest ready", msg.Notification.Title)
	require.Equal(t, "Chat: Alice asks about lunch", msg.Notification.Body)
	require.Equal(t, "d1", msg.Data["digest_id"])
	require.Equal(t, string(TypeDigestReady), msg.Data["type"])
}

func TestSendDigestReady_AllFailed(t *testing.T) {
	store := setupTokenStore(t)
	ctx := context.Background()
	require.NoError(t, store.Register(ctx, Device{Token: "tok-a"}))

	sender := &fakeSender{failFor: map[string]bool{"tok-a": true}}
	svc := NewService(sender, store, logger.Nop(), true)

	require.Error(t, svc.SendDigestReady(ctx, "d1", "summarize", "text"))
}

func TestSendDigestReady_Disabled(t *testing.T) {
	store := setupTokenStore(t)
	ctx := context.Background()
	require.NoError(t, store.Register(ctx, Device{Token: "tok-a"}))

	sender := &fakeSender{}
	svc := NewService(sender, store, logger.Nop(), false)

	require.NoError(t, svc.SendDigestReady(ctx, "d1", "summarize", "text"))
	require.Empty(t, sender.messages)
}

func TestPreview(t *testing.T) {
	require.Equal(t, "short", preview("short"))

	long := strings.Repeat("摘", 200)
	got := []rune(preview(long))
	require.Len(t, got, previewLength)
	require.Equal(t, '…', got[len(got)-1])
}

func TestHandler_RegisterDevice(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := setupTokenStore(t)
	router := gin.New()
	NewHandler(store, logger.Nop()).RegisterRoutes(router.Group("/api/v1"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/devices",
		strings.NewReader(`{"token":"tok-a","device_id":"pixel"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/devices",
		strings.NewReader(`{"device_id":"pixel"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/devices/tok-a", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	devices, err := store.All(context.Background())
	require.NoError(t, err)
	require.Empty(t, devices)
}
