package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"workroom/internal/cache"
	"workroom/internal/config"
	"workroom/internal/database"
	"workroom/internal/middleware"
	"workroom/internal/models"
	"workroom/internal/notifications"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// The Prometheus middleware registers collectors globally, so the server is
// built once and shared by every test in the package.
var (
	setupOnce sync.Once
	testApp   *fiber.App
	testWs    models.Workspace
)

func setupAPI(t *testing.T) {
	t.Helper()
	setupOnce.Do(func() {
		cfg := &config.Config{
			JWTSecret: "api-test-secret-key-long-enough-for-hs256",
			Port:      "0",
			Env:       "test",
		}
		middleware.InitMiddleware(cfg)

		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		if err != nil {
			t.Fatalf("Failed to connect to database: %v", err)
		}
		if err := database.Migrate(db); err != nil {
			t.Fatalf("Failed to migrate database: %v", err)
		}

		srv, err := NewServerWithDeps(cfg, db, nil)
		if err != nil {
			t.Fatalf("Failed to create server: %v", err)
		}

		app := fiber.New()
		srv.SetupMiddleware(app)
		srv.SetupRoutes(app)
		testApp = app

		testWs = models.Workspace{Name: "API Test", Slug: "api-test"}
		if err := db.Create(&testWs).Error; err != nil {
			t.Fatalf("Failed to create workspace: %v", err)
		}
	})
}

func doJSON(t *testing.T, method, path, token string, body interface{}) (*fiber.Map, int) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := testApp.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out fiber.Map
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return &out, resp.StatusCode
}

// signupUser registers a user and returns their token and ID.
func signupUser(t *testing.T, email, displayName string) (string, uint) {
	t.Helper()
	out, status := doJSON(t, "POST", "/api/auth/signup", "", fiber.Map{
		"workspace_id": testWs.ID,
		"email":        email,
		"display_name": displayName,
		"password":     "password123",
	})
	require.Equal(t, fiber.StatusCreated, status)

	token := (*out)["token"].(string)
	user := (*out)["user"].(map[string]interface{})
	return token, uint(user["id"].(float64))
}

func TestAuthEndpoints(t *testing.T) {
	setupAPI(t)

	t.Run("signup and login", func(t *testing.T) {
		token, _ := signupUser(t, "dana@api.test", "Dana Reeve")
		assert.NotEmpty(t, token)

		out, status := doJSON(t, "POST", "/api/auth/login", "", fiber.Map{
			"email":    "dana@api.test",
			"password": "password123",
		})
		assert.Equal(t, fiber.StatusOK, status)
		assert.NotEmpty(t, (*out)["token"])
	})

	t.Run("duplicate signup conflicts", func(t *testing.T) {
		signupUser(t, "dupe@api.test", "First One")
		_, status := doJSON(t, "POST", "/api/auth/signup", "", fiber.Map{
			"workspace_id": testWs.ID,
			"email":        "dupe@api.test",
			"display_name": "Second One",
			"password":     "password123",
		})
		assert.Equal(t, fiber.StatusConflict, status)
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		signupUser(t, "eve@api.test", "Eve Martin")
		_, status := doJSON(t, "POST", "/api/auth/login", "", fiber.Map{
			"email":    "eve@api.test",
			"password": "not-the-password",
		})
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})

	t.Run("unknown workspace rejected", func(t *testing.T) {
		_, status := doJSON(t, "POST", "/api/auth/signup", "", fiber.Map{
			"workspace_id": 9999,
			"email":        "ghost@api.test",
			"display_name": "Ghost",
			"password":     "password123",
		})
		assert.Equal(t, fiber.StatusNotFound, status)
	})

	t.Run("protected route requires token", func(t *testing.T) {
		_, status := doJSON(t, "GET", fmt.Sprintf("/api/workspaces/%d/conversations", testWs.ID), "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})
}

func TestMessagingFlow(t *testing.T) {
	setupAPI(t)

	aliceToken, _ := signupUser(t, "alice@flow.test", "Alice Flow")
	bobToken, bobID := signupUser(t, "bob@flow.test", "Bob Flow")

	// Alice opens a direct conversation with Bob.
	out, status := doJSON(t, "GET",
		fmt.Sprintf("/api/workspaces/%d/conversations/direct/%d", testWs.ID, bobID), aliceToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	convID := uint((*out)["id"].(float64))

	t.Run("send and fetch history", func(t *testing.T) {
		out, status := doJSON(t, "POST",
			fmt.Sprintf("/api/conversations/%d/messages", convID), aliceToken, fiber.Map{
				"workspace_id": testWs.ID,
				"content":      "hello bob",
			})
		require.Equal(t, fiber.StatusCreated, status)
		assert.Equal(t, "sent", (*out)["delivery_status"])

		hist, status := doJSON(t, "GET",
			fmt.Sprintf("/api/conversations/%d/messages", convID), bobToken, nil)
		require.Equal(t, fiber.StatusOK, status)
		messages := (*hist)["messages"].([]interface{})
		require.Len(t, messages, 1)
	})

	t.Run("delivery progression over HTTP", func(t *testing.T) {
		out, status := doJSON(t, "POST",
			fmt.Sprintf("/api/conversations/%d/messages", convID), aliceToken, fiber.Map{
				"workspace_id": testWs.ID,
				"content":      "ack me",
			})
		require.Equal(t, fiber.StatusCreated, status)
		msgID := uint((*out)["id"].(float64))

		out, status = doJSON(t, "POST",
			fmt.Sprintf("/api/messages/%d/delivered", msgID), bobToken, nil)
		require.Equal(t, fiber.StatusOK, status)

		out, status = doJSON(t, "POST",
			fmt.Sprintf("/api/messages/%d/read", msgID), bobToken, nil)
		require.Equal(t, fiber.StatusOK, status)

		readBy, status := doJSON(t, "GET",
			fmt.Sprintf("/api/messages/%d/read-by", msgID), aliceToken, nil)
		require.Equal(t, fiber.StatusOK, status)
		receipts := (*readBy)["read_by"].([]interface{})
		assert.Len(t, receipts, 1)
	})

	t.Run("reactions toggle", func(t *testing.T) {
		out, status := doJSON(t, "POST",
			fmt.Sprintf("/api/conversations/%d/messages", convID), aliceToken, fiber.Map{
				"workspace_id": testWs.ID,
				"content":      "react please",
			})
		require.Equal(t, fiber.StatusCreated, status)
		msgID := uint((*out)["id"].(float64))

		out, status = doJSON(t, "POST",
			fmt.Sprintf("/api/messages/%d/reactions", msgID), bobToken, fiber.Map{"emoji": "🔥"})
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "added", (*out)["action"])

		out, status = doJSON(t, "POST",
			fmt.Sprintf("/api/messages/%d/reactions", msgID), bobToken, fiber.Map{"emoji": "🔥"})
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "removed", (*out)["action"])
	})

	t.Run("star and listing", func(t *testing.T) {
		out, status := doJSON(t, "POST",
			fmt.Sprintf("/api/conversations/%d/messages", convID), aliceToken, fiber.Map{
				"workspace_id": testWs.ID,
				"content":      "star this",
			})
		require.Equal(t, fiber.StatusCreated, status)
		msgID := uint((*out)["id"].(float64))

		_, status = doJSON(t, "PUT",
			fmt.Sprintf("/api/messages/%d/star", msgID), aliceToken, fiber.Map{"starred": true})
		require.Equal(t, fiber.StatusOK, status)

		starred, status := doJSON(t, "GET",
			fmt.Sprintf("/api/conversations/%d/starred", convID), aliceToken, nil)
		require.Equal(t, fiber.StatusOK, status)
		messages := (*starred)["messages"].([]interface{})
		assert.Len(t, messages, 1)
	})

	t.Run("sidebar shows the conversation", func(t *testing.T) {
		out, status := doJSON(t, "GET",
			fmt.Sprintf("/api/workspaces/%d/conversations", testWs.ID), bobToken, nil)
		require.Equal(t, fiber.StatusOK, status)
		conversations := (*out)["conversations"].([]interface{})
		assert.NotEmpty(t, conversations)
	})

	t.Run("outsider cannot read the conversation", func(t *testing.T) {
		outsiderToken, _ := signupUser(t, "mallory@flow.test", "Mallory Gray")
		_, status := doJSON(t, "GET",
			fmt.Sprintf("/api/conversations/%d/messages", convID), outsiderToken, nil)
		assert.Equal(t, fiber.StatusForbidden, status)
	})
}

func TestErrorFrameEnvelope(t *testing.T) {
	var event notifications.Event
	require.NoError(t, json.Unmarshal(errorFrame("too many connections"), &event))
	assert.Equal(t, notifications.EventError, event.Type)

	payload, ok := event.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "too many connections", payload["message"])
}

func TestAllowTyping(t *testing.T) {
	s := &Server{}
	ctx := context.Background()

	t.Run("limiter faults fail open", func(t *testing.T) {
		// Production env with no Redis: the limiter errors instead of
		// answering, and typing indicators must still flow.
		t.Setenv("APP_ENV", "production")
		assert.True(t, s.allowTyping(ctx, 1, 2, true))
	})

	t.Run("repeat start signals are deduped", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cache.SetClient(c)
		defer func() {
			cache.SetClient(nil)
			_ = c.Close()
		}()

		assert.True(t, s.allowTyping(ctx, 5, 6, true))
		assert.False(t, s.allowTyping(ctx, 5, 6, true))
		// Stop signals always pass so indicators clear promptly.
		assert.True(t, s.allowTyping(ctx, 5, 6, false))
	})
}

func TestHealthEndpoints(t *testing.T) {
	setupAPI(t)

	_, status := doJSON(t, "GET", "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, status)

	out, status := doJSON(t, "GET", "/health/ready", "", nil)
	// Redis is absent in tests; readiness degrades but still reports.
	assert.Contains(t, []int{fiber.StatusOK, fiber.StatusServiceUnavailable}, status)
	assert.NotNil(t, (*out)["checks"])
}
