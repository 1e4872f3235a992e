// Command sendtest exercises the offline sending pipeline against a running
// server: it queues messages while disconnected, connects the chat socket,
// and verifies that replay and history reconciliation bring local state in
// line with the server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"workroom/internal/models"
	"workroom/internal/notifications"
	"workroom/internal/offline"
)

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func (a *apiClient) Send(ctx context.Context, qm *offline.QueuedMessage) (*models.Message, error) {
	body, err := json.Marshal(map[string]interface{}{
		"content":             qm.Content,
		"attachments":         qm.Attachments,
		"reply_to_message_id": qm.ReplyToID,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/conversations/%d/messages", a.base, qm.ConversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("send failed with status %d", resp.StatusCode)
	}

	var msg models.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *apiClient) Since(ctx context.Context, conversationID uint, since time.Time) ([]models.Message, error) {
	endpoint := fmt.Sprintf("%s/api/conversations/%d/messages/since?since=%s",
		a.base, conversationID, url.QueryEscape(since.Format(time.RFC3339)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history fetch failed with status %d", resp.StatusCode)
	}

	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func login(base, email, password string) (string, uint, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(base+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var out struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, err
	}
	return out.Token, out.User.ID, nil
}

func main() {
	host := flag.String("host", "localhost:8460", "API server host")
	email := flag.String("email", "", "User email")
	password := flag.String("password", "password123", "User password")
	convID := flag.Uint("conversation", 0, "Conversation ID to send into")
	count := flag.Int("count", 5, "Messages to queue before connecting")
	flag.Parse()

	if *email == "" || *convID == 0 {
		log.Fatal("both -email and -conversation are required")
	}

	base := "http://" + *host
	token, userID, err := login(base, *email, *password)
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	log.Printf("Logged in as user %d", userID)

	api := &apiClient{base: base, token: token, http: &http.Client{Timeout: 10 * time.Second}}
	outbox := offline.NewOutbox(0)
	recon := offline.NewReconciler(outbox, api, api, 500*time.Millisecond)

	// Compose while "offline".
	for i := 0; i < *count; i++ {
		qm := outbox.Enqueue(*convID, fmt.Sprintf("offline message %d sent at %s", i+1, time.Now().Format(time.Kitchen)), nil, nil)
		log.Printf("Queued %s", qm.TempID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session := offline.NewSession(
		fmt.Sprintf("ws://%s/api/ws/chat?token=%s", *host, url.QueryEscape(token)),
		token, userID,
		func(event notifications.Event) {
			log.Printf("event %s (conversation %d)", event.Type, event.ConversationID)
		},
		recon,
	)

	// Connecting triggers the settle delay, outbox replay, and history merge.
	if err := session.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer session.Close()

	if err := session.Join(*convID); err != nil {
		log.Fatalf("join: %v", err)
	}

	time.Sleep(2 * time.Second)

	local := recon.Local(*convID)
	log.Printf("Outbox remaining: %d, local history: %d messages", outbox.Len(), len(local))
	if n := outbox.Len(); n > 0 {
		log.Printf("WARNING: %d messages were not accepted", n)
	}
}
