package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// accountServer answers accountSubscribe/accountUnsubscribe and lets tests push notifications.
type accountServer struct {
	*httptest.Server

	mu           sync.Mutex
	conn         *websocket.Conn
	subscribed   map[string]int64
	unsubscribed []int64
}

func newAccountServer(t *testing.T) *accountServer {
	t.Helper()
	s := &accountServer{subscribed: make(map[string]int64)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = c
		s.mu.Unlock()
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID     uint64        `json:"id"`
				Method string        `json:"method"`
				Params []interface{} `json:"params"`
			}
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}

			var result interface{}
			s.mu.Lock()
			switch req.Method {
			case "accountSubscribe":
				subID := int64(1000 + req.ID)
				account, _ := req.Params[0].(string)
				s.subscribed[account] = subID
				result = subID
			case "accountUnsubscribe":
				id, _ := req.Params[0].(float64)
				s.unsubscribed = append(s.unsubscribed, int64(id))
				result = true
			}
			err = c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *accountServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *accountServer) subID(account string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed[account]
}

func (s *accountServer) notify(t *testing.T, subID int64, slot int64, data string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "accountNotification",
		"params": map[string]interface{}{
			"subscription": subID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": slot},
				"value": map[string]interface{}{
					"lamports": 42,
					"owner":    "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
					"data":     []string{data, "base64"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("write notification: %v", err)
	}
}

func TestWSClient_Connect(t *testing.T) {
	server := newAccountServer(t)

	client, err := NewWSClient(context.Background(), server.wsURL(), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_AccountSubscribe(t *testing.T) {
	server := newAccountServer(t)

	ctx := context.Background()
	client, err := NewWSClient(ctx, server.wsURL(), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	sub, err := client.AccountSubscribe(ctx, "CurveAccount")
	if err != nil {
		t.Fatalf("AccountSubscribe: %v", err)
	}
	if sub.Account != "CurveAccount" {
		t.Errorf("expected account CurveAccount, got %s", sub.Account)
	}

	subID := server.subID("CurveAccount")
	if subID == 0 {
		t.Fatal("server did not record subscription")
	}
	server.notify(t, subID, 777, "AQID")

	select {
	case n := <-sub.C:
		if n.Account != "CurveAccount" {
			t.Errorf("expected account CurveAccount, got %s", n.Account)
		}
		if n.Slot != 777 {
			t.Errorf("expected slot 777, got %d", n.Slot)
		}
		if n.Data != "AQID" {
			t.Errorf("expected data AQID, got %s", n.Data)
		}
		if n.Lamports != 42 {
			t.Errorf("expected lamports 42, got %d", n.Lamports)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_Unsubscribe(t *testing.T) {
	server := newAccountServer(t)

	ctx := context.Background()
	client, err := NewWSClient(ctx, server.wsURL(), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	sub, err := client.AccountSubscribe(ctx, "PoolAccount")
	if err != nil {
		t.Fatalf("AccountSubscribe: %v", err)
	}

	if err := client.Unsubscribe(sub); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Error("expected channel closed after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	// Second unsubscribe is a no-op
	if err := client.Unsubscribe(sub); err != nil {
		t.Errorf("second Unsubscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		server.mu.Lock()
		n := len(server.unsubscribed)
		server.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("server did not receive accountUnsubscribe")
}

func TestWSClient_DropsOldestWhenFull(t *testing.T) {
	c := &WSClientImpl{
		subs:  make(map[int64]*accountSub),
		byKey: make(map[uint64]int64),
	}
	sub := &accountSub{key: 1, account: "A", ch: make(chan AccountNotification, 2)}
	c.subs[7] = sub
	c.byKey[1] = 7

	for slot := int64(1); slot <= 4; slot++ {
		c.handleAccountNotification(&wsNotificationParams{
			Subscription: 7,
			Result: wsNotificationResult{
				Context: &wsContext{Slot: slot},
				Value:   wsAccountValue{Data: []string{"x", "base64"}},
			},
		})
	}

	if len(sub.ch) != 2 {
		t.Fatalf("expected 2 buffered notifications, got %d", len(sub.ch))
	}
	first := <-sub.ch
	second := <-sub.ch
	if first.Slot != 3 || second.Slot != 4 {
		t.Errorf("expected newest slots 3 and 4, got %d and %d", first.Slot, second.Slot)
	}
}

func TestWSClient_Close(t *testing.T) {
	server := newAccountServer(t)

	ctx := context.Background()
	client, err := NewWSClient(ctx, server.wsURL(), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	sub, err := client.AccountSubscribe(ctx, "CurveAccount")
	if err != nil {
		t.Fatalf("AccountSubscribe: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !client.closed.Load() {
		t.Error("client should be closed")
	}
	if _, ok := <-sub.C; ok {
		t.Error("expected subscription channel closed")
	}

	// Double close should be safe
	if err := client.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}
	// Unsubscribe after close is a no-op
	if err := client.Unsubscribe(sub); err != nil {
		t.Errorf("Unsubscribe after close: %v", err)
	}
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	server := newAccountServer(t)

	ctx := context.Background()
	client, err := NewWSClient(ctx, server.wsURL(), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	client.Close()

	if _, err := client.AccountSubscribe(ctx, "CurveAccount"); err == nil {
		t.Error("expected error subscribing after close")
	}
}

func TestWSClient_CustomConfig(t *testing.T) {
	server := newAccountServer(t)

	config := &WSClientConfig{
		ReconnectDelay:    100 * time.Millisecond,
		MaxReconnectDelay: 1 * time.Second,
		PingInterval:      5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}

	client, err := NewWSClient(context.Background(), server.wsURL(), config)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.config.PingInterval != 5*time.Second {
		t.Errorf("expected PingInterval 5s, got %v", client.config.PingInterval)
	}
	if client.config.BufferSize != 1 {
		t.Errorf("expected BufferSize defaulted to 1, got %d", client.config.BufferSize)
	}
	if client.config.Commitment != CommitmentConfirmed {
		t.Errorf("expected default commitment, got %s", client.config.Commitment)
	}
}
