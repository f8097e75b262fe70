package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"

	"dm-lab/domain"
	"dm-lab/domain/event"
	"dm-lab/reconcile"
)

// pollInterval is the catch-up cadence while the socket may be degraded.
const pollInterval = 2 * time.Second

// Reference terminal client. It keeps one conversation converged by
// feeding both the socket stream and the polling query into the same
// merge, so a flaky socket costs latency, never messages.
func main() {
	server := flag.String("server", "http://localhost:8080", "Server base URL")
	email := flag.String("email", "", "Account email")
	password := flag.String("password", "", "Account password")
	peer := flag.String("peer", "", "User ID of the conversation partner")
	flag.Parse()

	if *email == "" || *password == "" || *peer == "" {
		log.Fatal("email, password and peer are required")
	}

	token, userID, err := login(*server, *email, *password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	color.Green.Printf("Logged in as %s\n", userID)

	timeline := reconcile.NewTimeline()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go socketLoop(ctx, *server, token, timeline)
	go pollLoop(ctx, *server, token, *peer, timeline)
	go renderLoop(ctx, timeline, userID)

	// Stdin lines become messages to the peer
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := send(*server, token, *peer, text); err != nil {
			color.Red.Printf("Send failed: %v\n", err)
		}
	}
}

func login(server, email, password string) (token, userID string, err error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(server+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var envelope struct {
		Data struct {
			User  domain.User `json:"user"`
			Token string      `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", "", err
	}
	return envelope.Data.Token, envelope.Data.User.ID, nil
}

func send(server, token, peer, text string) error {
	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequest(http.MethodPost, server+"/api/messages/send/"+peer, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// socketLoop keeps a websocket open and merges every newMessage frame.
// On failure it backs off and redials; the poller covers the gap.
func socketLoop(ctx context.Context, server, token string, timeline *reconcile.Timeline) {
	wsURL := strings.Replace(server, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(token)

	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			color.Yellow.Printf("Socket dial failed, retrying: %v\n", err)
			time.Sleep(pollInterval)
			continue
		}
		color.Green.Println("Socket connected")

		readFrames(conn, timeline)
		conn.Close()
		color.Yellow.Println("Socket lost, falling back to polling")
	}
}

func readFrames(conn *websocket.Conn, timeline *reconcile.Timeline) {
	for {
		var f struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Event {
		case "newMessage":
			var msg domain.Message
			if err := json.Unmarshal(f.Data, &msg); err == nil {
				timeline.Merge(msg)
			}
		case "messageDeleted":
			var ev event.MessageDeleted
			if err := json.Unmarshal(f.Data, &ev); err == nil {
				_ = timeline.Consume(context.Background(), ev)
			}
		case "messagesCleared":
			var ev event.MessagesCleared
			if err := json.Unmarshal(f.Data, &ev); err == nil {
				_ = timeline.Consume(context.Background(), ev)
			}
		case "userOnline", "userOffline", "userTyping":
			color.Gray.Printf("[%s] %s\n", f.Event, string(f.Data))
		}
	}
}

// pollLoop is the delivery safety net: every cycle it asks for messages
// strictly newer than the newest one merged so far.
func pollLoop(ctx context.Context, server, token, peer string, timeline *reconcile.Timeline) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		endpoint := server + "/api/messages/new/" + peer
		if latest, ok := timeline.Latest(); ok {
			endpoint += "?since=" + url.QueryEscape(latest.Format(time.RFC3339Nano))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			continue
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			continue
		}

		var envelope struct {
			Data []domain.Message `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			timeline.MergeAll(envelope.Data)
		}
		resp.Body.Close()
	}
}

// renderLoop repaints whenever the timeline grows.
func renderLoop(ctx context.Context, timeline *reconcile.Timeline, selfID string) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	rendered := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		messages := timeline.Messages()
		for ; rendered < len(messages); rendered++ {
			msg := messages[rendered]
			stamp := msg.CreatedAt.Local().Format("15:04:05")
			if msg.SenderID == selfID {
				color.Cyan.Printf("[%s] me: %s\n", stamp, msg.Text)
			} else {
				color.White.Printf("[%s] %s: %s\n", stamp, msg.SenderID, msg.Text)
			}
		}
	}
}
