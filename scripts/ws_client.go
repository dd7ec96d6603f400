// Package main runs a demo WebSocket client for the live status stream.
//
// It uploads a one-movement snapshot, opens /v1/status/ws from a position
// inside the hub radius, then sets a manual message so an update arrives.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"driverstatus/internal/auth"
)

type wsMessage struct {
	Type   string          `json:"type"`
	Plate  string          `json:"plate,omitempty"`
	Status json.RawMessage `json:"status,omitempty"`
	Event  json.RawMessage `json:"event,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	secret := os.Getenv("ADMIN_UPLOAD_SECRET")
	if secret == "" {
		log.Fatal("ADMIN_UPLOAD_SECRET is required")
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	plate := "DEMO01"

	snap := []byte(`{"movements":[{"license_plate":"` + plate + `","location":"P3","destination_text":"Utrecht"}],"last_update":"demo"}`)
	// the office feed signs its snapshots; the server checks X-Signature when present
	adminDo(http.MethodPost, base+"/v1/snapshots", secret, snap, auth.SignHMAC(secret, snap))

	q := url.Values{}
	q.Set("plate", plate)
	q.Set("lat", "51.98")
	q.Set("lon", "6.05")
	q.Set("ts", strconv.FormatInt(time.Now().Unix(), 10))
	q.Set("lang", "en")
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/status/ws", RawQuery: q.Encode()}
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			log.Fatalf("dial: %v (HTTP %d)", err, resp.StatusCode)
		}
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s %s: %s", m.Type, m.Plate, string(m.Status))
		}
	}()

	// Trigger an update via a manual message, then clear it again
	time.Sleep(500 * time.Millisecond)
	adminDo(http.MethodPut, base+"/v1/manual-messages/"+plate, secret, []byte(`{"message":"Please report to gate 4"}`), "")
	time.Sleep(500 * time.Millisecond)
	adminDo(http.MethodDelete, base+"/v1/manual-messages/"+plate, secret, nil, "")

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}

func adminDo(method, u, secret string, body []byte, signature string) {
	req, _ := http.NewRequest(method, u, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderSecret, secret)
	if signature != "" {
		req.Header.Set(auth.HeaderSignature, signature)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("%s %s -> %d", method, u, resp.StatusCode)
}
