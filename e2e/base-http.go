package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseHTTPSuite struct {
	suite.Suite
	Config Config
	client *http.Client
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHTTPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	s.client = &http.Client{Timeout: 30 * time.Second}

	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping end to end suite")
	}
}

// Step prints a colorized header so multi-step scenarios read well in logs
func (s *BaseHTTPSuite) Step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Call performs one JSON request against the server and decodes the data
// envelope into out (when non-nil). Bodies are logged when E2E_DEBUG_JSON
// is enabled.
func (s *BaseHTTPSuite) Call(t *testing.T, method, path, token string, payload, out any) *http.Response {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		s.Require().NoError(err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.Config.ServerAddr+path, body)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	s.Require().NoError(err)

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", method, path, resp.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		fmt.Fprintln(&logBuilder, "\nRESPONSE:")
		fmt.Fprintln(&logBuilder, string(raw))
	}
	t.Log(logBuilder.String())

	if out != nil {
		envelope := struct {
			Data any `json:"data"`
		}{Data: out}
		s.Require().NoError(json.Unmarshal(raw, &envelope))
	}
	return resp
}

// Dial opens an authenticated websocket against the server.
func (s *BaseHTTPSuite) Dial(t *testing.T, token string) *websocket.Conn {
	wsAddr := strings.Replace(s.Config.ServerAddr, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsAddr, nil)
	s.Require().NoError(err, "Failed to connect websocket at "+wsAddr)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// WaitFrame drains frames until the wanted event arrives or the deadline hits.
func (s *BaseHTTPSuite) WaitFrame(conn *websocket.Conn, eventName string, timeout time.Duration) json.RawMessage {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(timeout)))
	for {
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		s.Require().NoError(conn.ReadJSON(&frame))
		if frame.Event == eventName {
			return frame.Data
		}
	}
}
