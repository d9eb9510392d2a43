package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/makeasinger/ttsstream/internal/artifact"
	"github.com/makeasinger/ttsstream/internal/audio"
	"github.com/makeasinger/ttsstream/internal/blob"
	"github.com/makeasinger/ttsstream/internal/handler"
	"github.com/makeasinger/ttsstream/internal/job"
	"github.com/makeasinger/ttsstream/internal/metrics"
	"github.com/makeasinger/ttsstream/internal/middleware"
	"github.com/makeasinger/ttsstream/internal/model"
	"github.com/makeasinger/ttsstream/internal/process"
	"github.com/makeasinger/ttsstream/internal/process/processtest"
	ws "github.com/makeasinger/ttsstream/internal/websocket"
	"github.com/makeasinger/ttsstream/pkg/response"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	hub       *ws.Hub
	runner    *processtest.Runner
	auth      *middleware.AuthMiddleware
	uploadDir string
	baseURL   string
	wsURL     string
}

// setupApp wires the server the way main.go does, with the external tools
// replaced by the scripted runner and no Redis behind it. The app listens on
// a loopback port so real websocket clients can connect.
func setupApp(t *testing.T, configure func(*processtest.Runner)) *testApp {
	t.Helper()

	root := t.TempDir()
	uploadDir := filepath.Join(root, "uploads")
	artifactDir := filepath.Join(root, "audio")
	if err := artifact.EnsureDirs(uploadDir, artifactDir); err != nil {
		t.Fatal(err)
	}
	artifacts, err := artifact.NewStore(artifactDir)
	if err != nil {
		t.Fatal(err)
	}
	blobs, err := blob.NewLocalStore(uploadDir)
	if err != nil {
		t.Fatal(err)
	}

	// Private registry so tests don't collide on the global one
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		t.Fatal(err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	meters, err := metrics.NewWithProvider(mp)
	if err != nil {
		t.Fatal(err)
	}

	runner := processtest.New()
	if configure != nil {
		configure(runner)
	}
	synthTool := process.Tool{Name: runner.SynthTool}
	concatTool := process.Tool{Name: runner.ConcatTool}

	orchestrator := job.NewOrchestrator(job.Options{
		Synthesizer:  audio.NewSynthesizer(synthTool, runner),
		Concatenator: audio.NewConcatenator(concatTool, runner),
		Artifacts:    artifacts,
		Blobs:        blobs,
		Metrics:      meters,
		Parallelism:  1,
		Timeout:      10 * time.Second,
	})

	hub := ws.NewHub(orchestrator, model.NewValidator(), ws.SessionOptions{
		HeartbeatInterval: time.Second,
		ClientTimeout:     10 * time.Second,
		OutboundBuffer:    64,
		CancelJobsOnClose: true,
		Uploads:           blobs,
	}, meters)
	go hub.Run()

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret, true)

	app := fiber.New(fiber.Config{
		ErrorHandler: response.FromFiberError,
		BodyLimit:    50 * 1024 * 1024,
	})

	app.Get("/health", handler.NewHealthHandler(hub, synthTool, concatTool).Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	app.Get("/download/:jobId/:filename", handler.NewDownloadHandler(artifacts).Artifact)

	api := app.Group("/api", authMiddleware.Authenticate())
	api.Post("/upload/:fileId", handler.NewUploadHandler(blobs).Source)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, authMiddleware.Authenticate())
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c)
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		_ = app.ShutdownWithTimeout(time.Second)
	})

	addr := ln.Addr().String()
	return &testApp{
		app:       app,
		hub:       hub,
		runner:    runner,
		auth:      authMiddleware,
		uploadDir: uploadDir,
		baseURL:   "http://" + addr,
		wsURL:     "ws://" + addr + "/ws",
	}
}

// generateToken creates a signed token for test requests.
func generateToken(t *testing.T, ta *testApp) string {
	t.Helper()
	token, err := ta.auth.GenerateToken("test-user-123", "test@example.com")
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// wsClient is a websocket client speaking the session protocol.
type wsClient struct {
	conn *fws.Conn
}

// dial connects and consumes the greeting.
func dial(t *testing.T, ta *testApp) *wsClient {
	t.Helper()
	conn, _, err := fws.DefaultDialer.Dial(ta.wsURL+"?token="+generateToken(t, ta), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := &wsClient{conn: conn}
	t.Cleanup(func() { _ = conn.Close() })

	c.expect(t, model.WSMessageTypeInfo)
	return c
}

func (c *wsClient) send(t *testing.T, v interface{}) {
	t.Helper()
	if err := c.conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// next reads one message. Heartbeat pings are answered by the dialer.
func (c *wsClient) next(t *testing.T) map[string]interface{} {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("bad message %s: %v", data, err)
	}
	return msg
}

func (c *wsClient) expect(t *testing.T, typ string) map[string]interface{} {
	t.Helper()
	msg := c.next(t)
	if msg["type"] != typ {
		t.Fatalf("expected %q message, got %v", typ, msg)
	}
	return msg
}

// untilDone collects a job's messages up to and including its last one:
// progress 1.0 after success, or the error.
func (c *wsClient) untilDone(t *testing.T) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for {
		msg := c.next(t)
		out = append(out, msg)
		switch msg["type"] {
		case model.WSMessageTypeError:
			return out
		case model.WSMessageTypeProgress:
			if msg["fraction"] == 1.0 {
				return out
			}
		}
	}
}

func findType(msgs []map[string]interface{}, typ string) map[string]interface{} {
	for _, m := range msgs {
		if m["type"] == typ {
			return m
		}
	}
	return nil
}

// uploadText posts content as the bytes of an announced upload.
func uploadText(t *testing.T, ta *testApp, fileID, filename, content string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	partHeader.Set("Content-Type", "text/plain")
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	_, _ = part.Write([]byte(content))
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, ta.baseURL+"/api/upload/"+fileID, &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+generateToken(t, ta))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload request failed: %v", err)
	}
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
