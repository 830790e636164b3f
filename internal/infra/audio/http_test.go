package audio_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat/internal/application"
	"voicechat/internal/domain"
	"voicechat/internal/infra/audio"
	"voicechat/internal/infra/store"
	"voicechat/internal/metrics"
)

// echoSTT treats the clip bytes as the spoken words.
type echoSTT struct{}

func (echoSTT) Transcribe(_ context.Context, r io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(r)
	return string(data), err
}

type echoChat struct{}

func (echoChat) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	dialogue := req.Dialogue()
	return "reply to " + dialogue[len(dialogue)-1].Content, nil
}

type echoTTS struct{}

func (echoTTS) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

type failingReset struct{}

func (failingReset) Reset(context.Context) error { return fmt.Errorf("disk full") }

type fixture struct {
	server  *audio.Server
	history *store.JSONStore
	metrics *metrics.Metrics
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, func(dir string) audio.ServerConfig {
		return audio.ServerConfig{UploadDir: filepath.Join(dir, "uploads"), Version: "test"}
	})
}

func newFixtureWith(t *testing.T, serverConfig func(dir string) audio.ServerConfig) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	history := store.NewJSONStore(filepath.Join(dir, "stored_data.json"), logger)
	m := metrics.NewMetrics("test")

	pipeline := application.NewPipeline(
		application.NewStreamTranscriber(echoSTT{}, logger),
		application.NewChatOrchestrator(echoChat{}, history, logger, application.WithCoin(func() bool { return true })),
		history,
		application.NewSynthesizer(echoTTS{}, filepath.Join(dir, "voice.mp3"), logger),
		nil,
		m,
		logger,
	)

	clips := audio.NewClipResolver(filepath.Join(dir, "fixed.wav")).WithExecutableDir(dir)
	cfg := serverConfig(dir)
	server := audio.NewServer(cfg, pipeline, history, clips, logger).
		WithMetrics(m, m.Handler())
	require.NoError(t, os.MkdirAll(cfg.UploadDir, 0o755))

	return &fixture{server: server, history: history, metrics: m, dir: dir}
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/post-audio/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["detail"]
}

func TestServer_Liveness(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestServer_ResetThenPost(t *testing.T) {
	f := newFixture(t)
	handler := f.server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"conversation reset"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "myFile.wav", []byte("do you sell cars")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "mp3:reply to do you sell cars", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	turns := f.history.LoadWindow(context.Background(), 10)
	assert.Equal(t, []domain.Turn{
		domain.UserTurn("do you sell cars"),
		domain.AssistantTurn("reply to do you sell cars"),
	}, turns)

	saved, err := os.ReadFile(filepath.Join(f.dir, "uploads", "myFile.wav"))
	require.NoError(t, err)
	assert.Equal(t, "do you sell cars", string(saved))
}

func TestServer_UploadNameIsSanitized(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, uploadRequest(t, "../../escape.wav", []byte("hi")))
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := os.Stat(filepath.Join(f.dir, "uploads", "escape.wav"))
	assert.NoError(t, err)
}

func TestServer_GetWithoutFixedClip(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/post-audio-get/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, strings.ToLower(decodeDetail(t, rec)), "not found")
	assert.Empty(t, f.history.LoadWindow(context.Background(), 10))
}

func TestServer_GetWithFixedClip(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "fixed.wav"), []byte("hello"), 0o644))

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/post-audio-get/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp3:reply to hello", rec.Body.String())
}

func TestServer_PostUndecodable(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, uploadRequest(t, "silence.wav", []byte("   ")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Could not decode audio. Check if the file is a valid audio format.", decodeDetail(t, rec))
}

func TestServer_PostWithoutFile(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/post-audio/", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServer_ConcurrentPosts(t *testing.T) {
	f := newFixture(t)
	handler := f.server.Handler()

	requests := make([]*http.Request, 2)
	for i := range requests {
		requests[i] = uploadRequest(t, "clip.wav", []byte(fmt.Sprintf("question %d", i)))
	}

	var wg sync.WaitGroup
	bodies := make([]string, 2)
	for i, req := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
			bodies[i] = rec.Body.String()
		}()
	}
	wg.Wait()

	assert.Len(t, f.history.LoadWindow(context.Background(), 100), 4)
	assert.Equal(t, "mp3:reply to question 0", bodies[0])
	assert.Equal(t, "mp3:reply to question 1", bodies[1])
}

func TestServer_UploadCannotReplaceProtectedFiles(t *testing.T) {
	f := newFixtureWith(t, func(dir string) audio.ServerConfig {
		return audio.ServerConfig{
			UploadDir: dir,
			Version:   "test",
			Protected: []string{filepath.Join(dir, "stored_data.json"), filepath.Join(dir, "voice.mp3")},
		}
	})
	handler := f.server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "first.wav", []byte("hello")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "stored_data.json", []byte("not json at all")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	turns := f.history.LoadWindow(context.Background(), 100)
	require.Len(t, turns, 4)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, "not json at all", turns[2].Content)

	stored, err := os.ReadFile(filepath.Join(f.dir, "upload-stored_data.json"))
	require.NoError(t, err)
	assert.Equal(t, "not json at all", string(stored))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "voice.mp3", []byte("again")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	reply, err := os.ReadFile(filepath.Join(f.dir, "voice.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "mp3:reply to again", string(reply))

	upload, err := os.ReadFile(filepath.Join(f.dir, "upload-voice.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "again", string(upload))
}

func TestServer_ResetFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := audio.NewServer(audio.ServerConfig{}, nil, failingReset{}, audio.NewClipResolver("x.wav"), logger)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reset", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Reset failed: disk full", decodeDetail(t, rec))
}

func TestServer_UnknownRoute(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decodeDetail(t, rec))
}

func TestServer_MetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	handler := f.server.Handler()

	handler.ServeHTTP(httptest.NewRecorder(), uploadRequest(t, "clip.wav", []byte("hi")))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_turns_total{outcome="done"} 1`)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{route="/post-audio/",status="200"} 1`)
}

func TestServer_WebSocket(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("clip.webm")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("any houses?")))

	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, "mp3:reply to any houses?", string(data))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("  ")))

	messageType, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.EqualValues(t, http.StatusBadRequest, frame["status"])
	assert.Contains(t, frame["detail"], "Could not decode audio")
}
