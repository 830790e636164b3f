package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"voicechat/internal/application"
	"voicechat/internal/domain"
)

// TurnRunner executes one voice turn.
type TurnRunner interface {
	Run(ctx context.Context, in domain.AudioInput) (*application.TurnResult, error)
}

// Resetter clears the conversation log.
type Resetter interface {
	Reset(ctx context.Context) error
}

// RequestRecorder receives per-request HTTP measurements.
type RequestRecorder interface {
	RecordRequest(route string, status int, duration time.Duration)
}

type ServerConfig struct {
	Addr           string
	UploadDir      string
	Version        string
	MaxUploadBytes int64
	// Protected lists files an upload must never replace, such as the
	// conversation log and the reply audio.
	Protected []string
}

type Server struct {
	cfg      ServerConfig
	runner   TurnRunner
	history  Resetter
	clips    *ClipResolver
	logger   *slog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader

	recorder       RequestRecorder
	metricsHandler http.Handler

	mu      sync.Mutex
	server  *http.Server
	running bool
}

func NewServer(cfg ServerConfig, runner TurnRunner, history Resetter, clips *ClipResolver, logger *slog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 * 1024 * 1024
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	s := &Server{
		cfg:     cfg,
		runner:  runner,
		history: history,
		clips:   clips,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

// WithMetrics records every request and exposes handler under /metrics.
func (s *Server) WithMetrics(recorder RequestRecorder, handler http.Handler) *Server {
	s.recorder = recorder
	s.metricsHandler = handler
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/reset", s.handleReset).Methods(http.MethodGet)
	r.HandleFunc("/post-audio-get/", s.handleGetAudio).Methods(http.MethodGet)
	r.HandleFunc("/post-audio/", s.handlePostAudio).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	s.router = r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0755); err != nil {
		return fmt.Errorf("creating upload dir: %w", err)
	}

	// No write timeout: a turn spans three upstream calls.
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Info("HTTP server starting", "addr", s.cfg.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := s.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	s.running = false
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the voice chat API",
		"version": s.cfg.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Reset(r.Context()); err != nil {
		s.logger.Error("resetting conversation", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Reset failed: "+err.Error())
		return
	}
	s.logger.Info("conversation reset")
	writeJSON(w, http.StatusOK, map[string]string{"message": "conversation reset"})
}

func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	path, err := s.clips.Resolve()
	if err != nil {
		wd, _ := os.Getwd()
		s.logger.Warn("fixed clip missing", "clip", s.clips.Name(), "error", err)
		writeDetail(w, http.StatusNotFound, "Audio file not found in current directory: "+wd)
		return
	}

	result, err := s.runner.Run(r.Context(), domain.PathInput(path))
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeAudio(w, result)
}

func (s *Server) handlePostAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Uploaded file too large")
			return
		}
		writeDetail(w, http.StatusUnprocessableEntity, `multipart field "file" is required`)
		return
	}
	defer file.Close()

	saved, name, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.logger.Error("saving upload", "filename", header.Filename, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer saved.Close()

	s.logger.Info("received upload", "filename", name, "content_type", header.Header.Get("Content-Type"), "bytes", header.Size)

	result, err := s.runner.Run(r.Context(), domain.ReaderInput(name, saved))
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeAudio(w, result)
}

// saveUpload stores the upload under its base name in the upload dir and
// returns an open handle on this request's copy, rewound to the start.
func (s *Server) saveUpload(src io.Reader, filename string) (*os.File, string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		name = "upload.wav"
	}

	tmp, err := os.CreateTemp(s.cfg.UploadDir, name+".*.part")
	if err != nil {
		return nil, "", fmt.Errorf("creating upload file: %w", err)
	}

	fail := func(err error) (*os.File, string, error) {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, "", err
	}

	if _, err := io.Copy(tmp, src); err != nil {
		return fail(fmt.Errorf("writing upload: %w", err))
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("rewinding upload: %w", err))
	}
	target := filepath.Join(s.cfg.UploadDir, name)
	if s.isProtected(target) {
		s.logger.Warn("upload name collides with a protected file, renaming", "name", name)
		name = "upload-" + name
		target = filepath.Join(s.cfg.UploadDir, name)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fail(fmt.Errorf("storing upload: %w", err))
	}

	return tmp, name, nil
}

func (s *Server) isProtected(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	for _, p := range s.cfg.Protected {
		if p == "" {
			continue
		}
		protected, err := filepath.Abs(p)
		if err == nil && protected == abs {
			return true
		}
	}
	return false
}

func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	status, detail := describeError(err)
	writeDetail(w, status, detail)
}

// describeError maps a failed turn to an HTTP status and client-facing detail.
func describeError(err error) (int, string) {
	var stageErr *application.StageError
	if !errors.As(err, &stageErr) {
		return http.StatusInternalServerError, "Internal server error"
	}

	switch stageErr.Reason {
	case application.ReasonNotFound:
		return http.StatusNotFound, "Audio file not found"
	case application.ReasonUndecodable:
		return http.StatusBadRequest, "Could not decode audio. Check if the file is a valid audio format."
	case application.ReasonNoReply:
		return http.StatusBadRequest, "Could not get chat response from API."
	case application.ReasonTTSFailure:
		return http.StatusBadRequest, "Failed to get text-to-speech audio response."
	case application.ReasonReadFailure:
		return http.StatusInternalServerError, fmt.Sprintf("Error reading audio file: %v", stageErr.Err)
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeAudio(w http.ResponseWriter, result *application.TurnResult) {
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", fmt.Sprint(len(result.Audio)))
	w.Header().Set("X-Request-ID", result.RequestID)
	w.WriteHeader(http.StatusOK)
	w.Write(result.Audio)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
