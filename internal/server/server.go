package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/audiolibrelab/speechcapture/internal/audio"
	"github.com/audiolibrelab/speechcapture/internal/config"
	"github.com/audiolibrelab/speechcapture/internal/service"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 5 * time.Second
	heartbeatInterval = 15 * time.Second
)

// Server represents the web server for controlling SpeechCapture
type Server struct {
	service     service.Service
	addr        string
	eventBuffer int
	heartbeat   time.Duration
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// StopResponse is returned by a successful stop
type StopResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Result  audio.RecordingResult `json:"result"`
}

// PermissionResponse reports the capture permission status
type PermissionResponse struct {
	Status audio.PermissionStatus `json:"status"`
}

// RecordingsResponse represents the JSON response for the recordings endpoint
type RecordingsResponse struct {
	Recordings []service.RecordingInfo `json:"recordings"`
	Directory  string                  `json:"directory"`
	Count      int                     `json:"count"`
}

// New creates a new web server instance
func New(svc service.Service, cfg config.ServerConfig) *Server {
	return &Server{
		service:     svc,
		addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		eventBuffer: cfg.EventBuffer,
		heartbeat:   heartbeatInterval,
	}
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /pause", s.handlePause)
	mux.HandleFunc("POST /resume", s.handleResume)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("POST /cancel", s.handleCancel)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /permission", s.handlePermission)
	mux.HandleFunc("POST /permission/request", s.handlePermissionRequest)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /api/chunks", s.handleChunks)
	mux.HandleFunc("GET /api/recordings", s.handleRecordings)
	mux.HandleFunc("GET /api/recordings/download/{name}", s.handleRecordingDownload)
	return mux
}

// Run listens on the configured address and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	slog.Info("Starting SpeechCapture Web Server",
		"addr", ln.Addr().String(),
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", port))

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully and
// stops any active session, keeping its recording.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// streaming handlers end when base is cancelled
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down web server")
		cancelBase()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if cerr := s.service.Close(); cerr != nil {
			slog.Error("Failed to stop active session on shutdown", "error", cerr)
		}
		return err
	})
	return g.Wait()
}

// handleStart begins a session. The optional JSON body overrides recorder settings.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var overrides audio.RecorderConfig
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
		s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid recorder config: %v", err), "", "operation", "start")
		return
	}

	slog.Debug("Start request received", "sample_rate", overrides.SampleRate, "channels", overrides.Channels, "output_path", overrides.OutputPath)
	if err := s.service.Start(overrides); err != nil {
		s.sendServiceError(w, err, "start")
		return
	}
	s.sendSuccess(w, "Recording started")
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Pause(); err != nil {
		s.sendServiceError(w, err, "pause")
		return
	}
	s.sendSuccess(w, "Recording paused")
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Resume(); err != nil {
		s.sendServiceError(w, err, "resume")
		return
	}
	s.sendSuccess(w, "Recording resumed")
}

// handleStop finalizes the recording and returns its result
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Stop()
	if err != nil {
		s.sendServiceError(w, err, "stop")
		return
	}
	writeJSON(w, http.StatusOK, StopResponse{Success: true, Message: "Recording stopped", Result: res})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Cancel(); err != nil {
		s.sendServiceError(w, err, "cancel")
		return
	}
	s.sendSuccess(w, "Recording cancelled")
}

// handleStatus returns the current state and the last session outcome
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetStatus())
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PermissionResponse{Status: s.service.CheckPermission()})
}

func (s *Server) handlePermissionRequest(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.RequestPermission(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "request_permission")
		return
	}
	writeJSON(w, http.StatusOK, PermissionResponse{Status: status})
}

// handleEvents streams recorder events as Server-Sent Events. Audio chunks
// are only included with ?audio=1.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Streaming unsupported", "", "operation", "events")
		return
	}
	withAudio := r.URL.Query().Get("audio") == "1"

	sub := s.service.SubscribeChan(s.eventBuffer)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "status", s.service.GetStatus()); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Event stream closed", "dropped", sub.Dropped())
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if e.Type == audio.EventAudioData && !withAudio {
				continue
			}
			if err := writeSSE(w, string(e.Type), e); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

// handleChunks streams audio chunks as a sequence of msgpack-encoded
// AudioChunk values. ?limit=N ends the stream after N chunks.
func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Streaming unsupported", "", "operation", "chunks")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit: %s", v), "", "operation", "chunks")
			return
		}
		limit = n
	}

	sub := s.service.SubscribeChan(s.eventBuffer)
	defer sub.Close()

	w.Header().Set("Content-Type", "application/x-msgpack")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := msgpack.NewEncoder(w)
	sent := 0
	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if e.Type != audio.EventAudioData || e.Chunk == nil {
				continue
			}
			if err := enc.Encode(e.Chunk); err != nil {
				slog.Debug("Chunk stream write failed", "error", err)
				return
			}
			flusher.Flush()
			sent++
			if limit > 0 && sent >= limit {
				return
			}
		}
	}
}

// handleRecordings lists the recordings in the output directory
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	recordings, err := s.service.ListRecordings()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list recordings: %v", err), "", "operation", "list_recordings")
		return
	}
	writeJSON(w, http.StatusOK, RecordingsResponse{
		Recordings: recordings,
		Directory:  s.service.GetConfig().Output.Directory,
		Count:      len(recordings),
	})
}

// handleRecordingDownload serves a recording as an attachment
func (s *Server) handleRecordingDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	path, err := s.service.RecordingPath(name)
	if err != nil {
		s.sendServiceError(w, err, "download_recording")
		return
	}

	file, err := os.Open(path)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Error opening file", "", "file", name)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Error accessing file", "", "file", name)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))

	if _, err := io.Copy(w, file); err != nil {
		slog.Error("Error serving file download", "file", name, "error", err)
	}
}

// statusFor maps a service error to an HTTP status code
func statusFor(err error) int {
	if errors.Is(err, service.ErrRecordingNotFound) {
		return http.StatusNotFound
	}
	switch audio.CodeOf(err) {
	case audio.CodeInvalidState:
		return http.StatusConflict
	case audio.CodePermissionDenied:
		return http.StatusForbidden
	case audio.CodeHardware:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendServiceError(w http.ResponseWriter, err error, operation string) {
	code := ""
	if c := audio.CodeOf(err); c != audio.CodeUnknown {
		code = string(c)
	}
	s.sendErrorResponse(w, statusFor(err), err.Error(), code, "operation", operation)
}

// sendErrorResponse logs and sends a JSON error response
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg, code string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	if statusCode >= http.StatusInternalServerError {
		slog.Error("Sending error response to client", logFields...)
	} else {
		slog.Warn("Sending error response to client", logFields...)
	}

	writeJSON(w, statusCode, GenericResponse{Success: false, Error: errorMsg, Code: code})
}

func (s *Server) sendSuccess(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write JSON response", "error", err)
	}
}

func writeSSE(w io.Writer, event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func getLocalIP() string {
	// No packets are sent; dialing UDP only selects the outbound interface
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
