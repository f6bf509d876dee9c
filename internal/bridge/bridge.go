// Package bridge exposes a small host-side HTTP control plane that lets the
// containerized agent invoke pre-approved host commands by name.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Server executes named triggers over HTTP. The trigger map is loaded once
// and never mutated, so concurrent requests need no locking.
type Server struct {
	port     int
	triggers map[string]string
	logger   *log.Logger
}

// New creates a bridge server for the given trigger map.
func New(port int, triggers map[string]string, logger *log.Logger) *Server {
	return &Server{port: port, triggers: triggers, logger: logger}
}

// Handler returns the HTTP handler. Exposed separately from ListenAndServe
// so tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /triggers/{name}", s.handleTrigger)
	return mux
}

// ListenAndServe serves on localhost until ctx is canceled, then shuts down
// gracefully. The bridge binds to the loopback interface only; the
// container reaches it through the host gateway.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort("127.0.0.1", fmt.Sprint(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding bridge listener: %w", err)
	}

	srv := &http.Server{Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	s.logger.Info("bridge server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// triggerResponse is the wire shape for every trigger outcome. Fields are
// pointers so the unknown-trigger and spawn-failure responses serialize as
// nulls rather than misleading zero values.
type triggerResponse struct {
	ExitCode *int    `json:"exit_code"`
	Stdout   *string `json:"stdout"`
	Stderr   *string `json:"stderr"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	command, ok := s.triggers[name]
	if !ok {
		writeJSON(w, http.StatusBadRequest, triggerResponse{})
		return
	}

	s.logger.Info("executing trigger", "trigger", name, "command", command)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(r.Context(), "sh", "-c", command)
	cmd.Stdin = nil
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		s.logger.Error("trigger failed to start", "trigger", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, triggerResponse{})
		return
	}

	resp := triggerResponse{
		Stdout: lossyString(stdout.Bytes()),
		Stderr: lossyString(stderr.Bytes()),
	}
	// A signal-terminated trigger has no exit code; leave it null.
	if code := cmd.ProcessState.ExitCode(); code >= 0 {
		resp.ExitCode = &code
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body triggerResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// lossyString decodes process output as text, replacing invalid UTF-8
// rather than failing the response.
func lossyString(b []byte) *string {
	s := strings.ToValidUTF8(string(b), "�")
	return &s
}
