package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/thejerf/suture/v4"
)

// HTTPServer is satisfied by *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server as a supervised service.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server. A non-positive timeout means 10s.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// ctx is already cancelled; shut down on a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string {
	return "http-server"
}

// EmbeddedNATS is an in-process NATS server for single-binary clusters of one.
type EmbeddedNATS struct {
	server *server.Server
}

// StartEmbeddedNATS starts a core NATS server and waits until it accepts
// connections. Port 0 picks the default port; -1 picks a random one.
func StartEmbeddedNATS(host string, port int) (*EmbeddedNATS, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName: "blackboard-bus",
		Host:       host,
		Port:       port,
		NoSigs:     true,
		MaxPayload: 8 * 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("NATS server not ready within timeout")
	}
	return &EmbeddedNATS{server: ns}, nil
}

// ClientURL returns the connection URL for clients.
func (e *EmbeddedNATS) ClientURL() string {
	return e.server.ClientURL()
}

// Running reports server health.
func (e *EmbeddedNATS) Running() bool {
	return e.server.Running()
}

// Serve implements suture.Service. It holds the server open until ctx ends;
// a server that stops on its own is not restarted.
func (e *EmbeddedNATS) Serve(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.server.Shutdown()
			e.server.WaitForShutdown()
			return ctx.Err()
		case <-ticker.C:
			if !e.server.Running() {
				return suture.ErrDoNotRestart
			}
		}
	}
}

func (e *EmbeddedNATS) String() string {
	return "embedded-nats"
}
