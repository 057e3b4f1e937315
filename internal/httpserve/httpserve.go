// Package httpserve runs a static file server for the boot phase, so
// the guest can fetch provisioning files from the host over the user
// network.
package httpserve

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
)

// Server serves one directory over HTTP for the lifetime of a VM run.
type Server struct {
	srv  *http.Server
	port int
	log  *slog.Logger
}

// Start listens on listen:port and serves files from root. Port 0
// picks a free port; Port reports the one actually bound.
func Start(listen string, port int, root string, log *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(listen, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("http_serve listen: %w", err)
	}

	s := &Server{
		srv:  &http.Server{Handler: http.FileServer(http.Dir(root))},
		port: ln.Addr().(*net.TCPAddr).Port,
		log:  log,
	}
	log.Info("http_serve started", "addr", ln.Addr().String(), "root", root)

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("http_serve failed", "error", err)
		}
	}()
	return s, nil
}

// Port returns the bound TCP port.
func (s *Server) Port() int { return s.port }

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http_serve stopping")
	return s.srv.Shutdown(ctx)
}
