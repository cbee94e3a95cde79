// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package debug

import (
	"context"
	"io"
	"log/slog"
	"net"

	"github.com/tombee/wfdebug/internal/log"
	"github.com/tombee/wfdebug/internal/runnerconn"
	"github.com/tombee/wfdebug/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Session is the configuration every session is created with.
	Session Config

	// MaxSessions limits concurrent sessions. Zero means no limit.
	MaxSessions int

	Logger *slog.Logger

	// NewRunner creates the runner side of a new session. It defaults to
	// a runnerconn.Conn.
	NewRunner func(cfg Config, logger *slog.Logger) Runner
}

// Server hosts debug sessions, one per editor connection.
type Server struct {
	cfg      ServerConfig
	registry *Registry
	logger   *slog.Logger
}

// NewServer creates a server with an empty registry.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewRunner == nil {
		cfg.NewRunner = newRunnerConn
	}
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(cfg.MaxSessions),
		logger:   log.WithComponent(cfg.Logger, "dap-server"),
	}
}

func newRunnerConn(cfg Config, logger *slog.Logger) Runner {
	return runnerconn.New(runnerconn.Config{
		RequestTimeout: cfg.RequestTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         logger,
	})
}

// Registry returns the sessions currently served.
func (s *Server) Registry() *Registry {
	return s.registry
}

// ServeConn runs a session on rwc until it ends.
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) error {
	cfg := s.cfg.Session.withDefaults()
	runner := s.cfg.NewRunner(cfg, s.cfg.Logger)
	sess := NewSession(rwc, cfg, runner, s.cfg.Logger)
	if err := s.registry.Add(sess); err != nil {
		rwc.Close()
		runner.Close()
		return err
	}
	defer s.registry.Remove(sess.ID())
	return sess.Run(ctx)
}

// stdio joins the process's standard streams into one editor stream.
type stdio struct {
	io.Reader
	io.Writer
}

func (s stdio) Close() error {
	if c, ok := s.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ServeStdio runs a single session over in and out.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return s.ServeConn(ctx, stdio{Reader: in, Writer: out})
}

// Serve accepts editor connections on l until ctx is cancelled or the
// listener fails, running a session for each. Session failures are logged
// and do not stop the server.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		l.Close()
		s.registry.CloseAll()
		return nil
	})

	g.Go(func() error {
		s.logger.Info("accepting debug connections", slog.String("address", l.Addr().String()))
		for {
			conn, err := l.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "accept debug connection")
			}
			remote := conn.RemoteAddr().String()
			g.Go(func() error {
				if err := s.ServeConn(gctx, conn); err != nil {
					s.logger.Warn("debug session failed", slog.String("remote", remote), log.Error(err))
				}
				return nil
			})
		}
	})

	return g.Wait()
}
