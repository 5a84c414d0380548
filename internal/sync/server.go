package sync

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
)

// Server is the line-delimited JSON progress feed over TCP.
type Server struct {
	Addr   string
	Hub    *Hub
	Logger *slog.Logger
}

func NewServer(addr string, hub *Hub) *Server {
	return &Server{Addr: addr, Hub: hub}
}

// Run listens on Addr until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := s.logger()
	logger.Info("listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn("accept failed", "error", err)
			continue
		}

		s.Hub.Add(conn)
		logger.Info("client connected", "remote", conn.RemoteAddr().String())

		go func(c net.Conn) {
			defer func() {
				s.Hub.Remove(c)
				logger.Info("client disconnected", "remote", c.RemoteAddr().String())
			}()

			// the feed is one-way; drain until the client goes away
			sc := bufio.NewScanner(c)
			for sc.Scan() {
			}
		}(conn)
	}
}

func (s *Server) logger() *slog.Logger {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", "tcp-sync")
}
