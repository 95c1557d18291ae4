package broadcast

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Server accepts line-delimited TCP subscribers.
type Server struct {
	Addr string
	Hub  *Hub

	mu sync.Mutex
	ln net.Listener
}

func NewServer(addr string, hub *Hub) *Server {
	return &Server{Addr: addr, Hub: hub}
}

// Listen binds Addr. Run calls it when it has not been called yet.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// ListenAddr reports the bound address, or "" before Listen.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Run accepts clients until ctx is done. Incoming bytes are read and
// discarded; a client is dropped when its connection closes.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.ln
		s.mu.Unlock()
	}
	log := s.Hub.Log
	log.Info().Str("addr", ln.Addr().String()).Msg("tcp notices listening")

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
			log.Warn().Err(err).Msg("accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		remote := conn.RemoteAddr().String()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(s.Hub.welcome("tcp")); err != nil {
			_ = conn.Close()
			continue
		}
		s.Hub.Add(conn)
		log.Debug().Str("remote", remote).Msg("tcp client connected")

		go func(c net.Conn) {
			defer func() {
				s.Hub.Remove(c)
				log.Debug().Str("remote", remote).Msg("tcp client disconnected")
			}()
			sc := bufio.NewScanner(c)
			for sc.Scan() {
				// subscribers have nothing to say
			}
		}(conn)
	}
}
