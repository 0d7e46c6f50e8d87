package session

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"
)

// maxLine bounds a command line: a full file plus the verb and name
const maxLine = 128 * 1024

// Server accepts TCP clients, one goroutine per connection
type Server struct {
	listener net.Listener
	handler  *Handler
	log      *zap.SugaredLogger
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// Listen opens the listening socket on address
func Listen(address string, handler *Handler, log *zap.SugaredLogger) (*Server, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: lis,
		handler:  handler,
		log:      log,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the listening address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts clients until ctx is done or the server is closed
func (s *Server) Serve(ctx context.Context) error {
	s.log.Infof("Server started. Listening on %s", s.listener.Addr())
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-stop:
		}
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.log.Debugf("Accepted client: %s", conn.RemoteAddr())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
	conn.Close()
}

func (s *Server) serveConn(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLine)
	w := bufio.NewWriter(conn)
	for scanner.Scan() {
		line := scanner.Text()
		s.log.Debugf("Received from %s: %s", conn.RemoteAddr(), line)
		reply, quit := s.handler.Execute(line)
		if _, err := w.WriteString(reply + "\n"); err != nil {
			s.log.Debugf("write to %s: %v", conn.RemoteAddr(), err)
			return
		}
		if err := w.Flush(); err != nil {
			s.log.Debugf("write to %s: %v", conn.RemoteAddr(), err)
			return
		}
		if quit {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Infof("Error handling client %s: %v", conn.RemoteAddr(), err)
	}
}

// Close stops accepting clients, drops the open connections and waits for their
// goroutines
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}
