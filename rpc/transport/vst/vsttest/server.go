// Package vsttest provides an in-process VelocyStream server for tests.
//
// The server implements the handshake (protocol header and optional
// authentication), decodes requests and answers them through a Handler.
// It can be told to stop answering (Hang) and to drop all sockets
// (SeverConnections) to simulate outages.
package vsttest

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/serializer"
	"github.com/ValentinKolb/dbwire/rpc/transport/vst"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
)

var Logger = logger.GetLogger("transport/vst")

// Handler answers a single request
type Handler func(req *common.Request) *common.Response

// Option configures a Server
type Option func(s *Server)

// WithCredentials requires the plain authentication with user and password
func WithCredentials(user, password string) Option {
	return func(s *Server) { s.users[user] = password }
}

// WithToken requires the jwt authentication with token
func WithToken(token string) Option {
	return func(s *Server) { s.tokens[token] = struct{}{} }
}

// WithTLS serves TLS with the given config
func WithTLS(config *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = config }
}

// WithChunkSize sets the chunk size of the responses
func WithChunkSize(size int) Option {
	return func(s *Server) { s.chunkSize = size }
}

// Server is an in-process VelocyStream server listening on a loopback port
type Server struct {
	listener  net.Listener
	tlsConfig *tls.Config
	chunkSize int
	users     map[string]string
	tokens    map[string]struct{}

	handlerMu sync.RWMutex
	handler   Handler

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	hang     atomic.Bool
	requests atomic.Int64
	accepted atomic.Int64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewServer starts a server answering requests with handler (nil selects DefaultHandler).
// It panics if no loopback port can be opened, like httptest.NewServer.
func NewServer(handler Handler, opts ...Option) *Server {
	if handler == nil {
		handler = DefaultHandler
	}
	s := &Server{
		handler:   handler,
		chunkSize: common.DefaultChunkSize,
		users:     make(map[string]string),
		tokens:    make(map[string]struct{}),
		conns:     make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("vsttest: failed to listen on a port: %v", err))
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.serve()
	return s
}

// --------------------------------------------------------------------------
// Control Methods
// --------------------------------------------------------------------------

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listen address as host description
func (s *Server) Host() common.HostDescription {
	addr := s.listener.Addr().(*net.TCPAddr)
	return common.NewHostDescription(addr.IP.String(), addr.Port)
}

// SetHandler replaces the request handler
func (s *Server) SetHandler(handler Handler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handler = handler
}

// Hang makes the server read but not answer requests and handshakes (true) or answer again (false)
func (s *Server) Hang(hang bool) {
	s.hang.Store(hang)
}

// RequestCount returns the number of answered requests
func (s *Server) RequestCount() int64 {
	return s.requests.Load()
}

// AcceptedCount returns the number of accepted sockets
func (s *Server) AcceptedCount() int64 {
	return s.accepted.Load()
}

// OpenConnections returns the number of sockets currently open
func (s *Server) OpenConnections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// SeverConnections closes all open sockets, the listener stays open
func (s *Server) SeverConnections() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// Close stops the listener, closes all sockets and waits for the connection handlers
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.listener.Close()
		s.SeverConnections()
		s.wg.Wait()
	})
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection handles the handshake and all requests of one socket
func (s *Server) handleConnection(conn net.Conn) {
	// Worker goroutines write responses concurrently
	var workers sync.WaitGroup
	var writeMu sync.Mutex

	defer func() {
		conn.Close()
		workers.Wait()
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		s.wg.Done()
	}()

	header := make([]byte, len(vst.ProtocolHeader))
	if _, err := io.ReadFull(conn, header); err != nil {
		return
	}
	if !bytes.Equal(header, vst.ProtocolHeader) {
		Logger.Warningf("vsttest: invalid protocol header %q", header)
		return
	}

	authenticated := len(s.users) == 0 && len(s.tokens) == 0

	respond := func(messageID uint64, resp *common.Response) {
		data, err := vst.EncodeResponse(resp, serializer.DefaultCodec())
		if err != nil {
			Logger.Errorf("vsttest: failed to encode response: %v", err)
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := vst.WriteMessage(conn, messageID, data, s.chunkSize); err != nil {
			Logger.Debugf("vsttest: failed to write response: %v", err)
		}
	}

	reader := vst.NewMessageReader(conn, 0)
	for {
		messageID, data, err := reader.ReadMessage()
		if err != nil {
			return
		}
		if s.hang.Load() {
			continue
		}

		msgType, err := vst.MessageType(data)
		if err != nil {
			Logger.Warningf("vsttest: invalid message: %v", err)
			return
		}

		switch msgType {
		case vst.MessageTypeAuth:
			auth, err := vst.DecodeAuth(data)
			if err != nil || !s.checkAuth(auth) {
				respond(messageID, ErrorResponse(http.StatusUnauthorized, 11, "not authorized to execute this request"))
				continue
			}
			authenticated = true
			respond(messageID, common.NewResponse(http.StatusOK))

		case vst.MessageTypeRequest:
			req, err := vst.DecodeRequest(data)
			if err != nil {
				respond(messageID, ErrorResponse(http.StatusBadRequest, 400, err.Error()))
				continue
			}
			if !authenticated {
				respond(messageID, ErrorResponse(http.StatusUnauthorized, 11, "not authorized to execute this request"))
				continue
			}

			s.handlerMu.RLock()
			handler := s.handler
			s.handlerMu.RUnlock()

			workers.Add(1)
			go func() {
				defer workers.Done()
				resp := handler(req)
				s.requests.Add(1)
				if resp != nil {
					respond(messageID, resp)
				}
			}()

		default:
			Logger.Warningf("vsttest: unexpected message type %d", msgType)
			return
		}
	}
}

// checkAuth validates credentials against the configured users and tokens
func (s *Server) checkAuth(auth common.Authentication) bool {
	switch auth.Scheme {
	case common.AuthSchemeBasic:
		password, ok := s.users[auth.User]
		return ok && password == auth.Password
	case common.AuthSchemeJWT:
		_, ok := s.tokens[auth.Token]
		return ok
	default:
		return false
	}
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

// JSONResponse creates a response with a JSON body
func JSONResponse(status int, body string) *common.Response {
	resp := common.NewResponse(status)
	resp.Body.SetText(body)
	return resp
}

// ErrorResponse creates a response with the structured error body of the server
func ErrorResponse(status, errorNum int, message string) *common.Response {
	return JSONResponse(status, fmt.Sprintf(`{"error":true,"code":%d,"errorNum":%d,"errorMessage":%s}`,
		status, errorNum, strconv.Quote(message)))
}

// DefaultHandler answers the version endpoint and 404 for everything else
func DefaultHandler(req *common.Request) *common.Response {
	if req.Method == common.RequestGet && req.Path == "/_api/version" {
		return JSONResponse(http.StatusOK, `{"server":"vsttest","version":"1.1.0","license":"community"}`)
	}
	return ErrorResponse(http.StatusNotFound, 404, "unknown path "+req.Path)
}
