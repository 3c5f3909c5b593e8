package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chainlet/chainlet/src/node"
	"github.com/sirupsen/logrus"
)

// Service exposes a read-only JSON view of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	addr        string
	node        *node.Node
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger.WithField("component", "service"),
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.mux,
	}

	return &service
}

// registerHandlers registers the API handlers on the service's own mux, so
// that several nodes can run in the same process.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering chainlet API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/chain", s.makeHandler(s.GetChain))
	s.mux.HandleFunc("/block/", s.makeHandler(s.GetBlock))
	s.mux.HandleFunc("/mempool", s.makeHandler(s.GetMempool))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.HandleFunc("/balance/", s.makeHandler(s.GetBalance))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the http.Handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Start binds the service address and serves in the background. Handlers can
// also be mounted elsewhere through Handler.
func (s *Service) Start() error {
	ln, err := net.Listen("tcp", s.bindAddress)
	if err != nil {
		return err
	}

	s.addr = ln.Addr().String()

	s.logger.WithField("bind_address", s.addr).Debug("Serving chainlet API")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error(err)
		}
	}()

	return nil
}

// Addr returns the address the service listens on once started.
func (s *Service) Addr() string {
	return s.addr
}

// Shutdown stops the HTTP server.
func (s *Service) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Debug("Shutting down service")
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetChain ...
func (s *Service) GetChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Chain())
}

// GetBlock ...
func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	param := strings.TrimPrefix(r.URL.Path, "/block/")

	blockIndex, err := strconv.Atoi(param)
	if err != nil {
		s.logger.WithError(err).Debugf("Parsing block_index parameter %s", param)

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	block, ok := s.node.Block(blockIndex)
	if !ok {
		http.Error(w, "block not found", http.StatusNotFound)

		return
	}

	writeJSON(w, block)
}

// GetMempool ...
func (s *Service) GetMempool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Mempool())
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Peers())
}

// Balance is the body of a /balance response.
type Balance struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// GetBalance ...
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimPrefix(r.URL.Path, "/balance/")
	if address == "" {
		http.Error(w, "missing address", http.StatusBadRequest)

		return
	}

	writeJSON(w, Balance{
		Address: address,
		Balance: s.node.Balance(address).String(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
