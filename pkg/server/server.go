// Package server exposes the HTTP surface: the signed webhook endpoint, the
// liveness probe and the public asset path.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/kamiyui/kamiyui/pkg/config"
	"github.com/kamiyui/kamiyui/pkg/line"
	"github.com/kamiyui/kamiyui/pkg/logger"
)

type EventParser interface {
	ParseRequest(r *http.Request) ([]*linebot.Event, error)
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, events []*linebot.Event)
}

type Server struct {
	addr       string
	parser     EventParser
	dispatcher EventDispatcher
	assets     http.Handler
	httpServer *http.Server

	// baseCtx outlives individual requests; dispatched work must not die
	// with the request context once the webhook is acknowledged.
	baseCtx context.Context
}

func New(cfg config.ServerConfig, parser EventParser, dispatcher EventDispatcher, assetsHandler http.Handler) *Server {
	return &Server{
		addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		parser:     parser,
		dispatcher: dispatcher,
		assets:     assetsHandler,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/callback", s.handleCallback)
	if s.assets != nil {
		mux.Handle("/assets/", http.StripPrefix("/assets/", s.assets))
	}
	return mux
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WarnCF("server", "Shutdown not clean", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.InfoCF("server", "Listening", map[string]interface{}{"addr": s.addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleCallback verifies the signature, hands the batch to the dispatcher
// and acknowledges immediately; processing continues in the background.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := s.parser.ParseRequest(r)
	if err != nil {
		if errors.Is(err, line.ErrInvalidSignature) {
			logger.WarnC("server", "Webhook signature rejected")
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		logger.WarnCF("server", "Webhook body not parsable", map[string]interface{}{"error": err.Error()})
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	s.dispatcher.Dispatch(ctx, events)
	w.WriteHeader(http.StatusOK)
}
