// Command guacgw is the WebSocket-to-guacd gateway: it upgrades
// incoming HTTP requests to WebSocket, resolves a connection descriptor
// from the request's token, and relays the session to guacd.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/guacgw/gateway/config"
	"github.com/guacgw/gateway/intake"
	"github.com/guacgw/gateway/middleware"
	"github.com/guacgw/gateway/recorder"
	"github.com/guacgw/gateway/tunnel"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	configPath := flag.String("config", envOr("GUACGW_CONFIG", "guacgw.yaml"), "path to the gateway's YAML config file")
	replayConnID := flag.String("replay", "", "replay a recorded session's connection id to stdout and exit, instead of serving")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("GUACGW_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	if *replayConnID != "" {
		replay(cfg, *replayConnID)
		return
	}

	var rec tunnel.Recorder
	if cfg.Recording.Directory != "" {
		rec = newRecorder(cfg)
		log.Info().Str("directory", cfg.Recording.Directory).Msg("session recording enabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner := &sessionRunner{ctx: ctx, cfg: cfg, recorder: rec, log: log.Logger}
	queue := intake.NewQueue(cfg.Intake.QueueCapacity, cfg.Intake.Workers, runner)
	defer queue.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/websocket-tunnel", func(w http.ResponseWriter, r *http.Request) {
		handleUpgrade(queue, w, r)
	})

	addr := fmt.Sprintf(":%d", cfg.WebSocket.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      middleware.RequestID(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving websocket-tunnel")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// handleUpgrade accepts the WebSocket, wraps it as a tunnel.ClientSocket,
// and hands it to the intake queue. Enqueue failure is already handled
// by the queue (clean close + completion=false); here we just wait for
// the outcome so the HTTP handler doesn't return before the upgraded
// connection is actually relayed or rejected.
func handleUpgrade(queue *intake.Queue, w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFrom(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("request_id", reqID).Msg("websocket upgrade failed")
		return
	}

	client := tunnel.NewWebSocketAdapter(conn)
	query := queryFromURL(r.URL.Query())
	completion := make(chan bool, 1)

	if err := queue.Enqueue(&intake.Request{Client: client, Query: query, Completion: completion}); err != nil {
		log.Warn().Err(err).Str("request_id", reqID).Msg("enqueue rejected")
	}
	<-completion
}

// replay streams a previously recorded session's instructions to
// stdout, using the same recording configuration the live gateway
// would have written it with.
func replay(cfg *config.Config, connID string) {
	if cfg.Recording.Directory == "" {
		log.Fatal().Msg("recording.directory is not configured; nothing to replay")
	}
	rec := newRecorder(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instructions, err := rec.Replay(ctx, connID)
	if err != nil {
		log.Fatal().Err(err).Str("connection_id", connID).Msg("replaying recording")
	}
	for instr := range instructions {
		fmt.Print(instr)
	}
}

func newRecorder(cfg *config.Config) *recorder.FileRecorder {
	opts := []recorder.FileRecorderOption{recorder.WithBaseDirectory(cfg.Recording.Directory)}
	if cfg.Recording.GzipLevel > 0 {
		opts = append(opts, recorder.WithGzipLevel(cfg.Recording.GzipLevel))
	}
	return recorder.NewFileRecorder(opts...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
