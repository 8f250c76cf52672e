// CLAUDE:SUMMARY Entry point for the pilote MCP server — stdio or QUIC transport, chi status endpoint, session teardown on exit.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-rod/rod"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pilote/browser"
	"github.com/hazyhaar/pilote/dbopen"
	"github.com/hazyhaar/pilote/journal"
	"github.com/hazyhaar/pilote/mcpquic"
	"github.com/hazyhaar/pilote/pilot"
	"github.com/hazyhaar/pilote/session"
)

func main() {
	logLevel := env("LOG_LEVEL", "info")
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Stdout may carry the MCP stdio stream, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Configuration.
	cfg := &pilot.Config{}
	if path := os.Getenv("PILOTE_CONFIG"); path != "" {
		loaded, err := pilot.LoadConfigFile(path)
		if err != nil {
			slog.Error("load config", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if cfg.DBPath == "" {
		cfg.DBPath = env("PILOTE_DB", "pilote.db")
	}

	// Journal DB.
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(journal.Schema))
	if err != nil {
		slog.Error("journal db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	jnl := journal.New(db, journal.WithLogger(logger))

	// Session registry. Everything still open at exit is torn down here.
	registry := session.NewRegistry(session.Config{Logger: logger})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		registry.DestroyAll(shutdownCtx)
	}()

	// Browser manager. BROWSER=off runs without web surfaces (embedded only).
	var mgr *browser.Manager
	if env("BROWSER", "on") != "off" {
		mgr = browser.NewManager(browser.Config{
			RemoteURL: os.Getenv("BROWSER_URL"),
			Headful:   os.Getenv("HEADFUL") == "1",
			Logger:    logger,
		})
		if err := mgr.Start(ctx); err != nil {
			slog.Warn("browser unavailable, web surfaces disabled", "error", err)
			mgr = nil
		} else {
			defer mgr.Close()
			// Pages die with the Chrome process that owned them; the sessions
			// holding them are torn down rather than left with dead handles.
			mgr.SetOnRecycle(func(_ *rod.Browser) {
				recycleCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				registry.DestroyAll(recycleCtx)
			})
		}
	}

	svc := pilot.New(cfg, registry, mgr, jnl, logger)

	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    "pilote",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(mcpSrv)

	// Status endpoint.
	go serveStatus(ctx, svc, env("PORT", "8086"))

	switch env("MCP_TRANSPORT", "stdio") {
	case "quic":
		quicAddr := env("MCP_QUIC_ADDR", ":9444")
		certFile := env("TLS_CERT", "")
		keyFile := env("TLS_KEY", "")

		var tlsCfg *tls.Config
		if certFile != "" && keyFile != "" {
			tlsCfg, err = mcpquic.ServerTLSConfig(certFile, keyFile)
		} else {
			tlsCfg, err = mcpquic.SelfSignedTLSConfig()
		}
		if err != nil {
			slog.Error("MCP QUIC TLS", "error", err)
			os.Exit(1)
		}
		ql, err := mcpquic.NewListener(quicAddr, tlsCfg, mcpSrv, logger)
		if err != nil {
			slog.Error("MCP QUIC listener", "error", err)
			os.Exit(1)
		}
		slog.Info("MCP QUIC starting", "addr", quicAddr)
		if err := ql.Serve(ctx); err != nil && ctx.Err() == nil {
			slog.Error("MCP QUIC", "error", err)
			os.Exit(1)
		}
	default:
		slog.Info("MCP stdio starting")
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("MCP stdio", "error", err)
			os.Exit(1)
		}
	}
}

// serveStatus exposes /health and a password-protected /status with the live
// session list.
func serveStatus(ctx context.Context, svc *pilot.Service, port string) {
	var statusHash []byte
	if pw := os.Getenv("STATUS_PASSWORD"); pw != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("status password hash", "error", err)
			return
		}
		statusHash = h
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		if statusHash != nil {
			_, pw, ok := req.BasicAuth()
			if !ok || bcrypt.CompareHashAndPassword(statusHash, []byte(pw)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="pilote"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		sessions, err := svc.SessionList(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("status endpoint starting", "port", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("status endpoint", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
