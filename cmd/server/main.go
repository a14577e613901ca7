package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mxn2020/3d-community-sub001/internal/audit"
	"github.com/mxn2020/3d-community-sub001/internal/community"
	"github.com/mxn2020/3d-community-sub001/internal/config"
	"github.com/mxn2020/3d-community-sub001/internal/metrics"
	"github.com/mxn2020/3d-community-sub001/internal/persistence/indexdb"
	persistlog "github.com/mxn2020/3d-community-sub001/internal/persistence/log"
	"github.com/mxn2020/3d-community-sub001/internal/provider"
	"github.com/mxn2020/3d-community-sub001/internal/transport/ws"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to server.yaml (optional; PLOTS_* env vars override it)")
		addr          = flag.String("addr", "", "http listen address (overrides config)")
		communityPath = flag.String("community", "", "community map to seed the parcel store with (overrides config)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Addr = strings.TrimSpace(*addr)
	}
	if strings.TrimSpace(*communityPath) != "" {
		cfg.CommunityPath = strings.TrimSpace(*communityPath)
	}

	store, err := indexdb.OpenSQLite(cfg.DBPath, indexdb.WithReach(cfg.AdjacencyReach))
	if err != nil {
		logger.Fatalf("open parcel store: %v", err)
	}
	defer store.Close()

	if cfg.CommunityPath != "" {
		if err := seedCommunity(store, cfg); err != nil {
			logger.Fatalf("seed community: %v", err)
		}
	}

	recorders := audit.Multi{store}
	if cfg.AuditLog {
		selLog := persistlog.NewSelectionLogger(cfg.DataDir)
		defer selLog.Close()
		recorders = append(recorders, selLog)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	fetcher := provider.Fetcher{Source: store, Timeout: cfg.LookupTimeout()}
	wsSrv := ws.NewServer(fetcher, logger,
		ws.WithMetrics(m),
		ws.WithRecorder(recorders),
		ws.WithMaxQueue(cfg.MaxQueue),
	)

	mux := buildMux(wsSrv, store, reg)

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (db=%s)", cfg.Addr, cfg.DBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http: %v", err)
	}
	logger.Printf("stopped")
}

func seedCommunity(store *indexdb.SQLiteStore, cfg config.Config) error {
	m, err := community.Load(cfg.CommunityPath)
	if err != nil {
		return err
	}
	id := m.ID
	if cfg.CommunityID != "" {
		id = cfg.CommunityID
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return store.UpsertParcels(ctx, id, m.Plots)
}

func buildMux(wsSrv *ws.Server, store *indexdb.SQLiteStore, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	// Local-only admin endpoint.
	mux.HandleFunc("/admin/v1/parcels/", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/admin/v1/parcels/")
		if id == "" {
			http.Error(rw, "missing parcel id", http.StatusBadRequest)
			return
		}
		p, err := store.Anchor(r.Context(), id)
		if errors.Is(err, provider.ErrNotFound) {
			http.Error(rw, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		events, err := store.SelectionEvents(r.Context(), id, 50)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			Parcel any           `json:"parcel"`
			Events []audit.Event `json:"recent_selections"`
		}{Parcel: p, Events: events})
	})
	return mux
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
