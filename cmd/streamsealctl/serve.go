package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kenchrcum/streamseal/internal/blobstore"
	"github.com/kenchrcum/streamseal/internal/config"
	"github.com/kenchrcum/streamseal/internal/debug"
	"github.com/kenchrcum/streamseal/internal/keystore"
	"github.com/kenchrcum/streamseal/internal/metrics"
	"github.com/kenchrcum/streamseal/internal/middleware"
	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/seal"
	"github.com/kenchrcum/streamseal/internal/streamerr"
	"github.com/redis/go-redis/v9"
)

// runServe brings up the debug HTTP surface: health/readiness/metrics
// endpoints plus a /seal demo endpoint that exercises the chunk-seal
// codec end to end over HTTP.
func runServe(log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "HTTP listen address")
	configPath := fs.String("config", "", "optional config file (yaml/json/toml, viper-loaded)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log.SetLevel(logLevelOrInfo(cfg.LogLevel))
	debug.InitFromLogLevel(cfg.LogLevel)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(reg)
	metrics.SetVersion("streamseal-dev")

	var keyStore keystore.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		keyStore = keystore.NewRedisStore(client)
	}

	var store blobstore.Store = blobstore.NewMemStore()
	if cfg.Blobstore.Bucket != "" {
		s3Store, err := blobstore.NewS3Store(context.Background(), blobstore.Config{
			Provider:  cfg.Blobstore.Provider,
			Region:    cfg.Blobstore.Region,
			Bucket:    cfg.Blobstore.Bucket,
			Endpoint:  cfg.Blobstore.Endpoint,
			AccessKey: cfg.Blobstore.AccessKey,
			SecretKey: cfg.Blobstore.SecretKey,
			PathStyle: cfg.Blobstore.PathStyle,
		})
		if err != nil {
			return err
		}
		store = s3Store
	}

	srv := &server{log: log, metrics: m, keyStore: keyStore, store: store}

	router := mux.NewRouter()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggingMiddleware(log))
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", metrics.HealthHandler()).Methods(http.MethodGet)
	router.HandleFunc("/livez", metrics.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", metrics.ReadinessHandler(srv.readinessCheck)).Methods(http.MethodGet)
	router.HandleFunc("/seal", srv.handleSeal).Methods(http.MethodPost)
	router.HandleFunc("/open/{id}", srv.handleOpen).Methods(http.MethodGet)
	router.HandleFunc("/debug/hardware", srv.handleHardware).Methods(http.MethodGet)

	log.WithField("addr", *addr).Info("streamsealctl serve listening")
	return http.ListenAndServe(*addr, router)
}

type server struct {
	log      *logrus.Logger
	metrics  *metrics.Metrics
	keyStore keystore.Store
	store    blobstore.Store
}

func (s *server) readinessCheck(ctx context.Context) error {
	if rs, ok := s.keyStore.(*keystore.RedisStore); ok {
		return rs.HealthCheck(ctx)
	}
	return nil
}

// sealResponse is the JSON reply to POST /seal: the id the sealed artifact
// is stored under in the blobstore, and its base64-encoded outer key.
type sealResponse struct {
	ArtifactID string `json:"artifact_id"`
	OuterKey   string `json:"outer_key"`
}

func (s *server) handleSeal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	enc := seal.NewChunkEncryptor()
	if _, _, _, err := enc.Encrypt(body, seal.Append); err != nil {
		s.metrics.ObserveSealOp("encrypt", "failure")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	artifact, outerKey, artifactID, err := enc.Seal()
	if err != nil {
		s.metrics.ObserveSealOp("seal", "failure")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.metrics.ObserveSealOp("seal", "success")

	if err := s.store.Put(r.Context(), artifactID, bytes.NewReader(artifact)); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, sealResponse{
		ArtifactID: artifactID.String(),
		OuterKey:   base64.StdEncoding.EncodeToString(outerKey.Bytes()),
	})
}

func (s *server) handleOpen(w http.ResponseWriter, r *http.Request) {
	idHex := mux.Vars(r)["id"]
	id, err := resource.ParseIDHex(idHex)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := s.store.Get(r.Context(), id)
	if err != nil {
		if streamerr.IsKind(err, streamerr.KindKeyNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (s *server) handleHardware(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, debug.GetHardwareInfo())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func logLevelOrInfo(level string) logrus.Level {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}
