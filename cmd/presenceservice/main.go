package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/ridedispatch/internal/booking/domain"
	"github.com/example/ridedispatch/internal/directory"
	"github.com/example/ridedispatch/internal/presence"
	"github.com/example/ridedispatch/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("presence-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "presence-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	var drivers domain.DriverDirectory = directory.NewMemoryDirectory()
	var geo *presence.RedisGeoIndex
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer client.Close()
		drivers = directory.NewRedisDirectory(client, "")
		geo = presence.NewRedisGeoIndex(client, "")
	}

	tracker := presence.NewTracker()

	go runREST(logger, tracker, geo)
	go runGRPC(logger, tracker, drivers, geo)

	<-ctx.Done()
	logger.Info("shutdown signal received")
}

func runREST(logger *zap.Logger, tracker *presence.Tracker, geo *presence.RedisGeoIndex) {
	r := chi.NewRouter()
	r.Get("/v1/drivers/{id}/presence", func(w http.ResponseWriter, req *http.Request) {
		id, err := uuid.Parse(chi.URLParam(req, "id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		snap, ok := tracker.Snapshot(req.Context(), id)
		if !ok {
			http.Error(w, "unknown driver", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})
	r.Get("/v1/drivers/nearby", func(w http.ResponseWriter, req *http.Request) {
		if geo == nil {
			http.Error(w, "geo index not configured", http.StatusServiceUnavailable)
			return
		}
		lat, errLat := strconv.ParseFloat(req.URL.Query().Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(req.URL.Query().Get("lng"), 64)
		if errLat != nil || errLng != nil {
			http.Error(w, "lat and lng are required", http.StatusBadRequest)
			return
		}
		radius, err := strconv.ParseFloat(req.URL.Query().Get("radius_km"), 64)
		if err != nil || radius <= 0 {
			radius = 5
		}
		ids, err := geo.Nearby(req.Context(), domain.GeoPoint{Lat: lat, Lng: lng}, radius, 20)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"drivers": ids})
	})
	r.Mount("/observability", observability.MetricsRouter())

	srv := &http.Server{Addr: getenv("HTTP_ADDR", ":8081"), Handler: r, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("presence REST listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("presence rest server", zap.Error(err))
	}
}

func runGRPC(logger *zap.Logger, tracker *presence.Tracker, drivers domain.DriverDirectory, geo *presence.RedisGeoIndex) {
	lis, err := net.Listen("tcp", getenv("GRPC_ADDR", ":9090"))
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}

	srv := grpc.NewServer()
	presence.RegisterPresenceServer(srv, presence.NewServer(tracker, drivers, geo, logger.Named("presence")))
	logger.Info("presence grpc listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		logger.Fatal("grpc serve", zap.Error(err))
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
