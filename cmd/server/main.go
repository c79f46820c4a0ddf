package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/example/startrader/internal/auth"
	"github.com/example/startrader/internal/config"
	"github.com/example/startrader/internal/galaxy"
	srv "github.com/example/startrader/internal/server"
	"github.com/example/startrader/internal/store"
)

func main() {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "startrader.yaml", "Path to YAML config file")
		listenAddr = flag.String("addr", "", "Listen address (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config fail: %v", err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	st, err := store.New(cfg.SaveDir)
	if err != nil {
		log.Fatalf("Save dir fail: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	g := loadOrGenerateGalaxy(st, cfg, rng)
	stats := g.Stats()
	log.Printf("[GALAXY] %d sectors, %d ports, %d stardocks, avg %.2f warp routes, %d sectors with no inbound route",
		stats.Size, stats.Ports, stats.Stardocks, stats.AvgWarpRoutes, stats.NoInbound)

	players, err := st.LoadPlayers()
	if err != nil {
		log.Printf("[LOAD] Player snapshot unreadable, starting fresh: %v", err)
		players = nil
	}

	tokens := auth.NewTokenIssuer(cfg.SessionSecret, cfg.SessionTTL())
	gs := srv.New(cfg, g, players, st, tokens)
	gs.Run()

	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}).Methods("GET")

	r.HandleFunc("/ws", gs.HandleWS)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("Server running on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Listen fail: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("[SERVER] Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
	gs.Stop()
	log.Println("[SERVER] Final snapshot written. Bye.")
}

// loadOrGenerateGalaxy restores the galaxy snapshot when one exists and
// is readable; anything else falls back to a fresh roll. Both paths are
// non-fatal by design.
func loadOrGenerateGalaxy(st *store.Store, cfg *config.Config, rng *rand.Rand) *galaxy.Galaxy {
	snap, err := st.LoadGalaxy()
	switch {
	case err == nil:
		log.Println("[LOAD] Galaxy snapshot restored.")
		return galaxy.FromSnapshot(snap, rng)
	case errors.Is(err, store.ErrNoSnapshot):
		log.Println("[LOAD] No saved galaxy found, generating new one.")
	default:
		log.Printf("[LOAD] Galaxy snapshot unreadable, generating new one: %v", err)
	}
	return galaxy.New(cfg.GalaxySize, rng)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
