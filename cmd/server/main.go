package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"aicity.ai/internal/persistence/citydb"
	"aicity.ai/internal/sim/city"
	"aicity.ai/internal/sim/tuning"
	"aicity.ai/internal/transport/observer"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dayInterval = flag.Duration("day_interval", 30*time.Second, "wall-clock duration of one simulated day")
		snapPath    = flag.String("snapshot", "", "snapshot file to resume from (default: latest committed)")
		disableDB   = flag.Bool("disable_db", false, "run without durable storage (in-memory only)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[aicity] ", log.LstdFlags|log.Lmicroseconds)

	// Secrets (mint key, reasoning credentials) come from the environment;
	// .env is a dev convenience.
	_ = godotenv.Load()
	mintKey := strings.TrimSpace(os.Getenv("AICITY_MINT_KEY"))

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tun, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	cfg := tun.CityConfig()

	var store *citydb.Store
	opts := []city.Option{city.WithMintKey(mintKey)}
	if !*disableDB {
		snapDir := filepath.Join(*dataDir, "snapshots")
		store, err = citydb.Open(filepath.Join(*dataDir, "city.db"), snapDir, logger)
		if err != nil {
			logger.Fatalf("open citydb: %v", err)
		}
		defer store.Close()
		opts = append(opts, city.WithCheckpoint(store))
	}

	c, err := buildCity(cfg, store, *snapPath, logger, opts)
	if err != nil {
		logger.Fatalf("build city: %v", err)
	}

	obsSrv := observer.NewServer(c, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())
	mux.HandleFunc("/v1/admin/mint", mintHandler(c, logger))

	httpSrv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Printf("observer surface on %s", *addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Printf("city %s starting at day %d (%d agents)", cfg.ID, c.Day(), len(c.AliveAgents()))
	if err := c.Run(ctx, *dayInterval); err != nil && ctx.Err() == nil {
		logger.Printf("simulation halted: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	logger.Printf("stopped at day %d", c.Day())
}

// mintHandler is the operator's guarded supply expansion. The key never
// lands in logs; a wrong key is logged at high severity by the ledger.
func mintHandler(c *city.City, logger *log.Logger) http.HandlerFunc {
	type mintBody struct {
		Amount       int    `json:"amount"`
		AuthorizedBy string `json:"authorized_by"`
		Key          string `json:"key"`
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body mintBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(rw, "bad request", http.StatusBadRequest)
			return
		}
		minted, err := c.RequestMint(body.Amount, body.AuthorizedBy, body.Key)
		if err != nil {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]int{"minted": minted})
	}
}

// buildCity resumes from a snapshot when one exists, otherwise seeds a
// fresh population.
func buildCity(cfg city.CityConfig, store *citydb.Store, explicitSnap string, logger *log.Logger, opts []city.Option) (*city.City, error) {
	path := explicitSnap
	if path == "" && store != nil {
		p, day, err := store.LatestSnapshotPath()
		if err != nil {
			return nil, err
		}
		if p != "" {
			logger.Printf("resuming from %s (day %d)", p, day)
			path = p
		}
	}
	if path != "" {
		snap, err := citydb.ReadSnapshot(path)
		if err != nil {
			return nil, err
		}
		return city.Restore(cfg, snap, logger, opts...)
	}
	c := city.New(cfg, logger, opts...)
	if err := c.BigBang(nil); err != nil {
		return nil, err
	}
	return c, nil
}
