package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"postman"
	"postman/internal/delivery/config"
	"postman/internal/delivery/docstore"
)

type Config struct {
	EventCount            int           `env:"EVENT_COUNT" envDefault:"100"`
	PublishMessagesPerSec int           `env:"PUBLISH_MESSAGES_PER_SEC" envDefault:"0"`
	PublishRounds         int           `env:"PUBLISH_ROUNDS" envDefault:"1"`
	Publishers            int           `env:"PUBLISHERS" envDefault:"4"`
	Topic                 string        `env:"TOPIC" envDefault:"orders"`
	SyncEvery             int           `env:"SYNC_EVERY" envDefault:"25"`
	ShutdownTimeout       time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	Profile               bool          `env:"PROFILE" envDefault:"false"`
	Verify                bool          `env:"VERIFY" envDefault:"true"`
}

const verifyPageSize = 500

type order struct {
	OrderID    string  `json:"order_id"`
	CustomerID string  `json:"customer_id"`
	ProductID  string  `json:"product_id"`
	Amount     float64 `json:"amount"`
	Timestamp  string  `json:"timestamp"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse environment variables: %v", err)
	}

	if cfg.Profile {
		stop := profile()
		defer stop()
	}

	producerCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load producer config: %v", err)
	}
	logger, err := producerCfg.NewLogger()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	h, err := postman.New(postman.WithConfig(producerCfg), postman.WithLogger(logger))
	if err != nil {
		log.Fatalf("failed to create producer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := h.ShutdownOnSignal(ctx)
	defer stop()

	now := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for p := range max(cfg.Publishers, 1) {
		g.Go(func() error {
			return publish(gctx, logger, h, cfg, p)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("error in goroutine", zap.Error(err))
	}
	if err := h.Flush(ctx); err != nil {
		logger.Error("failed to flush", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	h.Shutdown(shutdownCtx)

	if cfg.Verify && producerCfg.Backend == config.BackendCouchbase {
		if err := verify(shutdownCtx, logger, producerCfg, cfg.Topic); err != nil {
			logger.Error("verification failed", zap.Error(err))
		}
	}

	fmt.Printf("\n\n TEST COMPLETE IN %.2f seconds\n", time.Since(now).Seconds())
}

// publish sends PublishRounds batches of events. Every SyncEvery-th event is
// delivered synchronously, the rest are produced.
func publish(ctx context.Context, logger *zap.Logger, h *postman.Handle, cfg Config, publisher int) error {
	// default rate of 0 means one round per second
	ticker := time.NewTicker(time.Second / time.Duration(max(cfg.PublishMessagesPerSec, 1)))
	defer ticker.Stop()
	rounds := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for i, e := range events(cfg.EventCount) {
				value, err := json.Marshal(e)
				if err != nil {
					return fmt.Errorf("failed to marshal event: %w", err)
				}
				key := postman.WithPartitionKey([]byte(e.CustomerID))

				switch {
				case cfg.SyncEvery > 0 && i%cfg.SyncEvery == 0:
					err = h.Deliver(ctx, value, cfg.Topic, key)
				default:
					err = h.ProduceOrDrop(ctx, value, cfg.Topic, key)
				}
				if err != nil {
					return fmt.Errorf("failed to publish event %s: %w", e.OrderID, err)
				}
			}

			rounds++
			logger.Info("published events", zap.Int("publisher", publisher), zap.Int("round", rounds))
			if rounds >= cfg.PublishRounds {
				return nil
			}
		}
	}
}

func verify(ctx context.Context, logger *zap.Logger, cfg config.Config, topic string) error {
	store, disconnect, err := docstore.Connect(cfg)
	if err != nil {
		return err
	}
	defer disconnect()

	var total int
	for partition := range cfg.Couchbase.Partitions {
		var next uint64
		for {
			docs, err := store.LoadDocuments(ctx, topic, partition, next, verifyPageSize)
			if err != nil {
				return fmt.Errorf("failed to load partition %d: %w", partition, err)
			}
			for _, doc := range docs {
				if doc.Offset != next {
					return fmt.Errorf("partition %d: expected offset %d, got %d", partition, next, doc.Offset)
				}
				next++
			}
			total += len(docs)
			if len(docs) < verifyPageSize {
				break
			}
		}
	}

	logger.Info("verified stored records", zap.String("topic", topic), zap.Int("records", total))
	return nil
}

func events(count int) []order {
	customers := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}
	products := []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "10"}
	events := make([]order, 0, count)

	for i := range count {
		events = append(events, order{
			OrderID:    fmt.Sprintf("ORD-%04d", i+1),
			CustomerID: customers[rand.IntN(len(customers))],
			ProductID:  products[rand.IntN(len(products))],
			Amount:     10.0 + rand.Float64()*990.0,
			Timestamp:  time.Now().Format(time.RFC3339),
		})
	}

	return events
}

func profile() func() {
	cpuProfile, err := os.Create("cpu.pprof")
	if err != nil {
		log.Fatal("could not create CPU profile: ", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		log.Fatal("could not start CPU profile: ", err)
	}

	return func() {
		pprof.StopCPUProfile()
		cpuProfile.Close()

		memProfile, err := os.Create("mem.pprof")
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		defer memProfile.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(memProfile); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}
