// Worker consumes security events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS and LOKI_URL; TELEMETRY_KAFKA_TOPIC and KAFKA_GROUP_ID have defaults.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"

	"clavionx/backend/internal/config"
	"clavionx/backend/internal/telemetry/loki"
)

const (
	lokiJob      = "clavionx-auth"
	pushTimeout  = 10 * time.Second
	pushAttempts = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		log.Fatal("worker: LOKI_URL is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.TelemetryKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()
	client := loki.NewClient(cfg.LokiURL, lokiJob)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	log.Printf("worker: consuming from %s (group %s), pushing to %s", cfg.TelemetryKafkaTopic, cfg.KafkaGroupID, cfg.LokiURL)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("worker: stopped")
				return
			}
			log.Printf("worker: kafka read error: %v", err)
			continue
		}

		_, err = backoff.Retry(ctx, func() (struct{}, error) {
			pushCtx, pushCancel := context.WithTimeout(ctx, pushTimeout)
			defer pushCancel()
			return struct{}{}, client.PushEventJSON(pushCtx, msg.Value)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(pushAttempts))
		if err != nil {
			log.Printf("worker: loki push failed for offset %d: %v", msg.Offset, err)
		}
	}
}
