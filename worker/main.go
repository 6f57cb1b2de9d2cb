package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/standards-desk/backend/internal/config"
	"github.com/DeafMist/standards-desk/backend/internal/dedupe"
	"github.com/DeafMist/standards-desk/backend/internal/elasticsearch"
	"github.com/DeafMist/standards-desk/backend/internal/importer"
	"github.com/DeafMist/standards-desk/backend/internal/logger"
	"github.com/DeafMist/standards-desk/backend/internal/models"
	"github.com/DeafMist/standards-desk/backend/internal/processing"
)

const (
	persistAttempts   = 3
	persistRetryDelay = 2 * time.Second
)

// feedImport is a standards document published by a district or state feed.
type feedImport struct {
	CourseID   string `json:"courseId"`
	State      string `json:"state"`
	Subject    string `json:"subject"`
	GradeLevel string `json:"gradeLevel"`
	Framework  string `json:"framework"`
	Text       string `json:"text"`
	FetchedAt  string `json:"fetchedAt"`
}

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	indexCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := esClient.EnsureIndex(indexCtx); err != nil {
		log.Warn("ensure index", slog.Any("err", err))
	}
	cancel()

	svc := importer.NewService(esClient, log, cfg.KeywordLimit, cfg.KeywordMinLength)
	tracker := dedupe.NewTracker(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(readerConfig(cfg))
	defer reader.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		err = importWithRetry(ctx, log, persistRetryDelay, func() error {
			return processMessage(ctx, log, svc, tracker, msg)
		})
		if err != nil {
			if ctx.Err() != nil {
				log.Info("context canceled, leaving message uncommitted")
				return
			}
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				if ctx.Err() != nil {
					return
				}
				// leave uncommitted so the message is reprocessed on restart
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// readerConfig reads with manual commits. A positive CommitInterval batches
// CommitMessages calls; zero commits each message synchronously.
func readerConfig(cfg *config.Worker) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: cfg.CommitInterval,
	}
}

// importWithRetry runs process and retries it while the store is failing.
// Bad payloads fail on the first attempt.
func importWithRetry(ctx context.Context, log *slog.Logger, delay time.Duration, process func() error) error {
	for attempt := 1; ; attempt++ {
		err := process()
		if err == nil || !errors.Is(err, importer.ErrPersistence) || attempt == persistAttempts {
			return err
		}

		log.Warn("store unavailable, retrying import",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
}

// dlqMessage copies msg with the failure attached. Store failures are marked
// retryable so they can be replayed onto the main topic once the store is back.
func dlqMessage(msg kafka.Message, cause error, now time.Time) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+5)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "retryable", Value: []byte(strconv.FormatBool(errors.Is(cause, importer.ErrPersistence)))},
		kafka.Header{Key: "timestamp", Value: []byte(now.UTC().Format(time.RFC3339))},
	)
	return kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}

// sendToDLQ writes msg to the dead-letter topic, retrying with exponential
// backoff. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w *kafka.Writer, msg kafka.Message, cause error) bool {
	dlqMsg := dlqMessage(msg, cause, time.Now())

	for attempt := 0; attempt < 5; attempt++ {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}

	log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}

func processMessage(ctx context.Context, log *slog.Logger, svc *importer.Service, tracker *dedupe.Tracker, msg kafka.Message) error {
	var payload feedImport
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode feed import: %w", err)
	}

	if strings.TrimSpace(payload.Text) == "" {
		return errors.New("empty standards text")
	}

	id := processing.BuildCollectionID(payload.CourseID, payload.Framework, payload.Text)
	if tracker.Contains(id) {
		log.Debug("duplicate feed import", slog.String("id", id))
		return nil
	}

	req := importer.Request{
		CourseID:   payload.CourseID,
		State:      payload.State,
		Subject:    payload.Subject,
		GradeLevel: payload.GradeLevel,
		Framework:  payload.Framework,
		Text:       payload.Text,
	}
	opts := importer.Options{
		ID:         id,
		SourceType: models.SourceFeed,
		FetchedAt:  parseTimestamp(payload.FetchedAt),
	}

	if _, err := svc.Import(ctx, req, opts); err != nil {
		return err
	}

	tracker.Add(id)
	return nil
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}
