package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"ronin/internal/archetype"
	"ronin/internal/centroid"
	"ronin/internal/embedding"
	"ronin/internal/external"
	"ronin/internal/outcome"
	"ronin/internal/rewrite"
	"ronin/internal/scheduler"
	"ronin/internal/shared/config"
	"ronin/internal/shared/storage/object/local"
	"ronin/internal/shared/telemetry"
	"ronin/internal/store"
	"ronin/internal/workerproc"
)

const (
	sqsRegion                 = "us-east-1"
	defaultVisibilitySeconds  = 120
	defaultWorkerConcurrency  = 4
	defaultShutdownTimeoutSec = 30
)

func main() {
	cfg := config.Load()

	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = ":memory:"
	}
	repo, err := store.Open(dsn, cfg.ModelVersion)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder := embedding.NewHashFallback(embedding.DefaultDim)
	classifier, err := archetype.New(ctx, embedder)
	if err != nil {
		log.Fatalf("building classifier: %v", err)
	}

	backups := local.New(cfg.LocalStoreDir)
	sched := scheduler.New(repo, classifier, &external.FakeInbox{}, outcome.NewProcessor(repo), centroid.NewEngine(repo, embedder), rewrite.NewTrigger(repo), backups)
	sched.Locker = scheduler.RedisOrInProcessLocker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	if err := sched.Register(cfg.InboxPollSchedule, cfg.DriftSchedule, cfg.BackupSchedule); err != nil {
		log.Fatalf("registering scheduled jobs: %v", err)
	}
	sched.Start()
	defer waitStopped(sched)

	queueURL := strings.TrimSpace(os.Getenv("RONIN_SCRAPE_QUEUE_URL"))
	if queueURL == "" {
		log.Printf("RONIN_SCRAPE_QUEUE_URL not set, worker will only run the cron schedule")
		<-ctx.Done()
		log.Printf("shutdown requested")
		return
	}

	visibilitySeconds := envInt("RONIN_SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := envInt("RONIN_WORKER_CONCURRENCY", defaultWorkerConcurrency)
	shutdownTimeout := time.Duration(envInt("RONIN_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(sqsRegion))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds", queueURL, concurrency, visibilitySeconds)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, sched, sqsClient, queueURL, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

func waitStopped(sched *scheduler.Scheduler) {
	<-sched.Stop().Done()
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func handleMessage(ctx context.Context, sched *scheduler.Scheduler, client sqsAPI, queueURL string, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	if strings.TrimSpace(body) == "" {
		fields := baseFields(msg, "")
		fields["body_len"] = 0
		telemetry.Error("worker.ingest.empty_body", fields)
		deleteMessage(ctx, client, queueURL, msg, "")
		return
	}

	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		switch e := err.(type) {
		case workerproc.ErrMissingExternalID:
			fields := baseFields(msg, "")
			fields["body_len"] = e.Meta.BodyLen
			telemetry.Error("worker.ingest.missing_external_id", fields)
		default:
			fields := baseFields(msg, "")
			fields["body_len"] = meta.BodyLen
			fields["error"] = err.Error()
			telemetry.Error("worker.ingest.decode_failed", fields)
		}
		deleteMessage(ctx, client, queueURL, msg, "")
		return
	}

	telemetry.Info("worker.ingest.received", baseFields(msg, decoded.ExternalID))

	ctxWithParsed := workerproc.WithParsedMessage(ctx, decoded)
	if err := workerproc.HandleMessage(ctxWithParsed, sched, body); err != nil {
		fields := baseFields(msg, decoded.ExternalID)
		fields["error"] = err.Error()
		telemetry.Error("worker.ingest.failed", fields)
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.ExternalID) {
		telemetry.Info("worker.ingest.completed", baseFields(msg, decoded.ExternalID))
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, externalID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, externalID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.ingest.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, externalID)
		fields["error"] = err.Error()
		telemetry.Error("worker.ingest.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, externalID string) map[string]any {
	return map[string]any{
		"external_id":    externalID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
