package main

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"ronin/internal/archetype"
	"ronin/internal/centroid"
	"ronin/internal/embedding"
	"ronin/internal/outcome"
	"ronin/internal/queue"
	"ronin/internal/rewrite"
	"ronin/internal/scheduler"
	"ronin/internal/store"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	embedder := embedding.NewHashFallback(embedding.DefaultDim)
	classifier, err := archetype.New(ctx, embedder)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	return scheduler.New(repo, classifier, nil, outcome.NewProcessor(repo), centroid.NewEngine(repo, embedder), rewrite.NewTrigger(repo), nil)
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	sched := newTestScheduler(t)
	msgBody, _ := queue.EncodeMessage(queue.Message{ExternalID: "job-1", Title: "Senior Go Engineer", FullText: "We need a Go engineer to build a platform with kubernetes."})
	msg := sqstypes.Message{
		MessageId:     aws.String("m1"),
		ReceiptHandle: aws.String("r1"),
		Body:          aws.String(string(msgBody)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}

	handleMessage(context.Background(), sched, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	if _, err := sched.Store.GetListingByExternalID(context.Background(), "job-1"); err != nil {
		t.Fatalf("expected listing to be ingested: %v", err)
	}
}

func TestWorkerDeletesOnMissingExternalID(t *testing.T) {
	client := &fakeSQS{}
	sched := newTestScheduler(t)
	msgBody, _ := queue.EncodeMessage(queue.Message{Title: "Senior Go Engineer"})
	msg := sqstypes.Message{
		MessageId:     aws.String("m2"),
		ReceiptHandle: aws.String("r2"),
		Body:          aws.String(string(msgBody)),
	}

	handleMessage(context.Background(), sched, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	sched := newTestScheduler(t)
	msg := sqstypes.Message{
		MessageId:     aws.String("m3"),
		ReceiptHandle: aws.String("r3"),
		Body:          aws.String("{bad-json"),
	}

	handleMessage(context.Background(), sched, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}
