// Package workerproc parses queue payloads and drives them through the
// scheduler's listing-ingestion hook, the same error taxonomy the teacher
// used for its own SQS-fed job queue: distinguish a malformed message (never
// retryable, delete it) from a processing failure (retryable, leave it for
// SQS to redeliver).
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"ronin/internal/queue"
	"ronin/internal/scheduler"
	"ronin/internal/store"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingExternalID indicates a message missing the listing's external id.
type ErrMissingExternalID struct {
	Meta MessageMeta
}

func (e ErrMissingExternalID) Error() string { return "missing listing external id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	ExternalID string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "ingest listing"
	}
	return "ingest listing: " + e.Err.Error()
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.ExternalID) == "" {
		return msg, meta, ErrMissingExternalID{Meta: meta}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and ingests a scraped-listing payload
// through the scheduler's classify-and-insert path.
func HandleMessage(ctx context.Context, sched *scheduler.Scheduler, body string) error {
	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	if strings.TrimSpace(msg.ExternalID) == "" {
		return ErrMissingExternalID{Meta: ComputeMeta(body)}
	}

	listing := store.Listing{
		ExternalID:    msg.ExternalID,
		Title:         msg.Title,
		HiringEntity:  msg.HiringEntity,
		FullText:      msg.FullText,
		SearchKeyword: msg.SearchKeyword,
		FirstSeenAt:   parseTimeOrNow(msg.FirstSeenAt),
	}

	if _, err := sched.IngestListing(ctx, listing); err != nil {
		return ErrProcess{ExternalID: msg.ExternalID, Err: err}
	}
	return nil
}

func parseTimeOrNow(raw string) time.Time {
	if strings.TrimSpace(raw) == "" {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Now()
	}
	return t
}
