// Package queue publishes records that could not be persisted to an SQS
// dead-letter queue so they can be inspected and replayed.
package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"hazardwatch/internal/types"
)

// Encoding is the value of the "encoding" message attribute on every body.
const Encoding = "zstd+base64"

// Dead-letter kinds.
const (
	KindAlert    = "alert"
	KindDelivery = "delivery"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// DeadLetter is the envelope written to the queue.
type DeadLetter struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Reason   string          `json:"reason"`
	FailedAt time.Time       `json:"failed_at"`
	Payload  json.RawMessage `json:"payload"`
}

// DeadLetterPublisher sends compressed DeadLetter envelopes to SQS. With an
// empty queue URL it only logs, so callers never need a nil check.
type DeadLetterPublisher struct {
	client   SQSSender
	queueURL string
	encoder  *zstd.Encoder
	logger   *slog.Logger
}

func NewDeadLetterPublisher(client SQSSender, queueURL string, logger *slog.Logger) (*DeadLetterPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("queue: create zstd encoder: %w", err)
	}
	return &DeadLetterPublisher{
		client:   client,
		queueURL: queueURL,
		encoder:  enc,
		logger:   logger,
	}, nil
}

// Enabled reports whether a queue is configured.
func (p *DeadLetterPublisher) Enabled() bool {
	return p.queueURL != "" && p.client != nil
}

// Publish wraps payload with the failure cause and sends it.
func (p *DeadLetterPublisher) Publish(ctx context.Context, kind string, payload any, cause error) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal dead letter payload: %w", err)
	}

	dl := DeadLetter{
		ID:       uuid.NewString(),
		Kind:     kind,
		FailedAt: time.Now().UTC(),
		Payload:  raw,
	}
	if cause != nil {
		dl.Reason = cause.Error()
	}

	if !p.Enabled() {
		p.logger.WarnContext(ctx, "dead letter queue not configured, dropping record",
			"kind", kind,
			"dead_letter_id", dl.ID,
			"reason", dl.Reason,
		)
		return nil
	}

	body, err := p.encode(dl)
	if err != nil {
		return err
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(body),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(kind),
			},
			"encoding": {
				DataType:    aws.String("String"),
				StringValue: aws.String(Encoding),
			},
		},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDeadLetter,
			fmt.Sprintf("failed to send dead letter to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "dead letter published",
		"kind", kind,
		"dead_letter_id", dl.ID,
		"bytes", len(body),
	)
	return nil
}

func (p *DeadLetterPublisher) encode(dl DeadLetter) (string, error) {
	data, err := json.Marshal(dl)
	if err != nil {
		return "", fmt.Errorf("queue: marshal dead letter: %w", err)
	}
	compressed := p.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	return base64.StdEncoding.EncodeToString(compressed), nil
}

// Decode reverses the body encoding used by Publish.
func Decode(body string) (*DeadLetter, error) {
	compressed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("queue: decode base64: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("queue: create zstd decoder: %w", err)
	}
	defer dec.Close()

	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: decompress: %w", err)
	}
	var dl DeadLetter
	if err := json.Unmarshal(data, &dl); err != nil {
		return nil, fmt.Errorf("queue: unmarshal dead letter: %w", err)
	}
	return &dl, nil
}
