package rabbitmq

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"upsell-recommender/internal/model"
)

// JobPublisher puts precompute jobs on the durable job queue.
type JobPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewJobPublisher(conn *amqp.Connection, queueName string) *JobPublisher {
	return &JobPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

// Dispatch publishes job as a persistent message. The job id doubles as the
// message id.
func (p *JobPublisher) Dispatch(ctx context.Context, job model.PrecomputeJob) error {
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("publish precompute job failed: %w", amqp.ErrClosed)
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal precompute job failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    job.JobID,
			Timestamp:    job.RequestedAt,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish precompute job failed: %w", err)
	}
	return nil
}
