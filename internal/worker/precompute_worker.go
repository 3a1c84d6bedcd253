package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"upsell-recommender/internal/app"
	"upsell-recommender/internal/model"
)

// PrecomputeWorker consumes the job queue and runs one precompute job at a time.
type PrecomputeWorker struct {
	conn      *amqp.Connection
	runner    app.JobRunner
	queueName string
	log       zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPrecomputeWorker(conn *amqp.Connection, runner app.JobRunner, queueName string, log zerolog.Logger) *PrecomputeWorker {
	return &PrecomputeWorker{
		conn:      conn,
		runner:    runner,
		queueName: queueName,
		log:       log,
	}
}

func (w *PrecomputeWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn().Str("queue", w.queueName).Msg("delivery channel closed, worker stopping")
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	w.log.Info().Str("queue", w.queueName).Msg("precompute worker started")
	return nil
}

func (w *PrecomputeWorker) handle(ctx context.Context, d amqp.Delivery) {
	job, err := DecodeJob(d.Body)
	if err != nil {
		w.log.Error().Err(err).Str("message_id", d.MessageId).Msg("worker decode job failed")
		_ = d.Nack(false, false)
		return
	}

	// Failed runs are recorded on the tracker; the job is not redelivered.
	if err := w.runner.Run(ctx, job); err != nil {
		event := w.log.Error()
		if errors.Is(err, app.ErrPrecomputeInProgress) {
			event = w.log.Warn()
		}
		event.Err(err).Str("shop_id", job.ShopID).Str("job_id", job.JobID).Msg("precompute job did not complete")
	}
	_ = d.Ack(false)
}

// DecodeJob parses a queued job and rejects payloads without a shop.
func DecodeJob(body []byte) (model.PrecomputeJob, error) {
	var job model.PrecomputeJob
	if err := json.Unmarshal(body, &job); err != nil {
		return model.PrecomputeJob{}, fmt.Errorf("unmarshal precompute job failed: %w", err)
	}
	if job.ShopID == "" {
		return model.PrecomputeJob{}, fmt.Errorf("precompute job %q has no shop id", job.JobID)
	}
	return job, nil
}

func (w *PrecomputeWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
