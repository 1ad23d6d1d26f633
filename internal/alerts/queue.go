package alerts

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const taskAlert = "alert:send"

type alertPayload struct {
	Recipient string            `json:"recipient"`
	Kind      string            `json:"kind"`
	Meta      map[string]string `json:"meta,omitempty"`
	QueuedAt  time.Time         `json:"queued_at"`
}

// Queue pushes alerts onto Redis via asynq. It satisfies Notifier so
// services never see the queue machinery.
type Queue struct {
	client *asynq.Client
	log    zerolog.Logger
}

func NewQueue(redisAddr string, log zerolog.Logger) *Queue {
	return &Queue{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		log:    log.With().Str("component", "alerts").Logger(),
	}
}

func (q *Queue) Notify(recipient, kind string, meta map[string]string) error {
	payload := alertPayload{
		Recipient: recipient,
		Kind:      kind,
		Meta:      meta,
		QueuedAt:  time.Now().UTC(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = q.client.Enqueue(asynq.NewTask(taskAlert, b), asynq.Queue("alerts"))
	if err != nil {
		q.log.Error().Err(err).Str("kind", kind).Msg("enqueue alert failed")
		return err
	}
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
