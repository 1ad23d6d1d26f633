package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Processor drains the alerts queue and delivers each alert by email.
// Recipients are email addresses; the kind picks the template.
type Processor struct {
	server *asynq.Server
	mailer *Mailer
	log    zerolog.Logger
}

func NewProcessor(redisAddr string, mailer *Mailer, log zerolog.Logger) *Processor {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(opts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"alerts": 10,
		},
	})
	return &Processor{
		server: server,
		mailer: mailer,
		log:    log.With().Str("component", "alerts_processor").Logger(),
	}
}

// Start runs the queue server in a goroutine.
func (p *Processor) Start() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(taskAlert, p.handleAlert)
	go func() {
		if err := p.server.Run(mux); err != nil {
			p.log.Error().Err(err).Msg("alerts server stopped")
		}
	}()
}

func (p *Processor) Shutdown() {
	p.server.Shutdown()
}

func (p *Processor) handleAlert(_ context.Context, t *asynq.Task) error {
	var payload alertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	subject, body := render(payload.Kind, payload.Meta)
	if err := p.mailer.Send(payload.Recipient, subject, body); err != nil {
		p.log.Error().Err(err).Str("kind", payload.Kind).Msg("alert delivery failed")
		return err
	}
	p.log.Info().Str("kind", payload.Kind).Str("recipient", payload.Recipient).
		Msg("alert delivered")
	return nil
}

func render(kind string, meta map[string]string) (subject, body string) {
	switch kind {
	case KindWalletFunded:
		return "Wallet funded", fmt.Sprintf("Your wallet was credited with %s (ref %s).", meta["amount"], meta["reference"])
	case KindOrderCreated:
		return "New order", fmt.Sprintf("You have a new order for %s (%s).", meta["product"], meta["amount"])
	case KindOrderAccepted:
		return "Order accepted", fmt.Sprintf("The seller accepted your order %s.", meta["order_id"])
	case KindOrderDelivered:
		return "Order delivered", fmt.Sprintf("Order %s was marked delivered. Confirm receipt to release payment.", meta["order_id"])
	case KindOrderConfirmed:
		return "Payment released", fmt.Sprintf("Order %s is complete. %s was released to your wallet.", meta["order_id"], meta["amount"])
	case KindOrderCancelled:
		return "Order cancelled", fmt.Sprintf("Order %s was cancelled. %s", meta["order_id"], meta["reason"])
	case KindEscrowRefunded:
		return "Refund issued", fmt.Sprintf("%s was refunded to your wallet for order %s.", meta["amount"], meta["order_id"])
	case KindWithdrawalInitiated:
		return "Withdrawal processing", fmt.Sprintf("Your withdrawal of %s (fee %s) is processing. Ref %s.", meta["amount"], meta["fee"], meta["reference"])
	case KindWithdrawalCompleted:
		return "Withdrawal completed", fmt.Sprintf("Your withdrawal of %s has been paid out. Ref %s.", meta["amount"], meta["reference"])
	case KindWithdrawalFailed:
		return "Withdrawal failed", fmt.Sprintf("Your withdrawal %s failed and the funds were returned to your wallet. Reason: %s.", meta["reference"], meta["reason"])
	default:
		return "Notification", fmt.Sprintf("Activity on your account: %s.", kind)
	}
}
