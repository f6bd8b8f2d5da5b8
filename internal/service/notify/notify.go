// Package notify delivers closed-trade notifications to an operator webhook.
// Trades are enqueued on a Redis job queue so a slow or failing webhook
// never holds up the trade recorder; the queue retries failed deliveries.
package notify

import (
	"context"
	"fmt"
	"time"

	"StatArb/internal/domain/models"
	"StatArb/internal/domain/service"
	xhttp "StatArb/pkg/http"
	"StatArb/pkg/logger"
	"StatArb/pkg/queue"
)

const (
	TypeTradeClosed = "trade.closed"
	TypeStopLoss    = "trade.stop_loss"
)

// Event is the webhook body.
type Event struct {
	Type    string        `json:"type"`
	Text    string        `json:"text"`
	Trade   *models.Trade `json:"trade"`
	SentAt  time.Time     `json:"sent_at"`
	Service string        `json:"service"`
}

// QueueNotifier implements service.Notifier by enqueueing jobs.
type QueueNotifier struct {
	q queue.QueueService
}

func NewQueueNotifier(q queue.QueueService) *QueueNotifier {
	return &QueueNotifier{q: q}
}

// NotifyTrade enqueues t; stop-loss exits get their own type so operators
// can route them separately.
func (n *QueueNotifier) NotifyTrade(ctx context.Context, t *models.Trade) error {
	typ := TypeTradeClosed
	if t.ExitReason == models.ExitStopLoss {
		typ = TypeStopLoss
	}
	if err := n.q.PublishMessage(ctx, typ, t); err != nil {
		return fmt.Errorf("enqueue %s %s: %w", typ, t.ID, err)
	}
	return nil
}

var _ service.Notifier = (*QueueNotifier)(nil)

// WebhookJob posts one trade event. The same job type serves both message
// types; register one instance per type.
type WebhookJob struct {
	typ    string
	url    string
	client *xhttp.Client
	log    *logger.Logger
	now    func() time.Time
}

func NewWebhookJob(typ, url string, client *xhttp.Client, log *logger.Logger) *WebhookJob {
	return &WebhookJob{typ: typ, url: url, client: client, log: log, now: time.Now}
}

// Jobs returns one webhook job per notification type.
func Jobs(url string, client *xhttp.Client, log *logger.Logger) []queue.Job {
	return []queue.Job{
		NewWebhookJob(TypeTradeClosed, url, client, log),
		NewWebhookJob(TypeStopLoss, url, client, log),
	}
}

func (j *WebhookJob) Name() string { return "webhook:" + j.typ }

func (j *WebhookJob) Type() string { return j.typ }

func (j *WebhookJob) Handle(ctx context.Context, payload interface{}) error {
	t, err := queue.ParsePayload[models.Trade](payload)
	if err != nil {
		// a malformed payload will never succeed
		j.log.Error("drop notification", logger.String("type", j.typ), logger.Error(err))
		return nil
	}
	ev := Event{
		Type:    j.typ,
		Text:    Summary(t),
		Trade:   t,
		SentAt:  j.now().UTC(),
		Service: "statarb",
	}
	if err := j.client.PostJSON(ctx, j.url, ev, nil); err != nil {
		return fmt.Errorf("webhook %s: %w", t.ID, err)
	}
	j.log.Debug("notification sent", logger.String("trade_id", t.ID), logger.Symbol(t.Symbol))
	return nil
}

// Summary is the one-line human text of a trade.
func Summary(t *models.Trade) string {
	label := "closed"
	if t.ExitReason == models.ExitStopLoss {
		label = "STOP-LOSS"
	}
	return fmt.Sprintf("%s %s %s: buy %s @ %.8g, sell %s @ %.8g, amount %.8g, pnl %+.4f",
		t.Symbol, t.Side, label, t.BuyExchange, t.BuyPrice, t.SellExchange, t.SellPrice, t.Amount, t.PnL)
}
