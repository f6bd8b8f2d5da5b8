package execution

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"StatArb/internal/domain/models"
)

// minAmount is the smallest order the simulator will fill.
const minAmount = 1e-9

type Config struct {
	TradeAmount     float64
	ExitZThreshold  float64
	StopLossAmount  float64
	StartingBalance float64
	// MaxPosition caps the amount of one position. Zero means no cap.
	MaxPosition float64

	SlippageAllowance float64
	DepthImpact       float64
	TransferCost      float64

	Cooldown       time.Duration
	MinSpreadRatio float64
	MaxDailyLoss   float64

	Fees FeeSchedule
}

// Account is the read side of the ledger the decider consults for risk
// limits and fee tiers.
type Account interface {
	DailyPnL(now time.Time) float64
	ExchangeVolume(exchange string) float64
}

type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "open"
	case ActionClose:
		return "close"
	}
	return "none"
}

// Skip reasons reported with ActionNone.
const (
	ReasonNoSignal      = "no_signal"
	ReasonBelowThresh   = "below_threshold"
	ReasonHolding       = "holding"
	ReasonCooldown      = "cooldown"
	ReasonDailyLossHalt = "daily_loss_halt"
	ReasonNoEdge        = "no_edge"
	ReasonSpreadRatio   = "spread_ratio"
	ReasonRejected      = "rejected"
)

// Decision is the outcome of one cycle. Err is set only for rejected fills
// and always wraps models.ErrExecutionRejected.
type Decision struct {
	Action Action
	Trade  *models.Trade
	Edge   Edge
	Reason string
	Err    error
}

// Decider is the FLAT/OPEN state machine of one symbol. It is owned by that
// symbol's task and is not safe for concurrent use.
type Decider struct {
	symbol  string
	cfg     Config
	account Account
	newID   func() string

	pos      models.Position
	balance  float64
	lastZ    float64
	lastExit time.Time
}

func NewDecider(symbol string, cfg Config, account Account) *Decider {
	return &Decider{
		symbol:  symbol,
		cfg:     cfg,
		account: account,
		newID:   uuid.NewString,
		pos:     models.Position{State: models.PositionFlat},
		balance: cfg.StartingBalance,
	}
}

func (d *Decider) Position() models.Position { return d.pos }

func (d *Decider) Balance() float64 { return d.balance }

// OnCycle evaluates one processing cycle. sig is nil on stale or warming-up
// cycles; only the stop-loss runs then. The stop-loss is checked before any
// signal logic.
func (d *Decider) OnCycle(snap models.MarketSnapshot, sig *models.Signal) Decision {
	if sig != nil {
		d.lastZ = sig.RawZScore
	}

	if d.pos.IsOpen() {
		sellQ, ok := snap.Leg(d.pos.SellExchange)
		if ok && sellQ.Bid > 0 {
			if loss := -d.markToMarket(sellQ.Bid); loss > d.cfg.StopLossAmount {
				return d.close(models.ExitStopLoss, sellQ.Bid, snap.Timestamp)
			}
		}
		if sig != nil && ok && sellQ.Bid > 0 && math.Abs(sig.RawZScore) <= d.cfg.ExitZThreshold {
			return d.close(models.ExitReversion, sellQ.Bid, snap.Timestamp)
		}
		return Decision{Reason: ReasonHolding}
	}

	if sig == nil {
		return Decision{Reason: ReasonNoSignal}
	}
	if !sig.Triggered() || sig.Side == models.SideNone {
		return Decision{Reason: ReasonBelowThresh}
	}
	return d.enter(snap, sig)
}

func (d *Decider) enter(snap models.MarketSnapshot, sig *models.Signal) Decision {
	now := snap.Timestamp
	if d.cfg.Cooldown > 0 && !d.lastExit.IsZero() && now.Sub(d.lastExit) < d.cfg.Cooldown {
		return Decision{Reason: ReasonCooldown}
	}
	if d.cfg.MaxDailyLoss > 0 && d.account != nil && d.account.DailyPnL(now) <= -d.cfg.MaxDailyLoss {
		return Decision{Reason: ReasonDailyLossHalt}
	}

	buyEx, sellEx := legs(snap, sig.Side)
	buyQ, okB := snap.Leg(buyEx)
	sellQ, okS := snap.Leg(sellEx)
	if !okB || !okS || buyQ.Ask <= 0 || sellQ.Bid <= 0 {
		return d.reject(fmt.Errorf("%s: no valid top of book: %w", d.symbol, models.ErrExecutionRejected))
	}

	amount := d.cfg.TradeAmount
	if d.cfg.MaxPosition > 0 {
		amount = math.Min(amount, d.cfg.MaxPosition)
	}
	amount = math.Min(amount, d.balance/buyQ.Ask)
	if amount < minAmount {
		return d.reject(fmt.Errorf("%s: balance %.4f cannot fund an order: %w", d.symbol, d.balance, models.ErrExecutionRejected))
	}

	edge, err := d.estimateEdge(snap, buyQ, sellQ, amount)
	if err != nil {
		return d.reject(fmt.Errorf("%s: %w", d.symbol, err))
	}
	if edge.Net <= 0 {
		return Decision{Reason: ReasonNoEdge, Edge: edge}
	}
	if d.cfg.MinSpreadRatio > 0 && edge.Gross < d.cfg.MinSpreadRatio*snap.MidPrice {
		return Decision{Reason: ReasonSpreadRatio, Edge: edge}
	}

	buyFee := d.cfg.Fees.Taker(buyEx, d.volume(buyEx)) * buyQ.Ask * amount
	entryFees := buyFee + (edge.Slippage+edge.Transfer)*amount

	d.pos = models.Position{
		State:        models.PositionOpen,
		Side:         sig.Side,
		BuyExchange:  buyEx,
		SellExchange: sellEx,
		BuyPrice:     buyQ.Ask,
		EntrySellBid: sellQ.Bid,
		EntryZScore:  sig.RawZScore,
		Amount:       amount,
		EntryFees:    entryFees,
		OpenedAt:     now,
	}
	d.balance -= buyQ.Ask*amount + entryFees
	return Decision{Action: ActionOpen, Edge: edge}
}

// markToMarket is the PnL of closing now at sellBid, net of all fees.
func (d *Decider) markToMarket(sellBid float64) float64 {
	exitFee := d.cfg.Fees.Taker(d.pos.SellExchange, d.volume(d.pos.SellExchange)) * sellBid * d.pos.Amount
	return (sellBid-d.pos.BuyPrice)*d.pos.Amount - d.pos.EntryFees - exitFee
}

func (d *Decider) close(reason models.ExitReason, sellBid float64, now time.Time) Decision {
	p := d.pos
	exitFee := d.cfg.Fees.Taker(p.SellExchange, d.volume(p.SellExchange)) * sellBid * p.Amount
	fees := p.EntryFees + exitFee

	t := &models.Trade{
		ID:           d.newID(),
		Timestamp:    now,
		OpenedAt:     p.OpenedAt,
		Symbol:       d.symbol,
		Side:         p.Side,
		BuyExchange:  p.BuyExchange,
		BuyPrice:     p.BuyPrice,
		SellExchange: p.SellExchange,
		SellPrice:    sellBid,
		Amount:       p.Amount,
		Fees:         fees,
		PnL:          (sellBid-p.BuyPrice)*p.Amount - fees,
		EntryZScore:  p.EntryZScore,
		ExitZScore:   d.lastZ,
		ExitReason:   reason,
	}

	d.balance += sellBid*p.Amount - exitFee
	d.pos = models.Position{State: models.PositionFlat}
	d.lastExit = now
	return Decision{Action: ActionClose, Trade: t}
}

func (d *Decider) reject(err error) Decision {
	return Decision{Reason: ReasonRejected, Err: err}
}
