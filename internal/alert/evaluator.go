package alert

import (
	"context"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"telegram-stock-alert/internal/types"
	"telegram-stock-alert/lib/helpers"
)

// Gateway is the slice of the market data client the evaluator needs.
type Gateway interface {
	FetchBatch(ctx context.Context, tickers []string) (map[string]float64, error)
	SMA(ctx context.Context, ticker string, period int) (float64, bool)
}

// Action is an inline button attached to a notification.
type Action struct {
	Label string
	Data  string
}

// Notifier delivers trigger notifications. Implemented by the telegram bot.
type Notifier interface {
	SendText(userID int64, text string) error
	SendChart(userID int64, png []byte, caption string) error
	SendTextWithActions(userID int64, text string, actions []Action) error
}

// Store is the persistence slice the evaluator mutates on trigger.
type Store interface {
	DeleteAlert(id int64) error
}

// Charter renders a supporting chart for a triggered alert. May be nil.
type Charter interface {
	RenderAlert(ctx context.Context, a types.Alert, current float64) ([]byte, error)
}

// Evaluator runs one batched pass over the mirrored alerts.
type Evaluator struct {
	gateway  Gateway
	notifier Notifier
	store    Store
	mirror   *Mirror
	charts   Charter
	now      func() time.Time
}

func NewEvaluator(gateway Gateway, notifier Notifier, store Store, mirror *Mirror, charts Charter) *Evaluator {
	return &Evaluator{
		gateway:  gateway,
		notifier: notifier,
		store:    store,
		mirror:   mirror,
		charts:   charts,
		now:      time.Now,
	}
}

// CheckAlerts gathers the distinct tickers across all mirrored alerts,
// performs one batched quote fetch and evaluates every alert against it.
// A fetch failure skips the whole tick; a ticker missing from the batch
// skips only the alerts watching it.
func (e *Evaluator) CheckAlerts(ctx context.Context) {
	tickers := e.mirror.Tickers()
	if len(tickers) == 0 {
		log.Debug("no active alerts to check")
		return
	}

	ticksTotal.Inc()
	log.Debugf("checking alerts across %d tickers", len(tickers))

	closes, err := e.gateway.FetchBatch(ctx, tickers)
	if err != nil {
		fetchErrorsTotal.Inc()
		log.Errorf("batched quote fetch failed, skipping tick: %v", err)
		return
	}

	for userID, alerts := range e.mirror.Snapshot() {
		for _, a := range alerts {
			lastClose, ok := closes[a.Ticker]
			if !ok {
				log.Warnf("no quote for %s in batch result, skipping alert %d", a.Ticker, a.ID)
				continue
			}
			e.evaluate(ctx, userID, a, lastClose)
		}
	}
}

func (e *Evaluator) evaluate(ctx context.Context, userID int64, a types.Alert, lastClose float64) {
	switch spec := a.Spec.(type) {
	case types.PriceSpec:
		if !crossed(lastClose, spec.Target, spec.Direction) {
			return
		}
		triggeredTotal.WithLabelValues(string(types.KindPrice)).Inc()
		e.notifyPrice(ctx, userID, a, spec, lastClose)
		// Removal is deferred to the user's keep/remove answer.

	case types.SMASpec:
		sma, ok := e.gateway.SMA(ctx, a.Ticker, spec.Period)
		if !ok {
			return
		}
		if !crossed(lastClose, sma, spec.Direction) {
			return
		}
		triggeredTotal.WithLabelValues(string(types.KindSMA)).Inc()
		e.notifySMA(ctx, userID, a, spec, lastClose, sma)
		e.remove(userID, a)

	case types.CustomLineSpec:
		projected := ProjectAt(spec, e.now())
		if math.Abs(lastClose-projected) > spec.Threshold {
			return
		}
		triggeredTotal.WithLabelValues(string(types.KindCustomLine)).Inc()
		e.notifyCustomLine(ctx, userID, a, spec, lastClose, projected)
		e.remove(userID, a)
	}
}

// remove is a dual-write: store first, then mirror. The two are not
// transactional; drift from a crash in between is healed by the next full
// reload from the store.
func (e *Evaluator) remove(userID int64, a types.Alert) {
	if err := e.store.DeleteAlert(a.ID); err != nil {
		log.Errorf("failed to delete triggered alert %d from store: %v", a.ID, err)
	}
	e.mirror.Remove(userID, a.ID)
}

func (e *Evaluator) notifyPrice(ctx context.Context, userID int64, a types.Alert, spec types.PriceSpec, lastClose float64) {
	text := fmt.Sprintf(
		"💰 *Price Alert Triggered\\!*\n\n*%s*\nCurrent Price: *%s*\nTarget Price: *%s*\nDirection: *%s*\n\nDo you want to remove this alert?",
		helpers.EscapeMarkdownV2(a.Ticker),
		helpers.FormatPriceUS(lastClose, true),
		helpers.FormatPriceUS(spec.Target, true),
		spec.Direction,
	)
	actions := []Action{
		{Label: "✅ Remove Alert", Data: fmt.Sprintf("remove_%d", a.ID)},
		{Label: "❌ Keep Alert", Data: fmt.Sprintf("keep_%d", a.ID)},
	}
	if err := e.notifier.SendTextWithActions(userID, text, actions); err != nil {
		log.Errorf("failed to send price alert notification: %v", err)
		return
	}
	e.sendChart(ctx, userID, a, lastClose)
}

func (e *Evaluator) notifySMA(ctx context.Context, userID int64, a types.Alert, spec types.SMASpec, lastClose, sma float64) {
	text := fmt.Sprintf(
		"📈 *SMA Alert Triggered\\!*\n\n*%s*\nCurrent Price: *%s*\nSMA\\(%d\\): *%s*\nDirection: *%s*",
		helpers.EscapeMarkdownV2(a.Ticker),
		helpers.FormatPriceUS(lastClose, true),
		spec.Period,
		helpers.FormatPriceUS(sma, true),
		spec.Direction,
	)
	if err := e.notifier.SendText(userID, text); err != nil {
		log.Errorf("failed to send SMA alert notification: %v", err)
		return
	}
	e.sendChart(ctx, userID, a, lastClose)
}

func (e *Evaluator) notifyCustomLine(ctx context.Context, userID int64, a types.Alert, spec types.CustomLineSpec, lastClose, projected float64) {
	text := fmt.Sprintf(
		"📊 *Custom Line Alert Triggered\\!*\n\n*%s*\nCurrent Price: *%s*\nProjected Price: *%s*\n\\(Threshold: ±%s\\)",
		helpers.EscapeMarkdownV2(a.Ticker),
		helpers.FormatPriceUS(lastClose, true),
		helpers.FormatPriceUS(projected, true),
		helpers.FormatPriceUS(spec.Threshold, true),
	)
	if err := e.notifier.SendText(userID, text); err != nil {
		log.Errorf("failed to send custom line alert notification: %v", err)
		return
	}
	e.sendChart(ctx, userID, a, lastClose)
}

// sendChart is best effort; a render or delivery failure never blocks the
// trigger itself.
func (e *Evaluator) sendChart(ctx context.Context, userID int64, a types.Alert, lastClose float64) {
	if e.charts == nil {
		return
	}
	png, err := e.charts.RenderAlert(ctx, a, lastClose)
	if err != nil {
		log.Errorf("failed to render chart for %s alert %d: %v", a.Ticker, a.ID, err)
		return
	}
	caption := fmt.Sprintf("Chart for your %s alert.", a.Ticker)
	if err := e.notifier.SendChart(userID, png, caption); err != nil {
		log.Errorf("failed to send chart for alert %d: %v", a.ID, err)
	}
}

func crossed(lastClose, reference float64, direction types.Direction) bool {
	switch direction {
	case types.Above:
		return lastClose > reference
	case types.Below:
		return lastClose < reference
	}
	return false
}
