package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"

	"telegram-stock-alert/internal/alert"
	"telegram-stock-alert/internal/types"
	"telegram-stock-alert/lib/helpers"
	"telegram-stock-alert/lib/translation"
)

// State is the cursor of an authoring conversation.
type State int

const (
	SelectType State = iota
	EnterTicker
	EnterPeriod
	EnterPrice
	EnterDirection
	EnterDate1
	ResolvePrice1
	EnterDate2
	ResolvePrice2
	EnterThreshold
)

// Callback payloads the authoring keyboards produce.
const (
	CallbackPrice            = "price"
	CallbackSMA              = "sma"
	CallbackCustomLine       = "custom_line"
	CallbackAbove            = "above"
	CallbackBelow            = "below"
	CallbackDefaultThreshold = "threshold_default"
	callbackPricePrefix      = "price_"
)

// Draft accumulates alert fields as the conversation advances.
type Draft struct {
	Kind        types.Kind
	Ticker      string
	Period      int
	TargetPrice float64
	Direction   types.Direction
	Date1       time.Time
	Price1      float64
	Date2       time.Time
	Price2      float64
	Threshold   float64
}

// Session is one user's in-progress alert draft. It lives only in memory;
// an abandoned session stays around until the user cancels or restarts.
type Session struct {
	UserID int64
	State  State
	Draft  Draft
}

// Input is one user turn: a typed message or an inline button press.
type Input struct {
	Text     string
	Callback string
}

// Reply is what the transport should send back, plus the created alert when
// the conversation reached its terminal state.
type Reply struct {
	Text    string
	Actions []alert.Action
	Created *types.Alert
	Done    bool
}

// DataSource resolves candles for anchor-date price suggestions.
type DataSource interface {
	FetchDaily(ctx context.Context, ticker string, start, end time.Time) ([]types.Candle, error)
}

// Store persists a finished draft.
type Store interface {
	InsertAlert(a *types.Alert) (int64, error)
}

// Manager owns all live authoring sessions, one per user.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	data   DataSource
	store  Store
	mirror *alert.Mirror
}

func NewManager(data DataSource, store Store, mirror *alert.Mirror) *Manager {
	return &Manager{
		sessions: make(map[int64]*Session),
		data:     data,
		store:    store,
		mirror:   mirror,
	}
}

// Start opens a fresh session for the user, replacing any stale one.
func (m *Manager) Start(userID int64) Reply {
	m.mu.Lock()
	m.sessions[userID] = &Session{UserID: userID, State: SelectType}
	m.mu.Unlock()

	return typePrompt()
}

// Active reports whether the user has a session in flight.
func (m *Manager) Active(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

// Cancel discards the user's session without persisting anything.
func (m *Manager) Cancel(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[userID]; !ok {
		return false
	}
	delete(m.sessions, userID)
	return true
}

// Handle advances the user's session with one input. Invalid input never
// moves the cursor: the user is re-prompted in place, however many times it
// takes.
func (m *Manager) Handle(ctx context.Context, userID int64, in Input) Reply {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	m.mu.Unlock()

	if !ok {
		return Reply{Text: translation.Translate("No alert in progress. Use /newalert to create one."), Done: true}
	}

	reply := m.transition(ctx, sess, in)
	log.Debugf("session transition for user %d: %s", userID, spew.Sdump(sess))

	if reply.Done {
		m.Cancel(userID)
	}
	return reply
}

func (m *Manager) transition(ctx context.Context, sess *Session, in Input) Reply {
	switch sess.State {
	case SelectType:
		return m.selectType(sess, in)
	case EnterTicker:
		return m.enterTicker(sess, in)
	case EnterPeriod:
		return m.enterPeriod(sess, in)
	case EnterPrice:
		return m.enterPrice(sess, in)
	case EnterDirection:
		return m.enterDirection(sess, in)
	case EnterDate1, EnterDate2:
		return m.enterDate(ctx, sess, in)
	case ResolvePrice1, ResolvePrice2:
		return m.resolvePrice(sess, in)
	case EnterThreshold:
		return m.enterThreshold(sess, in)
	}
	return typePrompt()
}

func (m *Manager) selectType(sess *Session, in Input) Reply {
	switch in.Callback {
	case CallbackPrice:
		sess.Draft.Kind = types.KindPrice
	case CallbackSMA:
		sess.Draft.Kind = types.KindSMA
	case CallbackCustomLine:
		sess.Draft.Kind = types.KindCustomLine
	default:
		return typePrompt()
	}

	sess.State = EnterTicker
	return Reply{Text: translation.Translate("✍️ Please enter the stock ticker (e.g., AAPL):")}
}

func (m *Manager) enterTicker(sess *Session, in Input) Reply {
	ticker := strings.ToUpper(strings.TrimSpace(in.Text))
	if ticker == "" {
		return Reply{Text: translation.Translate("✍️ Please enter the stock ticker (e.g., AAPL):")}
	}
	sess.Draft.Ticker = ticker

	switch sess.Draft.Kind {
	case types.KindSMA:
		sess.State = EnterPeriod
		return Reply{Text: translation.Translate("✍️ Please enter the SMA period (e.g., 20):")}
	case types.KindCustomLine:
		sess.State = EnterDate1
		return Reply{Text: translation.Translate("✍️ Please enter the first date (YYYY-MM-DD):")}
	default:
		sess.State = EnterPrice
		return Reply{Text: translation.Translate("✍️ Please enter the target price:")}
	}
}

func (m *Manager) enterPeriod(sess *Session, in Input) Reply {
	period, err := strconv.Atoi(strings.TrimSpace(in.Text))
	if err != nil || period <= 0 {
		return Reply{Text: translation.Translate("❌ Invalid input. Please enter a positive whole number.")}
	}

	sess.Draft.Period = period
	sess.State = EnterDirection
	return directionPrompt()
}

func (m *Manager) enterPrice(sess *Session, in Input) Reply {
	price, err := strconv.ParseFloat(strings.TrimSpace(in.Text), 64)
	if err != nil {
		return Reply{Text: translation.Translate("❌ Invalid input. Please enter a numeric price.")}
	}

	sess.Draft.TargetPrice = price
	sess.State = EnterDirection
	return directionPrompt()
}

func (m *Manager) enterDirection(sess *Session, in Input) Reply {
	switch in.Callback {
	case CallbackAbove:
		sess.Draft.Direction = types.Above
	case CallbackBelow:
		sess.Draft.Direction = types.Below
	default:
		return directionPrompt()
	}

	var spec types.Spec
	if sess.Draft.Kind == types.KindSMA {
		spec = types.SMASpec{Period: sess.Draft.Period, Direction: sess.Draft.Direction}
	} else {
		spec = types.PriceSpec{Target: sess.Draft.TargetPrice, Direction: sess.Draft.Direction}
	}

	return m.finish(sess, spec)
}

func (m *Manager) enterDate(ctx context.Context, sess *Session, in Input) Reply {
	date, err := helpers.ParseDate(in.Text)
	if err != nil {
		return Reply{Text: translation.Translate("❌ Invalid date format. Please use YYYY-MM-DD:")}
	}

	if sess.State == EnterDate1 {
		sess.Draft.Date1 = date
		sess.State = ResolvePrice1
	} else {
		sess.Draft.Date2 = date
		sess.State = ResolvePrice2
	}

	candles, err := m.data.FetchDaily(ctx, sess.Draft.Ticker, date, date)
	if err != nil {
		log.Errorf("anchor price lookup for %s on %s failed: %v", sess.Draft.Ticker, helpers.FormatDate(date), err)
	}
	if len(candles) == 0 {
		return Reply{Text: translation.Translate(
			"No data found for %s on %s. Please type the price for this date manually:",
			sess.Draft.Ticker, helpers.FormatDate(date))}
	}

	high, low := candles[0].High, candles[0].Low
	return Reply{
		Text: translation.Translate("Please choose the price for this date, or type your own:"),
		Actions: []alert.Action{
			{Label: fmt.Sprintf("⬆️ High: %.2f", high), Data: fmt.Sprintf("%s%f", callbackPricePrefix, high)},
			{Label: fmt.Sprintf("⬇️ Low: %.2f", low), Data: fmt.Sprintf("%s%f", callbackPricePrefix, low)},
		},
	}
}

func (m *Manager) resolvePrice(sess *Session, in Input) Reply {
	var raw string
	if strings.HasPrefix(in.Callback, callbackPricePrefix) {
		raw = strings.TrimPrefix(in.Callback, callbackPricePrefix)
	} else {
		raw = strings.TrimSpace(in.Text)
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Reply{Text: translation.Translate("❌ Invalid input. Please enter a numeric price.")}
	}

	if sess.State == ResolvePrice1 {
		sess.Draft.Price1 = price
		sess.State = EnterDate2
		return Reply{Text: translation.Translate("✍️ Please enter the second date (YYYY-MM-DD):")}
	}

	sess.Draft.Price2 = price
	sess.State = EnterThreshold
	return Reply{
		Text: translation.Translate("✍️ Finally, please enter a threshold value (e.g., 0.5):"),
		Actions: []alert.Action{
			{Label: fmt.Sprintf("Use default (%.1f)", types.DefaultThreshold), Data: CallbackDefaultThreshold},
		},
	}
}

func (m *Manager) enterThreshold(sess *Session, in Input) Reply {
	threshold := types.DefaultThreshold
	if in.Callback != CallbackDefaultThreshold {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(in.Text), 64)
		if err != nil || parsed < 0 {
			return Reply{Text: translation.Translate("❌ Invalid input. Please enter a non-negative numeric threshold.")}
		}
		threshold = parsed
	}
	sess.Draft.Threshold = threshold

	return m.finish(sess, types.CustomLineSpec{
		Date1:     sess.Draft.Date1,
		Price1:    sess.Draft.Price1,
		Date2:     sess.Draft.Date2,
		Price2:    sess.Draft.Price2,
		Threshold: threshold,
	})
}

// finish persists the assembled alert and mirrors it. A store failure keeps
// the session alive so the user's last answer can be retried.
func (m *Manager) finish(sess *Session, spec types.Spec) Reply {
	a := &types.Alert{
		UserID:    sess.UserID,
		Ticker:    sess.Draft.Ticker,
		Spec:      spec,
		CreatedAt: time.Now(),
	}

	id, err := m.store.InsertAlert(a)
	if err != nil {
		log.Errorf("failed to save alert for user %d: %v", sess.UserID, err)
		return Reply{Text: translation.Translate("❌ Failed to save alert. Please try again.")}
	}
	a.ID = id
	m.mirror.Add(*a)
	AlertsCreated.WithLabelValues(string(spec.Kind())).Inc()

	return Reply{
		Text: translation.Translate("✅ %s alert set for %s!", kindLabel(spec.Kind()), sess.Draft.Ticker),
		Actions: []alert.Action{
			{Label: "➕ Add Another", Data: "new_alert"},
			{Label: "🏠 Main Menu", Data: "main_menu"},
		},
		Created: a,
		Done:    true,
	}
}

func typePrompt() Reply {
	return Reply{
		Text: translation.Translate("Please choose the type of alert:"),
		Actions: []alert.Action{
			{Label: "💰 Price Alert", Data: CallbackPrice},
			{Label: "📈 SMA Alert", Data: CallbackSMA},
			{Label: "📊 Custom Line Alert", Data: CallbackCustomLine},
			{Label: "❌ Cancel", Data: "main_menu"},
		},
	}
}

func directionPrompt() Reply {
	return Reply{
		Text: translation.Translate("Choose direction:"),
		Actions: []alert.Action{
			{Label: "⬆️ Above", Data: CallbackAbove},
			{Label: "⬇️ Below", Data: CallbackBelow},
		},
	}
}

func kindLabel(kind types.Kind) string {
	switch kind {
	case types.KindSMA:
		return "SMA"
	case types.KindCustomLine:
		return "Custom Line"
	default:
		return "Price"
	}
}
