package types

import "time"

// Kind discriminates the alert variants.
type Kind string

const (
	KindPrice      Kind = "price"
	KindSMA        Kind = "sma"
	KindCustomLine Kind = "custom_line"
)

// Direction of a price/SMA crossing.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// DefaultThreshold is applied to custom line alerts when the user takes the shortcut.
const DefaultThreshold = 0.5

// Spec is the closed set of alert variants. Each variant carries only the
// fields that are meaningful for its kind, so a loaded alert never has
// ambiguous half-filled columns.
type Spec interface {
	Kind() Kind
}

// PriceSpec triggers when the last close crosses Target in Direction.
type PriceSpec struct {
	Target    float64
	Direction Direction
}

func (PriceSpec) Kind() Kind { return KindPrice }

// SMASpec triggers when the last close crosses the simple moving average
// of the configured period.
type SMASpec struct {
	Period    int
	Direction Direction
}

func (SMASpec) Kind() Kind { return KindSMA }

// CustomLineSpec triggers when the last close comes within Threshold of a
// trend line anchored at two (date, price) points.
type CustomLineSpec struct {
	Date1     time.Time
	Price1    float64
	Date2     time.Time
	Price2    float64
	Threshold float64
}

func (CustomLineSpec) Kind() Kind { return KindCustomLine }

// Alert is a persisted market watch owned by a single user.
type Alert struct {
	ID        int64
	UserID    int64
	Ticker    string
	Spec      Spec
	CreatedAt time.Time
}

// Candle is one daily OHLCV bar.
type Candle struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}
