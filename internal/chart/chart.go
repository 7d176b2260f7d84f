package chart

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"telegram-stock-alert/internal/alert"
	"telegram-stock-alert/internal/types"
)

// How much history an alert chart shows.
const lookbackDays = 90

var (
	priceColor   = drawing.Color{R: 0, G: 122, B: 255, A: 255}
	overlayColor = drawing.Color{R: 255, G: 99, B: 71, A: 255}
)

// DailySource supplies the candles a chart is drawn from.
type DailySource interface {
	FetchDaily(ctx context.Context, ticker string, start, end time.Time) ([]types.Candle, error)
}

// Renderer draws a recent-close line chart with the alert's reference level
// overlaid: the target line for price alerts, the rolling average for SMA
// alerts, the projected trend for custom line alerts.
type Renderer struct {
	data DailySource
}

func NewRenderer(data DailySource) *Renderer {
	return &Renderer{data: data}
}

func (r *Renderer) RenderAlert(ctx context.Context, a types.Alert, current float64) ([]byte, error) {
	now := time.Now()
	candles, err := r.data.FetchDaily(ctx, a.Ticker, now.AddDate(0, 0, -lookbackDays), now)
	if err != nil {
		return nil, errors.Wrapf(err, "could not fetch candles for %s", a.Ticker)
	}
	if len(candles) < 2 {
		return nil, errors.Errorf("not enough candles for %s to draw a chart", a.Ticker)
	}

	dates := make([]time.Time, len(candles))
	closes := make([]float64, len(candles))
	for i, candle := range candles {
		dates[i] = candle.Date
		closes[i] = candle.Close
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    a.Ticker,
			XValues: dates,
			YValues: closes,
			Style: chart.Style{
				StrokeColor: priceColor,
				FillColor:   priceColor.WithAlpha(30),
			},
		},
	}

	overlay, overlayName := r.overlaySeries(a, dates, closes)
	if overlay != nil {
		series = append(series, chart.TimeSeries{
			Name:    overlayName,
			XValues: dates,
			YValues: overlay,
			Style: chart.Style{
				StrokeColor:     overlayColor,
				StrokeDashArray: []float64{5.0, 5.0},
			},
		})
	}

	series = append(series, chart.AnnotationSeries{
		Annotations: []chart.Value2{
			{XValue: chart.TimeToFloat64(dates[len(dates)-1]), YValue: current, Label: fmt.Sprintf("%.2f", current)},
		},
	})

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s - %s alert", a.Ticker, a.Spec.Kind()),
		Width:  1200,
		Height: 500,
		XAxis:  chart.XAxis{ValueFormatter: chart.TimeDateValueFormatter},
		Series: series,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, errors.Wrap(err, "could not render chart")
	}
	return buf.Bytes(), nil
}

// overlaySeries computes the reference line for the alert kind, one value
// per candle date.
func (r *Renderer) overlaySeries(a types.Alert, dates []time.Time, closes []float64) ([]float64, string) {
	switch spec := a.Spec.(type) {
	case types.PriceSpec:
		line := make([]float64, len(dates))
		for i := range line {
			line[i] = spec.Target
		}
		return line, fmt.Sprintf("target %.2f", spec.Target)

	case types.SMASpec:
		if spec.Period <= 0 || len(closes) < spec.Period {
			return nil, ""
		}
		line := make([]float64, len(closes))
		var sum float64
		for i, c := range closes {
			sum += c
			if i >= spec.Period {
				sum -= closes[i-spec.Period]
			}
			if i >= spec.Period-1 {
				line[i] = sum / float64(spec.Period)
			} else {
				line[i] = closes[i]
			}
		}
		return line, fmt.Sprintf("SMA(%d)", spec.Period)

	case types.CustomLineSpec:
		line := make([]float64, len(dates))
		for i, d := range dates {
			line[i] = alert.ProjectAt(spec, d)
		}
		return line, "trend line"
	}
	return nil, ""
}
