package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"telegram-stock-alert/internal/types"
)

const (
	defaultQuoteURL = "https://query1.finance.yahoo.com/v7/finance/quote"
	defaultChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"

	// The quote API rejects requests without a browser-ish user agent.
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"
)

// Client fetches equity quotes and daily bars from the Yahoo Finance API.
type Client struct {
	httpClient *http.Client
	quoteURL   string
	chartURL   string
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		quoteURL:   defaultQuoteURL,
		chartURL:   defaultChartURL,
	}
}

// NewClientWithURLs is used by tests to point the client at a stub server.
func NewClientWithURLs(httpClient *http.Client, quoteURL, chartURL string) *Client {
	return &Client{httpClient: httpClient, quoteURL: quoteURL, chartURL: chartURL}
}

// FetchBatch resolves the latest market price for every ticker in one
// request. Tickers missing from the response are simply absent from the
// returned map.
func (c *Client) FetchBatch(ctx context.Context, tickers []string) (map[string]float64, error) {
	if len(tickers) == 0 {
		return map[string]float64{}, nil
	}

	endpoint := fmt.Sprintf("%s?symbols=%s", c.quoteURL, url.QueryEscape(strings.Join(tickers, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build quote request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "quote request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("quote request returned status %d", resp.StatusCode)
	}

	var payload struct {
		QuoteResponse struct {
			Result []struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"result"`
		} `json:"quoteResponse"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "could not parse quote response")
	}

	prices := make(map[string]float64, len(payload.QuoteResponse.Result))
	for _, r := range payload.QuoteResponse.Result {
		prices[strings.ToUpper(r.Symbol)] = r.RegularMarketPrice
	}

	log.Debugf("fetched %d quotes for %d requested tickers", len(prices), len(tickers))
	return prices, nil
}

// FetchDaily returns daily bars for [start, end]. The chart API treats the
// upper bound as exclusive, so a single-day request gets one extra day added.
func (c *Client) FetchDaily(ctx context.Context, ticker string, start, end time.Time) ([]types.Candle, error) {
	effectiveEnd := end
	if !end.After(start) {
		effectiveEnd = start.AddDate(0, 0, 1)
	}

	endpoint := fmt.Sprintf("%s/%s?period1=%d&period2=%d&interval=1d",
		c.chartURL, url.PathEscape(ticker), start.Unix(), effectiveEnd.Unix())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build chart request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "chart request for %s failed", ticker)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("chart request for %s returned status %d", ticker, resp.StatusCode)
	}

	var payload struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Open   []float64 `json:"open"`
						High   []float64 `json:"high"`
						Low    []float64 `json:"low"`
						Close  []float64 `json:"close"`
						Volume []int64   `json:"volume"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
			Error *struct {
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrapf(err, "could not parse chart response for %s", ticker)
	}

	if payload.Chart.Error != nil {
		return nil, errors.Errorf("chart API error for %s: %s", ticker, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := payload.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	var candles []types.Candle
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == 0 {
			continue
		}
		candles = append(candles, types.Candle{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  quote.Close[i],
			Volume: atInt(quote.Volume, i),
		})
	}

	return candles, nil
}

// SMA computes the simple moving average of the last period daily closes.
// The second return is false when there is not enough history.
func (c *Client) SMA(ctx context.Context, ticker string, period int) (float64, bool) {
	if period <= 0 {
		return 0, false
	}

	now := time.Now()
	candles, err := c.FetchDaily(ctx, ticker, now.AddDate(0, 0, -period*3), now)
	if err != nil {
		log.Errorf("SMA fetch for %s failed: %v", ticker, err)
		return 0, false
	}

	if len(candles) < period {
		// Non-trading days thin out short ranges; retry with a wider window.
		candles, err = c.FetchDaily(ctx, ticker, now.AddDate(0, 0, -period*5), now)
		if err != nil || len(candles) < period {
			log.Warnf("not enough history for %s to compute SMA(%d), found %d days", ticker, period, len(candles))
			return 0, false
		}
	}

	var sum float64
	for _, candle := range candles[len(candles)-period:] {
		sum += candle.Close
	}
	return sum / float64(period), true
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}

func atInt(values []int64, i int) int64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}
