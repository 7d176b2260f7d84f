package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func quoteServer(t *testing.T, hits *int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			*hits++
		}
		fmt.Fprint(w, body)
	}))
}

func TestFetchBatch_SingleRequestForAllTickers(t *testing.T) {
	var symbolsParam string
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		symbolsParam = r.URL.Query().Get("symbols")
		fmt.Fprint(w, `{"quoteResponse":{"result":[
			{"symbol":"AAPL","regularMarketPrice":151.5},
			{"symbol":"msft","regularMarketPrice":310.0}]}}`)
	}))
	defer server.Close()

	client := NewClientWithURLs(server.Client(), server.URL, server.URL)
	prices, err := client.FetchBatch(context.Background(), []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if hits != 1 {
		t.Fatalf("expected 1 request for the batch, got %d", hits)
	}
	if !strings.Contains(symbolsParam, "AAPL") || !strings.Contains(symbolsParam, "MSFT") {
		t.Fatalf("symbols param missing tickers: %q", symbolsParam)
	}
	if prices["AAPL"] != 151.5 {
		t.Fatalf("AAPL price = %v", prices["AAPL"])
	}
	if prices["MSFT"] != 310 {
		t.Fatalf("lowercase response symbol was not normalized: %v", prices)
	}
}

func TestFetchBatch_NoTickersNoRequest(t *testing.T) {
	hits := 0
	server := quoteServer(t, &hits, `{}`)
	defer server.Close()

	client := NewClientWithURLs(server.Client(), server.URL, server.URL)
	prices, err := client.FetchBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(prices) != 0 || hits != 0 {
		t.Fatalf("empty batch still issued a request")
	}
}

func TestFetchBatch_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClientWithURLs(server.Client(), server.URL, server.URL)
	if _, err := client.FetchBatch(context.Background(), []string{"AAPL"}); err == nil {
		t.Fatal("expected an error on a non-200 response")
	}
}

func TestFetchDaily_SkipsZeroCloses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{
			"timestamp":[1717200000,1717286400,1717372800],
			"indicators":{"quote":[{
				"open":[99,0,101],"high":[101,0,103],"low":[98,0,100],
				"close":[100,0,102],"volume":[1000,0,1200]}]}}]}}`)
	}))
	defer server.Close()

	client := NewClientWithURLs(server.Client(), server.URL, server.URL)
	candles, err := client.FetchDaily(context.Background(), "AAPL",
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if len(candles) != 2 {
		t.Fatalf("expected the zero-close bar to be dropped, got %d candles", len(candles))
	}
	if candles[0].Close != 100 || candles[1].Close != 102 {
		t.Fatalf("unexpected closes: %v", candles)
	}
}

func TestFetchDaily_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[],"error":{"description":"No data found"}}}`)
	}))
	defer server.Close()

	client := NewClientWithURLs(server.Client(), server.URL, server.URL)
	if _, err := client.FetchDaily(context.Background(), "NOPE", time.Now().AddDate(0, 0, -1), time.Now()); err == nil {
		t.Fatal("expected the API error to surface")
	}
}

func TestFetchDaily_SingleDayWidensRange(t *testing.T) {
	var period1, period2 string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		period1 = r.URL.Query().Get("period1")
		period2 = r.URL.Query().Get("period2")
		fmt.Fprint(w, `{"chart":{"result":[]}}`)
	}))
	defer server.Close()

	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	client := NewClientWithURLs(server.Client(), server.URL, server.URL)
	if _, err := client.FetchDaily(context.Background(), "AAPL", day, day); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if period1 == period2 {
		t.Fatal("single-day request did not widen the exclusive upper bound")
	}
}

func TestSMA_AveragesLastPeriodCloses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{
			"timestamp":[1717200000,1717286400,1717372800,1717459200,1717545600],
			"indicators":{"quote":[{
				"open":[1,1,1,1,1],"high":[1,1,1,1,1],"low":[1,1,1,1,1],
				"close":[90,100,100,110,100],"volume":[1,1,1,1,1]}]}}]}}`)
	}))
	defer server.Close()

	client := NewClientWithURLs(server.Client(), server.URL, server.URL)

	sma, ok := client.SMA(context.Background(), "AAPL", 3)
	if !ok {
		t.Fatal("SMA reported unavailable with enough history")
	}
	if want := (100.0 + 110.0 + 100.0) / 3; sma != want {
		t.Fatalf("SMA = %v, want %v", sma, want)
	}
}

func TestSMA_InsufficientHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{
			"timestamp":[1717200000],
			"indicators":{"quote":[{"open":[1],"high":[1],"low":[1],"close":[100],"volume":[1]}]}}]}}`)
	}))
	defer server.Close()

	client := NewClientWithURLs(server.Client(), server.URL, server.URL)
	if _, ok := client.SMA(context.Background(), "AAPL", 20); ok {
		t.Fatal("SMA reported available with one day of history")
	}
}
