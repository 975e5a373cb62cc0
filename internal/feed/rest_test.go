package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantrend/dexarb/internal/crypto"
	"github.com/quantrend/dexarb/internal/domain"
)

var (
	weth = domain.Token{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH", Decimals: 18}
	usdc = domain.Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6}

	uniswap = domain.Venue{ID: "uniswap", Name: "Uniswap", Active: true}
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchQuoteParsesResponse(t *testing.T) {
	pair := domain.NewTokenPair(weth, usdc)

	var gotPath, gotBase, gotQuote string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBase = r.URL.Query().Get("base")
		gotQuote = r.URL.Query().Get("quote")
		fmt.Fprint(w, `{"venue":"uniswap","price":0.0005,"timestamp":1700000000123}`)
	}))
	defer srv.Close()

	c := NewClient(discard(), srv.URL)
	point, err := c.FetchQuote(context.Background(), uniswap, pair)
	if err != nil {
		t.Fatalf("FetchQuote failed: %v", err)
	}

	if gotPath != "/v1/quote/uniswap" {
		t.Errorf("path = %s, want /v1/quote/uniswap", gotPath)
	}
	if gotBase != strings.ToLower(pair.Base.Address.Hex()) {
		t.Errorf("base param = %s", gotBase)
	}
	if gotQuote != strings.ToLower(pair.Quote.Address.Hex()) {
		t.Errorf("quote param = %s", gotQuote)
	}

	if point.Price != 0.0005 {
		t.Errorf("Price = %v, want 0.0005", point.Price)
	}
	if point.VenueID != "uniswap" {
		t.Errorf("VenueID = %s, want uniswap", point.VenueID)
	}
	if want := time.UnixMilli(1700000000123).UTC(); !point.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", point.Timestamp, want)
	}
}

func TestFetchQuoteRetriesTransientFailures(t *testing.T) {
	pair := domain.NewTokenPair(weth, usdc)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream timeout", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"venue":"uniswap","price":2000,"timestamp":0}`)
	}))
	defer srv.Close()

	c := NewClient(discard(), srv.URL)
	point, err := c.FetchQuote(context.Background(), uniswap, pair)
	if err != nil {
		t.Fatalf("FetchQuote failed after retries: %v", err)
	}
	if point.Price != 2000 {
		t.Errorf("Price = %v, want 2000", point.Price)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3 (two retried)", got)
	}
}

func TestFetchQuoteSurfacesTransientAfterRetriesExhausted(t *testing.T) {
	pair := domain.NewTokenPair(weth, usdc)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(discard(), srv.URL)
	_, err := c.FetchQuote(context.Background(), uniswap, pair)
	if !errors.Is(err, domain.ErrTransientFetch) {
		t.Errorf("err = %v, want ErrTransientFetch", err)
	}
}

func TestFetchQuoteMapsStatusCodes(t *testing.T) {
	pair := domain.NewTokenPair(weth, usdc)

	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		c := NewClient(discard(), srv.URL)
		_, err := c.FetchQuote(context.Background(), uniswap, pair)
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestFetchQuoteRejectsNonPositivePrice(t *testing.T) {
	pair := domain.NewTokenPair(weth, usdc)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"venue":"uniswap","price":0,"timestamp":0}`)
	}))
	defer srv.Close()

	c := NewClient(discard(), srv.URL)
	if _, err := c.FetchQuote(context.Background(), uniswap, pair); err == nil {
		t.Error("zero price accepted")
	}
}

func TestFetchQuoteSendsAuthHeaders(t *testing.T) {
	pair := domain.NewTokenPair(weth, usdc)

	var gotKey, gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-ARB-API-KEY")
		gotSig = r.Header.Get("X-ARB-SIGNATURE")
		fmt.Fprint(w, `{"venue":"uniswap","price":1,"timestamp":0}`)
	}))
	defer srv.Close()

	c := NewClient(discard(), srv.URL)
	c.SetAuth(&crypto.HMACAuth{Key: "key-1", Secret: "c2VjcmV0", Passphrase: "p"})
	if _, err := c.FetchQuote(context.Background(), uniswap, pair); err != nil {
		t.Fatalf("FetchQuote failed: %v", err)
	}
	if gotKey != "key-1" {
		t.Errorf("X-ARB-API-KEY = %q, want key-1", gotKey)
	}
	if gotSig == "" {
		t.Error("X-ARB-SIGNATURE missing")
	}
}
