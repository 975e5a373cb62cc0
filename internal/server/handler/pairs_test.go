package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrend/dexarb/internal/domain"
)

var (
	testWETH = domain.Token{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH", Decimals: 18}
	testUSDC = domain.Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6}
	testDAI  = domain.Token{Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Symbol: "DAI", Decimals: 18}
)

type fakePairAdmin struct {
	pairs     map[string]domain.TokenPair
	addResult bool
}

func newFakePairAdmin(pairs ...domain.TokenPair) *fakePairAdmin {
	f := &fakePairAdmin{pairs: make(map[string]domain.TokenPair), addResult: true}
	for _, p := range pairs {
		f.pairs[p.Key()] = p
	}
	return f
}

func (f *fakePairAdmin) AddPair(a, b domain.Token) bool {
	if !f.addResult {
		return false
	}
	p := domain.NewTokenPair(a, b)
	if _, ok := f.pairs[p.Key()]; ok {
		return false
	}
	f.pairs[p.Key()] = p
	return true
}

func (f *fakePairAdmin) RemovePair(a, b domain.Token) bool {
	key := domain.NewTokenPair(a, b).Key()
	if _, ok := f.pairs[key]; !ok {
		return false
	}
	delete(f.pairs, key)
	return true
}

func (f *fakePairAdmin) MonitoredPairs() []domain.TokenPair {
	out := make([]domain.TokenPair, 0, len(f.pairs))
	for _, p := range f.pairs {
		out = append(out, p)
	}
	return out
}

func knownTokens() map[string]domain.Token {
	return map[string]domain.Token{"WETH": testWETH, "USDC": testUSDC, "DAI": testDAI}
}

func TestPairsListReturnsCanonicalPairs(t *testing.T) {
	admin := newFakePairAdmin(domain.NewTokenPair(testWETH, testUSDC))
	h := NewPairsHandler(admin, knownTokens(), testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/pairs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.EqualValues(t, 1, body["count"])
	pairs := body["pairs"].([]any)
	first := pairs[0].(map[string]any)
	assert.Contains(t, first["key"], ":")
	assert.NotEmpty(t, first["display"])
}

func TestPairsAddResolvesSymbolsCaseInsensitively(t *testing.T) {
	admin := newFakePairAdmin()
	h := NewPairsHandler(admin, knownTokens(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/pairs", strings.NewReader(`{"base":"weth","quote":"usdc"}`))
	rec := httptest.NewRecorder()
	h.Add(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, true, body["added"])
	assert.Len(t, admin.pairs, 1)
}

func TestPairsAddDuplicateReturns200(t *testing.T) {
	admin := newFakePairAdmin(domain.NewTokenPair(testWETH, testUSDC))
	h := NewPairsHandler(admin, knownTokens(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/pairs", strings.NewReader(`{"base":"WETH","quote":"USDC"}`))
	rec := httptest.NewRecorder()
	h.Add(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeMap(t, rec)["added"])
}

func TestPairsAddRejectsBadInput(t *testing.T) {
	h := NewPairsHandler(newFakePairAdmin(), knownTokens(), testLogger())

	tests := []struct {
		name string
		body string
	}{
		{"unknown token", `{"base":"WETH","quote":"SHIB"}`},
		{"identical legs", `{"base":"WETH","quote":"WETH"}`},
		{"missing quote", `{"base":"WETH"}`},
		{"unknown field", `{"base":"WETH","quote":"USDC","size":1}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/pairs", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Add(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPairsRemoveByKey(t *testing.T) {
	pair := domain.NewTokenPair(testWETH, testUSDC)
	admin := newFakePairAdmin(pair)
	h := NewPairsHandler(admin, knownTokens(), testLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/pairs/"+pair.Key(), nil)
	req.SetPathValue("key", pair.Key())
	rec := httptest.NewRecorder()
	h.Remove(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, admin.pairs)
}

func TestPairsRemoveUnknownKeyReturns404(t *testing.T) {
	h := NewPairsHandler(newFakePairAdmin(), knownTokens(), testLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/pairs/0xa:0xb", nil)
	req.SetPathValue("key", "0xa:0xb")
	rec := httptest.NewRecorder()
	h.Remove(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
