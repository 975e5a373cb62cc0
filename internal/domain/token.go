package domain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token identifies an ERC-20 token. Identity is the on-chain address;
// symbol and decimals are display metadata only.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Equal reports whether two tokens refer to the same contract.
func (t Token) Equal(other Token) bool {
	return t.Address == other.Address
}

// String returns the token symbol, falling back to the short address form
// when no symbol is known.
func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

// TokenPair is an unordered pair of tokens. Construct it with NewTokenPair
// so that (A,B) and (B,A) normalise to the same value.
type TokenPair struct {
	Base  Token
	Quote Token
}

// NewTokenPair returns the canonical form of the pair: the token with the
// lower address becomes Base. Monitoring the same two tokens in either
// order therefore produces one subscription, not two.
func NewTokenPair(a, b Token) TokenPair {
	if bytes.Compare(a.Address.Bytes(), b.Address.Bytes()) > 0 {
		a, b = b, a
	}
	return TokenPair{Base: a, Quote: b}
}

// Key returns a stable map key for the canonical pair.
func (p TokenPair) Key() string {
	return strings.ToLower(p.Base.Address.Hex()) + ":" + strings.ToLower(p.Quote.Address.Hex())
}

// String renders the pair as BASE/QUOTE for logs and API responses.
func (p TokenPair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}

// Tokens returns both legs of the pair.
func (p TokenPair) Tokens() (Token, Token) {
	return p.Base, p.Quote
}
