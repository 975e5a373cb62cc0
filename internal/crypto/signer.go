package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// RelayerAuth(address address,uint256 timestamp,uint256 nonce)
	relayerAuthTypeHash = ethcrypto.Keccak256(
		[]byte("RelayerAuth(address address,uint256 timestamp,uint256 nonce)"),
	)

	// Settlement(address tokenIn,address tokenOut,address buyRouter,address sellRouter,uint256 amountIn,uint256 minAmountOut,uint256 deadline,uint256 nonce)
	settlementTypeHash = ethcrypto.Keccak256(
		[]byte("Settlement(address tokenIn,address tokenOut,address buyRouter,address sellRouter,uint256 amountIn,uint256 minAmountOut,uint256 deadline,uint256 nonce)"),
	)
)

// BundlePayload represents the fields of a settlement bundle that must be
// signed via EIP-712 before the relayer accepts it. String types are used
// for large numbers to preserve precision across JSON boundaries.
type BundlePayload struct {
	TokenIn      string `json:"tokenIn"`
	TokenOut     string `json:"tokenOut"`
	BuyRouter    string `json:"buyRouter"`
	SellRouter   string `json:"sellRouter"`
	AmountIn     string `json:"amountIn"`     // wei, decimal string
	MinAmountOut string `json:"minAmountOut"` // wei, decimal string
	Deadline     string `json:"deadline"`     // unix seconds, decimal string
	Nonce        string `json:"nonce"`
}

// Signer provides EIP-712 signing for settlement bundles and relayer auth.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
	domainSep  []byte // cached EIP-712 domain separator hash
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID (1 for Ethereum mainnet, 137 for Polygon).
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	s := &Signer{
		privateKey: pk,
		address:    addr,
		chainID:    chainID,
	}

	// Pre-compute the domain separator shared by both message types.
	s.domainSep = s.buildDomainSeparator("ArbSettlement", "1", chainID)

	return s, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignAuthMessage signs a RelayerAuth EIP-712 message used to authenticate
// with the settlement relayer. The returned string is a hex-encoded
// signature with recovery byte (65 bytes total).
func (s *Signer) SignAuthMessage(address string, timestamp, nonce int64) (string, error) {
	addr := common.HexToAddress(address)

	structHash := ethcrypto.Keccak256(
		concatBytes(
			relayerAuthTypeHash,
			common.LeftPadBytes(addr.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(timestamp)),
			bigIntTo32Bytes(big.NewInt(nonce)),
		),
	)

	digest := eip712Hash(s.domainSep, structHash)
	return s.signDigest(digest)
}

// SignBundle signs a Settlement EIP-712 struct covering both legs of an
// arbitrage trade. It returns a hex-encoded 65-byte signature.
func (s *Signer) SignBundle(bundle BundlePayload) (string, error) {
	structHash, err := settlementStructHash(bundle)
	if err != nil {
		return "", err
	}

	digest := eip712Hash(s.domainSep, structHash)
	return s.signDigest(digest)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func (s *Signer) buildDomainSeparator(name, version string, chainID int) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(int64(chainID))),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// settlementStructHash encodes and hashes a BundlePayload according to EIP-712.
func settlementStructHash(b BundlePayload) ([]byte, error) {
	amountIn, ok := new(big.Int).SetString(b.AmountIn, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid amountIn %q", b.AmountIn)
	}
	minOut, ok := new(big.Int).SetString(b.MinAmountOut, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid minAmountOut %q", b.MinAmountOut)
	}
	deadline, ok := new(big.Int).SetString(b.Deadline, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid deadline %q", b.Deadline)
	}
	nonce, ok := new(big.Int).SetString(b.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid nonce %q", b.Nonce)
	}

	tokenIn := common.HexToAddress(b.TokenIn)
	tokenOut := common.HexToAddress(b.TokenOut)
	buyRouter := common.HexToAddress(b.BuyRouter)
	sellRouter := common.HexToAddress(b.SellRouter)

	return ethcrypto.Keccak256(
		concatBytes(
			settlementTypeHash,
			common.LeftPadBytes(tokenIn.Bytes(), 32),
			common.LeftPadBytes(tokenOut.Bytes(), 32),
			common.LeftPadBytes(buyRouter.Bytes(), 32),
			common.LeftPadBytes(sellRouter.Bytes(), 32),
			bigIntTo32Bytes(amountIn),
			bigIntTo32Bytes(minOut),
			bigIntTo32Bytes(deadline),
			bigIntTo32Bytes(nonce),
		),
	), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
