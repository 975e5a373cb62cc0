package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Throwaway key used only in tests.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe51296170827936ea5cce4b76994b0f"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey failed: %v", err)
	}
	if strings.Contains(string(blob), testKeyHex) {
		t.Fatal("keystore blob leaks the plaintext key")
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey failed: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("round trip = %s, want %s", got, testKeyHex)
	}
}

func TestDecryptRejectsWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey failed: %v", err)
	}
	if _, err := DecryptKey(blob, "*******"); err == nil {
		t.Error("DecryptKey accepted the wrong password")
	}
}

func TestEncryptKeyValidatesInput(t *testing.T) {
	if _, err := EncryptKey(testKeyHex, ""); err == nil {
		t.Error("empty password accepted")
	}
	if _, err := EncryptKey("not-hex", "pw"); err == nil {
		t.Error("non-hex key accepted")
	}
	if _, err := EncryptKey("abcd", "pw"); err == nil {
		t.Error("short key accepted")
	}
}

func TestDecryptRejectsTamperedKeystore(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey failed: %v", err)
	}

	var stored keystoreJSON
	if err := json.Unmarshal(blob, &stored); err != nil {
		t.Fatalf("unmarshal keystore: %v", err)
	}
	ct, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		t.Fatalf("decode ciphertext: %v", err)
	}
	ct[0] ^= 0xff
	stored.Ciphertext = base64.StdEncoding.EncodeToString(ct)
	tampered, err := json.Marshal(stored)
	if err != nil {
		t.Fatalf("marshal tampered keystore: %v", err)
	}

	if _, err := DecryptKey(tampered, "hunter2"); err == nil {
		t.Error("DecryptKey accepted a tampered ciphertext")
	}
}

func TestLoadKeyPrefersRawKey(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex, EncryptedKeyPath: "/nonexistent"})
	if err != nil {
		t.Fatalf("LoadKey failed: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("LoadKey = %s, want raw key with prefix stripped", got)
	}

	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Error("LoadKey with no source must fail")
	}
	if _, err := LoadKey(KeyConfig{RawPrivateKey: "abcd"}); err == nil {
		t.Error("LoadKey accepted a key that is not 32 bytes")
	}
}

func TestHeadersAtSignsDeterministically(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("super-secret"))
	auth := &HMACAuth{Key: "key-1", Secret: secret, Passphrase: "phrase"}

	headers := auth.HeadersAt("GET", "/v1/quote/uniswap", "", 1700000000)

	if headers["X-ARB-API-KEY"] != "key-1" {
		t.Errorf("api key header = %s", headers["X-ARB-API-KEY"])
	}
	if headers["X-ARB-TIMESTAMP"] != "1700000000" {
		t.Errorf("timestamp header = %s", headers["X-ARB-TIMESTAMP"])
	}

	mac := hmac.New(sha256.New, []byte("super-secret"))
	mac.Write([]byte("1700000000GET/v1/quote/uniswap"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if headers["X-ARB-SIGNATURE"] != want {
		t.Errorf("signature = %s, want %s", headers["X-ARB-SIGNATURE"], want)
	}
}

func TestHMACAuthStringRedactsSecrets(t *testing.T) {
	auth := &HMACAuth{Key: "key-123456", Secret: "secret-abcdef"}
	s := auth.String()
	if strings.Contains(s, "123456") || strings.Contains(s, "abcdef") {
		t.Errorf("String() leaks credentials: %s", s)
	}
}

func TestSignBundleRecoversSignerAddress(t *testing.T) {
	signer, err := NewSigner(testKeyHex, 1)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	bundle := BundlePayload{
		TokenIn:      "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		TokenOut:     "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		BuyRouter:    "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
		SellRouter:   "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
		AmountIn:     "1000000000000000000",
		MinAmountOut: "2050000000",
		Deadline:     "1700000300",
		Nonce:        "7",
	}

	sigHex, err := signer.SignBundle(bundle)
	if err != nil {
		t.Fatalf("SignBundle failed: %v", err)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		t.Fatalf("signature is not hex: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Fatalf("recovery byte = %d, want 27 or 28", v)
	}

	// Recover the public key from the digest and check it matches the wallet.
	structHash, err := settlementStructHash(bundle)
	if err != nil {
		t.Fatalf("struct hash failed: %v", err)
	}
	digest := eip712Hash(signer.domainSep, structHash)

	recSig := make([]byte, 65)
	copy(recSig, sig)
	recSig[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, recSig)
	if err != nil {
		t.Fatalf("SigToPub failed: %v", err)
	}
	if got := ethcrypto.PubkeyToAddress(*pub); got != signer.Address() {
		t.Errorf("recovered %s, want %s", got.Hex(), signer.Address().Hex())
	}
}

func TestSignBundleRejectsMalformedAmounts(t *testing.T) {
	signer, err := NewSigner(testKeyHex, 1)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	_, err = signer.SignBundle(BundlePayload{AmountIn: "1.5e18"})
	if err == nil {
		t.Error("non-integer amountIn accepted")
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	if _, err := NewSigner("zzzz", 1); err == nil {
		t.Error("invalid key hex accepted")
	}
}
