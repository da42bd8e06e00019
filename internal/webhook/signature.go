package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC of the raw request body.
const SignatureHeader = "X-Hearth-Signature"

const signaturePrefix = "sha256="

// VerifySignature checks the webhook came from the payment gateway.
// header: value from the X-Hearth-Signature header, "sha256=<hex>"
// payload: raw request body bytes
// secret: shared webhook secret from config
func VerifySignature(payload []byte, header, secret string) bool {
	sig, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, err := mac.Write(payload)
	if err != nil {
		return false
	}

	expectedSig := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expectedSig), []byte(sig))
}

// Sign computes the signature header value for a payload. The mock gateway
// and tests use it to produce valid deliveries.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
