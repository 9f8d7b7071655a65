package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Signature"

// VerifySignature validates an HMAC-SHA256 signature over payload.
// An optional "sha256=" prefix is accepted.
func VerifySignature(payload []byte, signature string, secretKey string) bool {
	if secretKey == "" || signature == "" {
		return false
	}

	given, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}

	return hmac.Equal(given, sum(payload, secretKey))
}

// GenerateSignature creates the signature a provider would send
func GenerateSignature(payload []byte, secretKey string) string {
	if secretKey == "" {
		return ""
	}
	return hex.EncodeToString(sum(payload, secretKey))
}

func sum(payload []byte, secretKey string) []byte {
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write(payload)
	return h.Sum(nil)
}
