package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex encoded HMAC-SHA256 of message under secret.
func Sign(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckoutSignature is the signature the gateway hands the client after checkout.
func CheckoutSignature(orderID, paymentID, secret string) string {
	return Sign([]byte(orderID+"|"+paymentID), secret)
}

// VerifyPayloadSignature checks supplied against the HMAC of the raw bytes.
// The comparison runs in constant time.
func VerifyPayloadSignature(payload []byte, supplied, secret string) bool {
	supplied = strings.TrimSpace(supplied)
	if secret == "" || supplied == "" {
		return false
	}
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(supplied))
}

// VerifyCheckoutSignature validates the signature over "orderID|paymentID".
func VerifyCheckoutSignature(orderID, paymentID, supplied, secret string) bool {
	if orderID == "" || paymentID == "" {
		return false
	}
	return VerifyPayloadSignature([]byte(orderID+"|"+paymentID), supplied, secret)
}
