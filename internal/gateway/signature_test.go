package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testSecret = "key_secret_test"

func TestVerifyCheckoutSignature(t *testing.T) {
	sig := CheckoutSignature("order_abc", "pay_123", testSecret)

	assert.True(t, VerifyCheckoutSignature("order_abc", "pay_123", sig, testSecret))
	assert.False(t, VerifyCheckoutSignature("order_abc", "pay_124", sig, testSecret), "different payment id")
	assert.False(t, VerifyCheckoutSignature("order_abd", "pay_123", sig, testSecret), "different order id")
	assert.False(t, VerifyCheckoutSignature("order_abc", "pay_123", sig, "other_secret"), "different secret")
	assert.False(t, VerifyCheckoutSignature("order_abc", "pay_123", "", testSecret), "empty signature")
	assert.False(t, VerifyCheckoutSignature("order_abc", "pay_123", sig, ""), "empty secret")
	assert.False(t, VerifyCheckoutSignature("", "", Sign([]byte("|"), testSecret), testSecret), "empty ids")
}

func TestVerifyCheckoutSignatureRejectsEveryBitFlip(t *testing.T) {
	sig := CheckoutSignature("order_abc", "pay_123", testSecret)

	for i := 0; i < len(sig); i++ {
		for bit := 0; bit < 8; bit++ {
			tampered := []byte(sig)
			tampered[i] ^= 1 << bit
			if string(tampered) == sig {
				continue
			}
			if VerifyCheckoutSignature("order_abc", "pay_123", string(tampered), testSecret) {
				t.Fatalf("tampered signature accepted: byte %d bit %d", i, bit)
			}
		}
	}
}

func TestVerifyPayloadSignature(t *testing.T) {
	payload := []byte(`{"event":"payment.captured","payload":{}}`)
	sig := Sign(payload, "whsec")

	assert.True(t, VerifyPayloadSignature(payload, sig, "whsec"))
	assert.True(t, VerifyPayloadSignature(payload, " "+sig+"\n", "whsec"), "surrounding whitespace is trimmed")
	assert.False(t, VerifyPayloadSignature(append(payload, ' '), sig, "whsec"), "raw bytes matter")
	assert.False(t, VerifyPayloadSignature(payload, sig, "key_secret"), "checkout secret is not the webhook secret")
}

func TestSignIsDeterministic(t *testing.T) {
	assert.Equal(t, Sign([]byte("a|b"), "s"), Sign([]byte("a|b"), "s"))
	assert.Len(t, Sign([]byte("a|b"), "s"), 64)
}
