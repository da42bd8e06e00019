package webhook

import "testing"

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","event":"payment.succeeded"}`)
	secret := "test-secret"
	header := Sign(payload, secret)

	t.Run("valid signature", func(t *testing.T) {
		if !VerifySignature(payload, header, secret) {
			t.Error("expected valid signature to verify")
		}
	})

	t.Run("flipped payload bit", func(t *testing.T) {
		tampered := make([]byte, len(payload))
		copy(tampered, payload)
		tampered[10] ^= 0x01
		if VerifySignature(tampered, header, secret) {
			t.Error("tampered payload must not verify")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		if VerifySignature(payload, header, "other-secret") {
			t.Error("signature from another secret must not verify")
		}
	})

	t.Run("missing prefix", func(t *testing.T) {
		raw := header[len("sha256="):]
		if VerifySignature(payload, raw, secret) {
			t.Error("header without sha256= prefix must not verify")
		}
	})

	t.Run("empty header", func(t *testing.T) {
		if VerifySignature(payload, "", secret) {
			t.Error("empty header must not verify")
		}
	})

	t.Run("garbage header", func(t *testing.T) {
		if VerifySignature(payload, "sha256=nothex", secret) {
			t.Error("non-hex signature must not verify")
		}
	})
}
