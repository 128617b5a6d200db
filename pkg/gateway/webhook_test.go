package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/kanbanhq/controlplane/pkg/agent"
	"github.com/stretchr/testify/assert"
)

// HMAC signature verification accepts any signature produced with the
// same secret over the same body, and rejects any bit-flipped variant.
func TestVerifySignature(t *testing.T) {
	secret := "sandbox-webhook-secret"
	body := []byte(`{"event":"card.moved","workspace_slug":"shop"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, verifySignature(sig, body, secret))

	flipped := []byte(sig)
	flipped[len(flipped)-1] ^= 0x01
	assert.False(t, verifySignature(string(flipped), body, secret))

	assert.False(t, verifySignature(sig, body, "wrong-secret"))
	assert.False(t, verifySignature("not-a-real-signature", body, secret))
	assert.False(t, verifySignature("sha256=zz", body, secret))
}

// A webhook for a column whose name contains "done" produces no agent
// task: no role maps to Done by default.
func TestDispatchCardMoved_DoneColumnHasNoRole(t *testing.T) {
	_, ok := agent.ResolveRole("Done")
	assert.False(t, ok)
}
