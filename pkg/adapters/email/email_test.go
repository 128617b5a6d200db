package email

import "testing"

func TestSendWithoutAnyTransportConfiguredReportsFailure(t *testing.T) {
	a := New("", "", "", 0, "", "")

	res := a.Send("dev@example.com", "welcome", "hello", "<p>hello</p>")
	if res.Sent {
		t.Fatalf("expected send to fail with no transport configured")
	}
	if res.Provider != "smtp" {
		t.Fatalf("expected fallback to report smtp as the final attempted provider, got %s", res.Provider)
	}
}

func TestSendPrefersSendGridWhenConfigured(t *testing.T) {
	a := New("noreply@kanban.dev", "fake-api-key", "", 0, "", "")

	res := a.sendWithSendGrid("dev@example.com", "welcome", "hello", "<p>hello</p>")
	if res.Provider != "sendgrid" {
		t.Fatalf("expected sendgrid provider, got %s", res.Provider)
	}
	// Without network access this will fail to actually deliver; we only
	// assert it attempts the right transport and reports a Result rather
	// than a panic or Go error.
	_ = res.Sent
}
