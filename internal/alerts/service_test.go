package alerts

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeNotifier) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeNotifier) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestNotifyDelivers(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewService(n)

	delivered := svc.Notify(Alert{
		AccountName: "acct-1",
		Type:        AlertTypeRateLimited,
		Severity:    SeverityWarning,
		Message:     "cooling down",
	})
	require.True(t, delivered)

	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "acct-1")
	assert.Contains(t, msgs[0], "rate_limited")
}

func TestNotifyDeduplicatesWithinWindow(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewService(n, WithDedupWindow(time.Hour))

	alert := Alert{AccountName: "a", Type: AlertTypeRateLimited, Severity: SeverityWarning, Message: "x"}
	assert.True(t, svc.Notify(alert))
	assert.False(t, svc.Notify(alert), "identical alert inside the window must be suppressed")
	assert.Len(t, n.messages(), 1)

	other := Alert{AccountName: "b", Type: AlertTypeRateLimited, Severity: SeverityWarning, Message: "x"}
	assert.True(t, svc.Notify(other), "different account is a different key")
}

func TestNotifyDedupWindowExpires(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewService(n, WithDedupWindow(time.Minute))

	base := time.Now()
	first := Alert{AccountName: "a", Type: AlertTypeExhausted, Severity: SeverityCritical, Message: "x", Timestamp: base}
	again := first
	again.Timestamp = base.Add(2 * time.Minute)

	assert.True(t, svc.Notify(first))
	assert.True(t, svc.Notify(again))
	assert.Len(t, n.messages(), 2)
}

func TestNotifyThrottled(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewService(n, WithThrottler(NewThrottler(1, 2)), WithDedupWindow(0))

	sentCount := 0
	for i := 0; i < 10; i++ {
		if svc.Notify(Alert{AccountName: "a", Type: AlertTypeError, Severity: SeverityInfo, Message: "m"}) {
			sentCount++
		}
	}
	assert.Equal(t, 2, sentCount, "bucket of 2 should cap the burst")
}

func TestNotifyDeliveryFailureNotRecorded(t *testing.T) {
	n := &fakeNotifier{err: fmt.Errorf("telegram down")}
	svc := NewService(n, WithDedupWindow(time.Hour))

	alert := Alert{AccountName: "a", Type: AlertTypeError, Severity: SeverityInfo, Message: "m"}
	assert.False(t, svc.Notify(alert))

	// Failed send must not arm the dedup window.
	n.mu.Lock()
	n.err = nil
	n.mu.Unlock()
	assert.True(t, svc.Notify(alert))
}

func TestNilNotifier(t *testing.T) {
	svc := NewService(nil)
	assert.False(t, svc.Notify(Alert{Type: AlertTypeError}))
}

func TestFormatSeverityIcons(t *testing.T) {
	warning := format(Alert{Type: AlertTypeRateLimited, Severity: SeverityWarning, AccountName: "a", Message: "m"})
	assert.True(t, strings.HasPrefix(warning, "⚠️"))

	critical := format(Alert{Type: AlertTypeExhausted, Severity: SeverityCritical, Message: "m"})
	assert.True(t, strings.HasPrefix(critical, "🚨"))
}
