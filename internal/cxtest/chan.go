package cxtest

import (
	"testing"
	"time"
)

// ScheduleTimeout is the default duration the "Soon" helpers wait
// before failing the test.
const ScheduleTimeout = 200 * time.Millisecond

// SendSoon sends v on ch, failing the test if the send
// does not complete within [ScheduleTimeout].
func SendSoon[T any](t testing.TB, ch chan<- T, v T) {
	t.Helper()

	timer := time.NewTimer(ScheduleTimeout)
	defer timer.Stop()

	select {
	case ch <- v:
	case <-timer.C:
		t.Fatalf("timed out after %s sending to channel", ScheduleTimeout)
	}
}

// ReceiveSoon receives a value from ch, failing the test if no value
// (or close) arrives within [ScheduleTimeout].
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(ScheduleTimeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatalf("timed out after %s receiving from channel", ScheduleTimeout)
	}

	panic("unreachable")
}

// IsSending asserts that a receive from ch succeeds immediately.
func IsSending[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	default:
		t.Fatal("channel should have been ready to receive")
	}

	panic("unreachable")
}

// NotSending asserts that a receive from ch would block.
func NotSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	select {
	case <-ch:
		t.Fatal("channel should not have been ready to receive")
	default:
	}
}
