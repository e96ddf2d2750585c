// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"testing"
	"time"
)

func TestFakeClock_AfterFiresOnAdvance(t *testing.T) {
	t.Parallel()

	c := NewFakeClock()
	ch := c.After(time.Second)

	c.Advance(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(c.Now()) {
			t.Errorf("fired with %v, want %v", got, c.Now())
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeClock_NonPositiveFiresImmediately(t *testing.T) {
	t.Parallel()

	c := NewFakeClock()
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeClock_BlockUntilWaiters(t *testing.T) {
	t.Parallel()

	c := NewFakeClock()
	done := make(chan struct{})
	go func() {
		<-c.After(time.Minute)
		close(done)
	}()

	c.BlockUntilWaiters(1)
	c.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not released")
	}
}
