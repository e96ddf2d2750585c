// SPDX-License-Identifier: MPL-2.0

package reaper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rohanprabhu-jm/confinity/internal/container"
	"github.com/rohanprabhu-jm/confinity/internal/testutil"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func trackN(tg *Targets, n int) {
	for i := range n {
		tg.TrackContainer(container.ContainerID(fmt.Sprintf("c%02d", i)))
	}
}

func TestPass_RemovesTracked(t *testing.T) {
	t.Parallel()

	engine := testutil.NewFakeEngine(t)
	tg := NewTargets()
	trackN(tg, 6)
	r := New(engine, tg, WithConcurrency(2))

	res := r.Pass(context.Background())
	if res.Attempted != 6 || len(res.Removed) != 6 || len(res.Failed) != 0 {
		t.Errorf("Pass() = %+v, want 6 attempted and removed", res)
	}
	if c, _ := tg.Len(); c != 0 {
		t.Errorf("tracked containers after pass = %d, want 0", c)
	}
}

func TestPass_FailuresStayTracked(t *testing.T) {
	t.Parallel()

	engine := testutil.NewFakeEngine(t)
	engine.FailRemovals("c01", 1)
	tg := NewTargets()
	trackN(tg, 3)
	r := New(engine, tg)

	res := r.Pass(context.Background())
	if len(res.Failed) != 1 || res.Failed[0] != "c01" {
		t.Fatalf("Failed = %v, want [c01]", res.Failed)
	}
	if got := tg.Containers(); len(got) != 1 || got[0] != "c01" {
		t.Fatalf("tracked = %v, want [c01]", got)
	}
	if r.Failures("c01") != 1 {
		t.Errorf("Failures(c01) = %d, want 1", r.Failures("c01"))
	}

	res = r.Pass(context.Background())
	if len(res.Removed) != 1 {
		t.Errorf("second pass Removed = %v, want [c01]", res.Removed)
	}
	if r.Failures("c01") != 0 {
		t.Errorf("Failures(c01) after success = %d, want 0", r.Failures("c01"))
	}
}

func TestPass_LogsLeakOnce(t *testing.T) {
	t.Parallel()

	engine := testutil.NewFakeEngine(t)
	engine.FailRemovals("c00", 10)
	tg := NewTargets()
	trackN(tg, 1)
	logger, buf := newTestLogger()
	r := New(engine, tg, WithLeakAfter(3), WithLogger(logger))

	for range 5 {
		r.Pass(context.Background())
	}

	if n := strings.Count(buf.String(), "it may be leaked"); n != 1 {
		t.Errorf("leak warnings = %d, want 1\n%s", n, buf.String())
	}
	if c, _ := tg.Len(); c != 1 {
		t.Errorf("leaked container must stay tracked, got %d tracked", c)
	}
}

func TestPass_SingleFlight(t *testing.T) {
	t.Parallel()

	engine := testutil.NewFakeEngine(t)
	engine.RemoveDelay = 20 * time.Millisecond
	tg := NewTargets()
	trackN(tg, 8)
	r := New(engine, tg, WithConcurrency(8))

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			r.Pass(context.Background())
		})
	}
	wg.Wait()

	if n := engine.Count(container.OpRemove); n != 8 {
		t.Errorf("remove calls = %d, want 8", n)
	}
	if n := engine.Overlaps(); n != 0 {
		t.Errorf("concurrent removals of the same container = %d, want 0", n)
	}
}

func TestStart_PassesOnInterval(t *testing.T) {
	t.Parallel()

	engine := testutil.NewFakeEngine(t)
	clock := testutil.NewFakeClock()
	tg := NewTargets()
	trackN(tg, 2)
	r := New(engine, tg, WithClock(clock), WithInterval(time.Second))

	r.Start(context.Background())
	clock.BlockUntilWaiters(1)
	if engine.Count(container.OpRemove) != 0 {
		t.Fatal("pass ran before the interval elapsed")
	}
	clock.Advance(time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if c, _ := tg.Len(); c == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background pass did not remove tracked containers")
		}
		time.Sleep(5 * time.Millisecond)
	}

	r.Shutdown(context.Background())
}

func TestStart_DisabledInterval(t *testing.T) {
	t.Parallel()

	engine := testutil.NewFakeEngine(t)
	tg := NewTargets()
	trackN(tg, 2)
	r := New(engine, tg, WithInterval(0))

	r.Start(context.Background())
	if engine.Count(container.OpRemove) != 0 {
		t.Fatal("disabled reaper removed containers")
	}

	report := r.Shutdown(context.Background())
	if len(report.RemovedContainers) != 2 {
		t.Errorf("RemovedContainers = %v, want 2 entries", report.RemovedContainers)
	}
}

func TestShutdown_ContainersBeforeImages(t *testing.T) {
	t.Parallel()

	engine := testutil.NewFakeEngine(t)
	tg := NewTargets()
	tg.TrackImage("sha256:img")
	trackN(tg, 3)
	r := New(engine, tg)
	r.Start(context.Background())

	report := r.Shutdown(context.Background())
	if len(report.RemovedContainers) != 3 || len(report.RemovedImages) != 1 {
		t.Fatalf("Shutdown() = %+v", report)
	}

	calls := engine.Calls()
	last := calls[len(calls)-1]
	if last.Op != container.OpRemoveImage || last.Ref != "sha256:img" {
		t.Errorf("last call = %+v, want image removal", last)
	}
	for _, c := range calls[:len(calls)-1] {
		if c.Op != container.OpRemove {
			t.Errorf("unexpected call before image removal: %+v", c)
		}
	}
}

func TestShutdown_ReportsLeaks(t *testing.T) {
	t.Parallel()

	engine := testutil.NewFakeEngine(t)
	engine.FailOp(container.OpRemoveImage, errors.New("image is in use"))
	engine.FailRemovals("c00", 1)
	tg := NewTargets()
	tg.TrackImage("sha256:img")
	trackN(tg, 2)
	logger, buf := newTestLogger()
	r := New(engine, tg, WithLogger(logger))

	report := r.Shutdown(context.Background())
	if len(report.LeakedContainers) != 1 || report.LeakedContainers[0] != "c00" {
		t.Errorf("LeakedContainers = %v, want [c00]", report.LeakedContainers)
	}
	if len(report.LeakedImages) != 1 || report.LeakedImages[0] != "sha256:img" {
		t.Errorf("LeakedImages = %v, want [sha256:img]", report.LeakedImages)
	}
	if !strings.Contains(buf.String(), "remove it manually") {
		t.Errorf("expected a manual removal hint in logs:\n%s", buf.String())
	}
	if c, i := tg.Len(); c != 1 || i != 1 {
		t.Errorf("Len() = %d, %d, want 1, 1", c, i)
	}
}

func TestShutdown_StopsLoop(t *testing.T) {
	t.Parallel()

	engine := testutil.NewFakeEngine(t)
	clock := testutil.NewFakeClock()
	tg := NewTargets()
	r := New(engine, tg, WithClock(clock), WithInterval(time.Second))

	r.Start(context.Background())
	clock.BlockUntilWaiters(1)
	r.Shutdown(context.Background())

	trackN(tg, 1)
	r.Start(context.Background())
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if engine.Count(container.OpRemove) != 0 {
		t.Error("reaper ran a pass after shutdown")
	}
}

func TestStop_KeepsTargetsForShutdown(t *testing.T) {
	t.Parallel()

	engine := testutil.NewFakeEngine(t)
	clock := testutil.NewFakeClock()
	tg := NewTargets()
	r := New(engine, tg, WithClock(clock), WithInterval(time.Second))

	r.Start(context.Background())
	clock.BlockUntilWaiters(1)
	r.Stop()
	r.Stop()

	trackN(tg, 2)
	r.Start(context.Background())
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if n := engine.Count(container.OpRemove); n != 0 {
		t.Errorf("removals after Stop = %d, want 0", n)
	}
	if c, _ := tg.Len(); c != 2 {
		t.Errorf("tracked containers after Stop = %d, want 2", c)
	}

	report := r.Shutdown(context.Background())
	if len(report.RemovedContainers) != 2 {
		t.Errorf("RemovedContainers = %v, want 2 entries", report.RemovedContainers)
	}
}
