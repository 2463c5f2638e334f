package main

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type jobLog struct {
	mu  sync.Mutex
	ran []string
}

func (l *jobLog) job(name string) func() error {
	return func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.ran = append(l.ran, name)
		return nil
	}
}

func (l *jobLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ran...)
}

func TestOutboxRunsInOrder(t *testing.T) {
	o := newOutbox(8)
	var l jobLog
	for _, name := range []string{"a", "b", "c", "d"} {
		if err := o.submit(name, l.job(name)); err != nil {
			t.Fatalf("submit %s: %v", name, err)
		}
	}
	if err := o.close(time.Second); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got, want := l.get(), []string{"a", "b", "c", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ran %v, want %v", got, want)
	}
}

func TestOutboxDropsOldestWhenFull(t *testing.T) {
	o := newOutbox(2)
	started := make(chan struct{})
	release := make(chan struct{})
	o.submit("block", func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	var l jobLog
	for _, name := range []string{"a", "b", "c"} {
		o.submit(name, l.job(name))
	}
	close(release)
	if err := o.close(time.Second); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got, want := l.get(), []string{"b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ran %v, want %v", got, want)
	}
	if got := o.Dropped(); got != 1 {
		t.Errorf("dropped: got %d, want 1", got)
	}
}

func TestOutboxSubmitNeverBlocks(t *testing.T) {
	o := newOutbox(1)
	release := make(chan struct{})
	defer close(release)
	o.submit("block", func() error {
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			o.submit("n", func() error { return nil })
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submit blocked behind a stuck job")
	}
}

func TestOutboxJobErrorDoesNotStopWorker(t *testing.T) {
	o := newOutbox(4)
	var l jobLog
	o.submit("fail", func() error { return errors.New("broker unavailable") })
	o.submit("after", l.job("after"))
	if err := o.close(time.Second); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := l.get(); len(got) != 1 || got[0] != "after" {
		t.Errorf("ran %v", got)
	}
}

func TestOutboxRejectsAfterClose(t *testing.T) {
	o := newOutbox(4)
	if err := o.close(time.Second); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := o.submit("late", func() error { return nil }); !errors.Is(err, errOutboxClosed) {
		t.Errorf("expected errOutboxClosed, got %v", err)
	}
	if err := o.close(time.Second); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestOutboxCloseTimeout(t *testing.T) {
	o := newOutbox(4)
	release := make(chan struct{})
	defer close(release)
	o.submit("stuck", func() error {
		<-release
		return nil
	})
	o.submit("queued", func() error { return nil })

	if err := o.close(20 * time.Millisecond); err == nil {
		t.Error("expected timeout error with a stuck job")
	}
}
