package conncache

import (
	"sync"
	"time"
)

// Scheduler runs a function periodically.
type Scheduler interface {
	// Every calls fn every interval until the returned stop func is called.
	// stop is safe to call more than once.
	Every(interval time.Duration, fn func()) (stop func())
}

// TickerScheduler runs functions on a time.Ticker in a dedicated goroutine.
type TickerScheduler struct{}

// Every implements Scheduler.
func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

var _ Scheduler = TickerScheduler{}
