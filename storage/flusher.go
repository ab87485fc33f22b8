package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mezonai/mmn-storage/logx"
)

// flusher persists dirty cache state at most once per interval. The first dirty
// signal arms the timer; signals arriving before it fires are coalesced, and the
// flush itself runs on the engine goroutine so it sees the latest state at fire time.
type flusher struct {
	e        *engine
	interval time.Duration
}

func (f *flusher) run() {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	arm := func() {
		timer = time.NewTimer(f.interval)
		fire = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-f.e.closing:
			// the engine does the final flush itself
			return
		case <-f.e.notify:
			if fire == nil {
				arm()
			}
		case <-fire:
			fire = nil
			err := f.e.call(context.Background(), "background_flush", func() error {
				return f.e.flush(false)
			})
			if errors.Is(err, ErrEngineStopped) {
				return
			}
			if err != nil {
				logx.Warn("STORAGE", "Background flush failed, retrying next interval: ", err)
				arm()
			}
		}
	}
}
