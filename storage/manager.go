package storage

import (
	"fmt"
	"sync"

	"github.com/mezonai/mmn-storage/logx"
)

// Manager owns the engine's lifetime.
type Manager struct {
	e    *engine
	once sync.Once
	err  error
}

// Stop stops accepting operations, lets the accepted ones finish, performs the final
// durable flush and closes the backing store. Only the first call does the work;
// later calls return its result.
func (m *Manager) Stop() error {
	m.once.Do(func() {
		logx.Info("STORAGE", "Stopping storage engine")
		close(m.e.stopCh)
		<-m.e.done

		if !m.e.stopped {
			// the engine goroutine died without running its shutdown
			m.e.stopAccepting()
			if m.e.flusherDone != nil {
				<-m.e.flusherDone
			}
			if err := m.e.provider.Close(); err != nil {
				logx.Error("STORAGE", "Failed to close backing store: ", err)
			}
			m.err = newError(EngineStopped, "stop", fmt.Errorf("engine terminated unexpectedly, unflushed blocks may be lost"))
			return
		}
		m.err = m.e.stopErr
	})
	return m.err
}
