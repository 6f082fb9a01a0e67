package tlscred

import (
	"context"
	"os"
	"time"

	"github.com/keelfs/keeld/internal/logger"
)

// Watch polls the certificate file's mtime every interval; a change
// triggers Reload and a signal on the returned channel. The listener is
// not rebuilt: new handshakes pick up the reloaded certificate through
// GetCertificate. The channel is closed when ctx is done.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) <-chan struct{} {
	changed := make(chan struct{}, 1)

	go func() {
		defer close(changed)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(m.certPath)
				if err != nil {
					logger.Warn("tlscred: stat cert during poll", logger.Err(err))
					continue
				}

				m.mu.RLock()
				known := m.certMtime
				m.mu.RUnlock()

				if info.ModTime().After(known) {
					if err := m.Reload(); err != nil {
						logger.Error("tlscred: reload after mtime change", logger.Err(err))
						continue
					}
					select {
					case changed <- struct{}{}:
					default:
					}
				}
			}
		}
	}()

	return changed
}
