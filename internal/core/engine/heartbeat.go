package engine

import (
	"time"

	"github.com/wsbridge/wsbridge/internal/core/observability/log"
)

// heartbeatMonitor probes one connection for liveness. Every interval
// it checks idle time against the read timeout and, while the peer is
// healthy, sends a ping control frame. A silent connection is
// force-closed with the timeout reason; the read loop then runs its
// normal disconnect path. The monitor stops as soon as the connection
// closes through any path, so a late tick can never fire twice.
type heartbeatMonitor struct {
	conn        *Conn
	interval    func() time.Duration
	idleTimeout func() time.Duration
	lg          log.Log
}

func startHeartbeat(c *Conn, interval, idleTimeout func() time.Duration, lg log.Log) {
	m := &heartbeatMonitor{
		conn:        c,
		interval:    interval,
		idleTimeout: idleTimeout,
		lg:          lg,
	}
	go m.run()
}

func (m *heartbeatMonitor) run() {
	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			idle := m.conn.idleFor()
			if timeout := m.idleTimeout(); idle > timeout {
				m.lg.Warn("connection timed out",
					log.Uint64("conn_id", m.conn.ID()),
					log.Duration("idle", idle),
					log.Duration("read_timeout", timeout))
				m.conn.close(CloseReasonTimeout)
				return
			}
			if err := m.conn.ping(); err != nil {
				m.lg.Debug("ping failed", log.Uint64("conn_id", m.conn.ID()), log.Error(err))
			}
			ticker.Reset(m.interval())
		case <-m.conn.Done():
			return
		}
	}
}
