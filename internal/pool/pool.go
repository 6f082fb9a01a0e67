package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/config"
	"github.com/keelfs/keeld/internal/logger"
)

// Pool owns the three lane pools and the default/max lease durations
// applied to every RequestConnection call.
type Pool struct {
	lanes          [3]*pgxpool.Pool
	defaultLease   time.Duration
	maxLease       time.Duration
	acquireTimeout time.Duration
}

// New builds the three pgxpool.Pool instances (one per lane, sized per
// cfg.{High,Mid,Low}PoolSize) from a single DSN, following the teacher's
// `createConnectionPool` shape in `pkg/metadata/store/postgres/connection.go`
// (ParseConfig, apply pool settings, NewWithConfig, Ping).
func New(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	sizes := [3]int{High: cfg.HighPoolSize, Mid: cfg.MidPoolSize, Low: cfg.LowPoolSize}

	p := &Pool{
		defaultLease:   cfg.DefaultLease,
		maxLease:       cfg.MaxLease,
		acquireTimeout: cfg.AcquireTimeout,
	}

	for _, lane := range [3]Lane{High, Mid, Low} {
		poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("pool: parse dsn for %s lane: %w", lane, err)
		}
		poolConfig.MaxConns = int32(sizes[lane])

		lanePool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("pool: create %s lane: %w", lane, err)
		}
		if err := lanePool.Ping(ctx); err != nil {
			lanePool.Close()
			return nil, fmt.Errorf("pool: ping %s lane: %w", lane, err)
		}
		p.lanes[lane] = lanePool
		logger.Info("connection lane ready", logger.Lane(lane.String()))
	}

	return p, nil
}

// RequestConnection leases a connection from lane, wrapping it in a
// ConnectionProxy carrying a fresh usage token. maxLease of zero uses the
// pool's configured default; a lease timer forcibly reclaims the
// connection at min(default_lease, maxLease).
func (p *Pool) RequestConnection(ctx context.Context, lane Lane, maxLease time.Duration) (*ConnectionProxy, error) {
	lease := p.defaultLease
	if maxLease > 0 && maxLease < lease {
		lease = maxLease
	}
	if lease > p.maxLease {
		lease = p.maxLease
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	conn, err := p.lanes[lane].Acquire(acquireCtx)
	if err != nil {
		return nil, codes.New(codes.ServerTimeout, fmt.Sprintf("acquire %s lane connection: %v", lane, err))
	}

	token, err := newToken()
	if err != nil {
		conn.Release()
		return nil, err
	}

	proxy := &ConnectionProxy{
		conn:      conn,
		lane:      lane,
		pool:      p,
		token:     token,
		expiresAt: time.Now().Add(lease),
	}
	proxy.timer = time.AfterFunc(lease, func() { p.expireLease(proxy) })

	return proxy, nil
}

// expireLease is invoked by the lease timer on timeout; it invalidates the
// proxy and returns the underlying connection, leaving the lane's queue
// internally consistent (spec.md §4.2: "a lease-expiry event revoking a
// borrowed connection must leave the queue internally consistent").
func (p *Pool) expireLease(proxy *ConnectionProxy) {
	proxy.mu.Lock()
	if proxy.released {
		proxy.mu.Unlock()
		return
	}
	proxy.invalidateLocked()
	conn := proxy.conn
	proxy.mu.Unlock()

	logger.Warn("connection lease expired, forcibly reclaimed", logger.Lane(proxy.lane.String()))
	conn.Release()
}

// ReclaimConnection returns a cooperatively-released connection to its
// lane. Callers are expected to reclaim within a scoped acquisition; the
// lease timer is the backstop for callers that don't.
func (p *Pool) ReclaimConnection(proxy *ConnectionProxy) {
	proxy.mu.Lock()
	if proxy.released {
		proxy.mu.Unlock()
		return
	}
	proxy.invalidateLocked()
	conn := proxy.conn
	proxy.mu.Unlock()

	conn.Release()
}

// Close closes all three lane pools. Callers should first drain any
// in-flight flushers (internal/activitylog, internal/storagecache) that
// hold LOW/HIGH leases.
func (p *Pool) Close() {
	for _, lane := range [3]Lane{High, Mid, Low} {
		if p.lanes[lane] != nil {
			p.lanes[lane].Close()
		}
	}
}
