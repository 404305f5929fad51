package repository

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConnectivityProbe implements domain.Connectivity by pinging the remote
// store on an interval. "Online" means the last ping succeeded; every flip
// of that state fans out to registered transition callbacks.
//
// Callbacks run on the probe goroutine. Keep them short; hand real work to
// the sync runner.
type RedisConnectivityProbe struct {
	client   *redis.Client
	interval time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	online    bool
	nextSubID int
	subs      map[int]func(online bool)
}

// NewRedisConnectivityProbe creates a probe. The initial state is offline
// until the first successful ping.
func NewRedisConnectivityProbe(client *redis.Client, interval, timeout time.Duration) *RedisConnectivityProbe {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisConnectivityProbe{
		client:   client,
		interval: interval,
		timeout:  timeout,
		subs:     make(map[int]func(online bool)),
	}
}

// Online reports the last observed connectivity state.
func (p *RedisConnectivityProbe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// OnTransition registers fn for offline<->online flips.
func (p *RedisConnectivityProbe) OnTransition(fn func(online bool)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Run probes until ctx is cancelled. The first ping happens immediately so
// startup doesn't wait a full interval to learn it is online.
func (p *RedisConnectivityProbe) Run(ctx context.Context) {
	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *RedisConnectivityProbe) probe(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	online := p.client.Ping(pingCtx).Err() == nil

	p.mu.Lock()
	changed := online != p.online
	p.online = online
	var subs []func(bool)
	if changed {
		for _, fn := range p.subs {
			subs = append(subs, fn)
		}
	}
	p.mu.Unlock()

	if changed {
		log.Printf("connectivity: now %s", stateName(online))
		for _, fn := range subs {
			fn(online)
		}
	}
}

func stateName(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}
