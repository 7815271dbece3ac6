package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/tableside-sync/pkg/logger"
	"github.com/angelmondragon/tableside-sync/pkg/metrics"
)

// Transition is emitted once per change of state.
type Transition struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// Prober checks whether the order service is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// ObserverParams wires the observer.
type ObserverParams struct {
	Prober        Prober
	Logger        *logger.Logger
	Metrics       *metrics.SyncMetrics
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	StartOnline   bool
}

// Observer holds the process-wide online/offline state.
type Observer struct {
	prober   Prober
	logg     *logger.Logger
	metrics  *metrics.SyncMetrics
	interval time.Duration
	timeout  time.Duration

	mu     sync.RWMutex
	online bool
	subs   map[int]chan Transition
	nextID int
}

func NewObserver(params ObserverParams) *Observer {
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.ProbeInterval <= 0 {
		params.ProbeInterval = 5 * time.Second
	}
	if params.ProbeTimeout <= 0 {
		params.ProbeTimeout = 2 * time.Second
	}
	o := &Observer{
		prober:   params.Prober,
		logg:     params.Logger,
		metrics:  params.Metrics,
		interval: params.ProbeInterval,
		timeout:  params.ProbeTimeout,
		online:   params.StartOnline,
		subs:     make(map[int]chan Transition),
	}
	return o
}

// Online reports the current state.
func (o *Observer) Online() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.online
}

// Subscribe registers a listener. The returned func unsubscribes and closes the channel.
func (o *Observer) Subscribe(buffer int) (<-chan Transition, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Transition, buffer)

	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = ch
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
			close(ch)
		})
	}
}

// Set records the state and notifies subscribers when it changed.
func (o *Observer) Set(online bool) bool {
	o.mu.Lock()
	if o.online == online {
		o.mu.Unlock()
		return false
	}
	o.online = online
	t := Transition{Online: online, At: time.Now().UTC()}
	for id, ch := range o.subs {
		select {
		case ch <- t:
		default:
			o.logg.Warn(o.logg.WithField(context.Background(), "subscriber", id), "connectivity subscriber buffer full; transition dropped")
		}
	}
	o.mu.Unlock()

	o.metrics.SetOnline(online)
	o.logg.Info(o.logg.WithField(context.Background(), "online", online), "connectivity changed")
	return true
}

// ReportSuccess marks the order service reachable.
func (o *Observer) ReportSuccess() {
	o.Set(true)
}

// ReportFailure marks the order service unreachable.
func (o *Observer) ReportFailure(err error) {
	if err != nil {
		o.logg.Debug(context.Background(), "order service call failed: "+err.Error())
	}
	o.Set(false)
}

// Check probes once and records the result.
func (o *Observer) Check(ctx context.Context) bool {
	if o.prober == nil {
		return o.Online()
	}
	probeCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	err := o.prober.Ping(probeCtx)
	if ctx.Err() != nil {
		return o.Online()
	}
	o.Set(err == nil)
	return err == nil
}

// Run probes immediately and then on every interval until ctx is done.
func (o *Observer) Run(ctx context.Context) error {
	o.Check(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.Check(ctx)
		}
	}
}
