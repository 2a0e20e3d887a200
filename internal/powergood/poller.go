package powergood

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/gpio-monitor/internal/ipmb"
	"github.com/oshokin/gpio-monitor/internal/logger"
	"github.com/oshokin/gpio-monitor/internal/property"
	"github.com/oshokin/gpio-monitor/internal/reactor"
)

// Scheduler runs a callback on the reactor after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) *reactor.Timer
}

// Recorder observes failed samples and cycle durations.
type Recorder interface {
	SampleFailed(property string, err error)
	CycleCompleted(d time.Duration)
}

// Channel is one sampled host and the property it publishes.
type Channel struct {
	// Property is the published property name, e.g. Power_Good1.
	Property string
	// Host is the IPMB target address.
	Host uint8
}

// Options describes the request and the bits to test.
type Options struct {
	// Interval is the delay between two cycles.
	Interval time.Duration
	// NetFn is the request network function.
	NetFn uint8
	// LUN is the request logical unit number.
	LUN uint8
	// Cmd is the request command code.
	Cmd uint8
	// Payload is the request data.
	Payload []byte
	// StatusOffset is the index of the status byte in the response.
	StatusOffset int
	// CPUMask selects the CPU power-good bit.
	CPUMask uint8
	// PCHMask selects the chipset power-good bit.
	PCHMask uint8
	// Channels lists the sampled hosts.
	Channels []Channel
}

// Poller periodically samples and publishes power-good status.
type Poller struct {
	// scheduler owns the timer.
	scheduler Scheduler
	// transport performs the blocking IPMB exchange.
	transport ipmb.Transport
	// sink receives the published values.
	sink property.Sink
	// recorder observes failures and durations.
	recorder Recorder
	// opts holds the request description.
	opts Options

	// mu protects timer.
	mu sync.Mutex
	// timer is the single pending cycle, if any.
	timer *reactor.Timer
}

// Option configures a Poller.
type Option func(*Poller)

// WithRecorder installs a failure and latency recorder.
func WithRecorder(recorder Recorder) Option {
	return func(p *Poller) {
		if recorder != nil {
			p.recorder = recorder
		}
	}
}

// New creates a poller. Nothing is sampled until Start.
func New(scheduler Scheduler, transport ipmb.Transport, sink property.Sink, opts Options, options ...Option) *Poller {
	p := &Poller{
		scheduler: scheduler,
		transport: transport,
		sink:      sink,
		recorder:  nopRecorder{},
		opts:      opts,
	}

	for _, option := range options {
		option(p)
	}

	return p
}

// Start schedules the first cycle one interval from now. Cycles repeat until ctx is canceled.
func (p *Poller) Start(ctx context.Context) {
	context.AfterFunc(ctx, p.stop)

	logger.InfoKV(ctx, "Power-good polling started", "interval", p.opts.Interval.String(), "channels", len(p.opts.Channels))

	p.schedule(ctx)
}

// Sample reads the status byte of one channel and tests both power-good bits.
func (p *Poller) Sample(ctx context.Context, ch Channel) (bool, error) {
	resp, err := p.transport.Send(ctx, ipmb.Request{
		Host:    ch.Host,
		NetFn:   p.opts.NetFn,
		LUN:     p.opts.LUN,
		Cmd:     p.opts.Cmd,
		Payload: p.opts.Payload,
	})
	if err != nil {
		return false, err
	}

	status, err := ipmb.ByteAt(resp, p.opts.StatusOffset)
	if err != nil {
		return false, err
	}

	return PowerGood(status, p.opts.CPUMask, p.opts.PCHMask), nil
}

// PowerGood reports whether both the CPU and the chipset bits are set in status.
func PowerGood(status, cpuMask, pchMask uint8) bool {
	return status&cpuMask != 0 && status&pchMask != 0
}

// cycle samples and publishes every channel, then schedules the next cycle.
func (p *Poller) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()

	for _, ch := range p.opts.Channels {
		chCtx := logger.WithKV(ctx, "property", ch.Property)

		good, err := p.Sample(chCtx, ch)
		if err != nil {
			logger.ErrorKV(chCtx, "Power-good sample failed", "host", ch.Host, "error", err)
			p.recorder.SampleFailed(ch.Property, err)

			continue
		}

		if err = p.sink.SetProperty(chCtx, ch.Property, good); err != nil {
			logger.ErrorKV(chCtx, "Failed to publish power-good", "error", err)
		}
	}

	p.recorder.CycleCompleted(time.Since(started))

	p.schedule(ctx)
}

// schedule arms the single cycle timer unless ctx is done.
func (p *Poller) schedule(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	p.timer = p.scheduler.AfterFunc(p.opts.Interval, func() {
		p.cycle(ctx)
	})
}

// stop cancels the pending cycle.
func (p *Poller) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// nopRecorder discards observations.
type nopRecorder struct{}

func (nopRecorder) SampleFailed(string, error) {}

func (nopRecorder) CycleCompleted(time.Duration) {}
