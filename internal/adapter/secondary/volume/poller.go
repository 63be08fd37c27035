package volume

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"volume-watcher/internal/core"
	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
)

const (
	// DefaultPollInterval is how often the poller samples the device.
	DefaultPollInterval = 250 * time.Millisecond
	// maxConsecutiveFailures ends the source so the service is restarted.
	maxConsecutiveFailures = 20
)

// Poller is a signal source for devices without change notifications. It
// samples volume, route and call state and emits a raw signal per change.
type Poller struct {
	audio    domain.AudioDevice
	calls    domain.CallStateReader
	interval time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a poller. calls may be nil.
func NewPoller(audio domain.AudioDevice, calls domain.CallStateReader, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{audio: audio, calls: calls, interval: interval, logger: logging.Component("poller")}
}

func (p *Poller) Name() string { return "audio-poller" }

// sample is one reading; the volume/headset/call flags mark what was readable.
type sample struct {
	volume, headset, call    bool
	level                    int
	headsetConnected, inCall bool
}

// Run polls until ctx is cancelled or the device stays unreachable.
func (p *Poller) Run(ctx context.Context, emit func(domain.RawSignal)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last sample
	failures := 0
	for {
		cur, err := p.sample()
		if err != nil {
			failures++
			p.logger.Debug().Err(err).Int("failures", failures).Msg("poll failed")
			if failures >= maxConsecutiveFailures {
				return fmt.Errorf("device unreachable after %d polls: %w", failures, err)
			}
		} else {
			failures = 0
		}

		if cur.volume && (!last.volume || cur.level != last.level) {
			emit(core.VolumeSignal(domain.StreamMusic, cur.level))
		}
		if cur.headset && (!last.headset || cur.headsetConnected != last.headsetConnected) {
			emit(core.HeadsetSignal(cur.headsetConnected))
		}
		if cur.call && (!last.call || cur.inCall != last.inCall) {
			emit(core.PhoneSignal(cur.inCall))
		}
		last = merge(last, cur)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sample reads whatever it can; err is the first read failure.
func (p *Poller) sample() (sample, error) {
	var s sample
	var firstErr error
	if level, err := p.audio.StreamVolume(domain.StreamMusic); err == nil {
		s.volume, s.level = true, level
	} else {
		firstErr = err
	}
	if connected, err := p.audio.HeadsetConnected(); err == nil {
		s.headset, s.headsetConnected = true, connected
	} else if firstErr == nil {
		firstErr = err
	}
	if p.calls != nil {
		if active, err := p.calls.CallActive(); err == nil {
			s.call, s.inCall = true, active
		} else if firstErr == nil {
			firstErr = err
		}
	}
	return s, firstErr
}

// merge keeps the previous reading for anything that failed to read.
func merge(prev, cur sample) sample {
	out := prev
	if cur.volume {
		out.volume, out.level = true, cur.level
	}
	if cur.headset {
		out.headset, out.headsetConnected = true, cur.headsetConnected
	}
	if cur.call {
		out.call, out.inCall = true, cur.inCall
	}
	return out
}
