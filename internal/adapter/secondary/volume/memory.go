package volume

import (
	"context"
	"sync"

	"volume-watcher/internal/core"
	"volume-watcher/internal/domain"
)

// MemoryDevice is an in-process audio device and signal source. Every state
// change is pushed to running subscribers the way the OS would broadcast it.
// It backs the interactive shell and tests.
type MemoryDevice struct {
	mu          sync.Mutex
	level       int
	headset     bool
	call        bool
	unreadable  bool
	mutes       int
	subscribers map[int]subscriber
	nextID      int
}

type subscriber struct {
	emit func(domain.RawSignal)
	fail chan error
}

// NewMemoryDevice creates a device at the given music volume.
func NewMemoryDevice(level int) *MemoryDevice {
	return &MemoryDevice{level: level, subscribers: map[int]subscriber{}}
}

func (d *MemoryDevice) StreamVolume(stream domain.Stream) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unreadable {
		return 0, domain.ErrFacilityUnavailable
	}
	return d.level, nil
}

func (d *MemoryDevice) HeadsetConnected() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.headset, nil
}

func (d *MemoryDevice) CallActive() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.call, nil
}

// Mute drops the level to zero. The change is broadcast from another
// goroutine since Mute is called by the event worker itself.
func (d *MemoryDevice) Mute(stream domain.Stream) error {
	d.mu.Lock()
	d.mutes++
	d.level = 0
	d.unreadable = false
	d.mu.Unlock()
	go d.broadcast(core.VolumeSignal(domain.StreamMusic, 0))
	return nil
}

// Mutes returns how many mute requests were received.
func (d *MemoryDevice) Mutes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mutes
}

// SetVolume changes the level. A negative level makes reads fail and
// broadcasts an unreadable sample.
func (d *MemoryDevice) SetVolume(level int) {
	d.mu.Lock()
	d.unreadable = level < 0
	if level >= 0 {
		d.level = level
	}
	d.mu.Unlock()
	d.broadcast(core.VolumeSignal(domain.StreamMusic, level))
}

func (d *MemoryDevice) SetHeadset(connected bool) {
	d.mu.Lock()
	d.headset = connected
	d.mu.Unlock()
	d.broadcast(core.HeadsetSignal(connected))
}

func (d *MemoryDevice) SetCall(active bool) {
	d.mu.Lock()
	d.call = active
	d.mu.Unlock()
	d.broadcast(core.PhoneSignal(active))
}

// Emit broadcasts an arbitrary raw signal.
func (d *MemoryDevice) Emit(sig domain.RawSignal) {
	d.broadcast(sig)
}

// Fail makes every running subscription end with err.
func (d *MemoryDevice) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, sub := range d.subscribers {
		sub.fail <- err
		delete(d.subscribers, id)
	}
}

func (d *MemoryDevice) broadcast(sig domain.RawSignal) {
	d.mu.Lock()
	subs := make([]subscriber, 0, len(d.subscribers))
	for _, sub := range d.subscribers {
		subs = append(subs, sub)
	}
	d.mu.Unlock()
	for _, sub := range subs {
		sub.emit(sig)
	}
}

func (d *MemoryDevice) Name() string { return "memory-device" }

// Run delivers broadcasts to emit until ctx is cancelled or Fail is called.
func (d *MemoryDevice) Run(ctx context.Context, emit func(domain.RawSignal)) error {
	sub := subscriber{emit: emit, fail: make(chan error, 1)}
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subscribers[id] = sub
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
		return ctx.Err()
	case err := <-sub.fail:
		return err
	}
}
