package volume

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"volume-watcher/internal/domain"
)

const defaultSink = "@DEFAULT_SINK@"

// PulseDevice implements domain.AudioDevice and domain.CallStateReader on a
// PulseAudio (or PipeWire-pulse) server. The music stream maps to the default sink.
type PulseDevice struct {
	mu     sync.Mutex
	client *pulse.Client
}

// NewPulseDevice connects to the sound server.
func NewPulseDevice() (*PulseDevice, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("volume-watcher"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &PulseDevice{client: c}, nil
}

func (p *PulseDevice) sinkInfo() (*proto.GetSinkInfoReply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var info proto.GetSinkInfoReply
	err := p.client.RawRequest(&proto.GetSinkInfo{SinkIndex: proto.Undefined, SinkName: defaultSink}, &info)
	if err != nil {
		return nil, fmt.Errorf("pulse sink info: %w", err)
	}
	return &info, nil
}

// StreamVolume returns the default sink volume as a percentage of the
// nominal volume. A muted sink reads as zero.
func (p *PulseDevice) StreamVolume(stream domain.Stream) (int, error) {
	if stream != domain.StreamMusic {
		return 0, fmt.Errorf("unsupported stream %q", stream)
	}
	info, err := p.sinkInfo()
	if err != nil {
		return 0, err
	}
	if info.Mute {
		return 0, nil
	}
	return percent(info.ChannelVolumes), nil
}

// HeadsetConnected reports whether the default sink is a bluetooth device or
// routes to a headphone/headset port.
func (p *PulseDevice) HeadsetConnected() (bool, error) {
	info, err := p.sinkInfo()
	if err != nil {
		return false, err
	}
	return isHeadset(info.SinkName, info.ActivePortName), nil
}

// Mute sets every channel of the default sink to zero.
func (p *PulseDevice) Mute(stream domain.Stream) error {
	if stream != domain.StreamMusic {
		return fmt.Errorf("unsupported stream %q", stream)
	}
	info, err := p.sinkInfo()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	zero := make(proto.ChannelVolumes, len(info.ChannelVolumes))
	err = p.client.RawRequest(&proto.SetSinkVolume{
		SinkIndex:      info.SinkIndex,
		ChannelVolumes: zero,
	}, nil)
	if err != nil {
		return fmt.Errorf("pulse set sink volume: %w", err)
	}
	return nil
}

// CallActive reports whether any playback stream carries the phone media role.
func (p *PulseDevice) CallActive() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var inputs proto.GetSinkInputInfoListReply
	if err := p.client.RawRequest(&proto.GetSinkInputInfoList{}, &inputs); err != nil {
		return false, fmt.Errorf("pulse sink inputs: %w", err)
	}
	for _, in := range inputs {
		if role, ok := in.Properties["media.role"]; ok && role.String() == "phone" {
			return true, nil
		}
	}
	return false, nil
}

// Close releases the server connection.
func (p *PulseDevice) Close() {
	p.client.Close()
}

func percent(volumes proto.ChannelVolumes) int {
	if len(volumes) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range volumes {
		sum += uint64(v)
	}
	avg := sum / uint64(len(volumes))
	return int((avg*100 + uint64(proto.VolumeNorm)/2) / uint64(proto.VolumeNorm))
}

func isHeadset(sinkName, activePort string) bool {
	if strings.HasPrefix(sinkName, "bluez_") {
		return true
	}
	port := strings.ToLower(activePort)
	return strings.Contains(port, "headphone") || strings.Contains(port, "headset")
}
