// Package parec captures a multi-channel PulseAudio source, such as a sound
// card based biosignal amplifier, through the parec command.
package parec

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/lawl/pulseaudio"
	"github.com/noriah/brainwave/input"
	"github.com/noriah/brainwave/input/common/framereader"
	"github.com/pkg/errors"
)

func init() {
	input.RegisterBackend("parec", Backend{})
}

// maxChannels is the PulseAudio channel map limit.
const maxChannels = 32

type Backend struct{}

func (p Backend) Init() error {
	return nil
}

func (p Backend) Close() error {
	return nil
}

func (p Backend) Devices() ([]input.Device, error) {
	c, err := pulseaudio.NewClient()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create client")
	}
	defer c.Close()

	s, err := c.Sources()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sources")
	}

	var devices = make([]input.Device, len(s))
	for i, source := range s {
		devices[i] = PulseDevice(source.Name)
	}

	return devices, nil
}

func (p Backend) DefaultDevice() (input.Device, error) {
	return PulseDevice("default"), nil
}

// Streams offers one stream per configured device. The stream is only listed
// when the parec command is installed.
func (p Backend) Streams(cfg input.SessionConfig) ([]input.StreamInfo, error) {
	if _, err := exec.LookPath("parec"); err != nil {
		return nil, errors.Wrap(err, "parec not available")
	}

	dv, err := device(cfg)
	if err != nil {
		return nil, err
	}

	return []input.StreamInfo{{
		Name:         "parec:" + dv.String(),
		Type:         cfg.StreamType,
		SourceID:     dv.String(),
		ChannelCount: cfg.ChannelCount,
		SampleRate:   cfg.SampleRate,
	}}, nil
}

func (p Backend) Open(info input.StreamInfo, cfg input.SessionConfig) (input.Inlet, error) {
	dv, err := device(cfg)
	if err != nil {
		return nil, err
	}

	return NewSession(info, dv)
}

func device(cfg input.SessionConfig) (PulseDevice, error) {
	if cfg.Device == nil {
		return PulseDevice("default"), nil
	}

	dv, ok := cfg.Device.(PulseDevice)
	if !ok {
		return "", fmt.Errorf("invalid device type %T", cfg.Device)
	}

	return dv, nil
}

type PulseDevice string

func (d PulseDevice) String() string {
	return string(d)
}

// NewSession starts parec and returns an inlet over its output.
func NewSession(info input.StreamInfo, dv PulseDevice) (*framereader.Inlet, error) {
	if info.ChannelCount > maxChannels {
		return nil, errors.Errorf("channel count not supported, %d max", maxChannels)
	}

	cmd := exec.Command(
		"parec",
		"--format=float32le",
		fmt.Sprintf("--rate=%.0f", info.SampleRate),
		fmt.Sprintf("--channels=%d", info.ChannelCount),
		"-d", dv.String(),
	)

	cmd.Stderr = os.Stderr

	o, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get stdout pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start parec")
	}

	return framereader.New(info, &process{ReadCloser: o, cmd: cmd}, true), nil
}

// process closes the pipe and reaps the command.
type process struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *process) Close() error {
	p.ReadCloser.Close()

	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}

	// parec exits on the kill, so the wait error says nothing new.
	p.cmd.Wait()

	return nil
}
