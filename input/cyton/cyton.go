// Package cyton reads an OpenBCI Cyton board, with or without the Daisy
// module, over its USB serial dongle.
package cyton

import (
	"io"
	"sync"
	"time"

	"github.com/noriah/brainwave/input"
	"github.com/noriah/brainwave/input/common/framereader"
	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	BaudRate = 115200

	// board commands.
	cmdReset = 'v'
	cmdStart = 'b'
	cmdStop  = 's'

	// BoardRate is the board's packet rate. With the Daisy attached each
	// merged sample takes two packets.
	BoardRate = 250.0

	readTimeout = 100 * time.Millisecond
	resetWait   = 500 * time.Millisecond
)

var defaultBackend = &Backend{logger: zap.NewNop()}

func init() {
	input.RegisterBackend("cyton", defaultBackend)
}

// SetLogger sets the logger of the registered backend.
func SetLogger(logger *zap.Logger) {
	defaultBackend.mu.Lock()
	defaultBackend.logger = logger
	defaultBackend.mu.Unlock()
}

type Backend struct {
	mu     sync.Mutex
	logger *zap.Logger
}

func (b *Backend) Init() error {
	return nil
}

func (b *Backend) Close() error {
	return nil
}

func (b *Backend) log() *zap.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logger
}

func (b *Backend) Devices() ([]input.Device, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list serial ports")
	}

	devices := make([]input.Device, len(ports))
	for idx, port := range ports {
		devices[idx] = Port(port)
	}

	return devices, nil
}

func (b *Backend) DefaultDevice() (input.Device, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list serial ports")
	}

	if len(ports) == 0 {
		return nil, errors.New("no serial ports found")
	}

	return Port(ports[0]), nil
}

// Streams offers one stream for the configured port if it is present.
func (b *Backend) Streams(cfg input.SessionConfig) ([]input.StreamInfo, error) {
	port, err := b.port(cfg)
	if err != nil {
		return nil, err
	}

	return []input.StreamInfo{StreamInfo(port, cfg)}, nil
}

// StreamInfo describes the stream a board on port produces. More than eight
// channels means the Daisy is attached and halves the sample rate.
func StreamInfo(port Port, cfg input.SessionConfig) input.StreamInfo {
	info := input.StreamInfo{
		Name:         "OpenBCI Cyton",
		Type:         cfg.StreamType,
		SourceID:     "cyton:" + string(port),
		ChannelCount: channelsPerBoard,
		SampleRate:   BoardRate,
	}

	if cfg.ChannelCount > channelsPerBoard {
		info.Name = "OpenBCI Cyton+Daisy"
		info.ChannelCount = channelsPerBoard * 2
		info.SampleRate = BoardRate / 2
	}

	return info
}

func (b *Backend) port(cfg input.SessionConfig) (Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", errors.Wrap(err, "failed to list serial ports")
	}

	if cfg.Device == nil {
		if len(ports) == 0 {
			return "", errors.New("no serial ports found")
		}
		return Port(ports[0]), nil
	}

	want := cfg.Device.String()
	for _, port := range ports {
		if port == want {
			return Port(port), nil
		}
	}

	return "", errors.Errorf("serial port %q not present", want)
}

func (b *Backend) Open(info input.StreamInfo, cfg input.SessionConfig) (input.Inlet, error) {
	name, err := b.port(cfg)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(string(name), &serial.Mode{BaudRate: BaudRate})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %q", name)
	}

	if err := start(port); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "failed to start board on %q", name)
	}

	logger := b.log().With(zap.String("portName", string(name)))
	logger.Info("[cyton] streaming started", zap.Int("channels", info.ChannelCount))

	return NewInlet(info, &boardPort{port: port, done: make(chan struct{})}, logger), nil
}

// start resets the board, drops its banner and starts streaming.
func start(port serial.Port) error {
	if err := port.SetReadTimeout(readTimeout); err != nil {
		return err
	}

	if _, err := port.Write([]byte{cmdReset}); err != nil {
		return err
	}

	time.Sleep(resetWait)

	if err := port.ResetInputBuffer(); err != nil {
		return err
	}

	_, err := port.Write([]byte{cmdStart})
	return err
}

// NewInlet decodes packets from rc. Boards with the Daisy attached have
// their packet pairs merged into one sample.
func NewInlet(info input.StreamInfo, rc io.ReadCloser, logger *zap.Logger) *framereader.Inlet {
	dec := NewDecoder(rc)
	daisy := info.ChannelCount > channelsPerBoard

	var merge merger

	return framereader.NewFunc(info, rc, func() ([]float64, error) {
		p, err := dec.Next()
		if err != nil {
			var oos *OutOfSyncError
			if errors.As(err, &oos) {
				logger.Warn("[cyton] resyncing serial stream",
					zap.Error(err), zap.ByteString("payload", oos.ByteSequence))
				return nil, nil
			}
			return nil, err
		}

		if !daisy {
			values := make([]float64, channelsPerBoard)
			copy(values, p.Channels[:])
			return values, nil
		}

		values, ok := merge.add(p)
		if !ok {
			return nil, nil
		}

		return values, nil
	})
}

// boardPort reads a serial port until closed. Serial reads time out with no
// data, which it retries so the decoder only sees data or an error.
type boardPort struct {
	port   serial.Port
	done   chan struct{}
	closer sync.Once
}

func (p *boardPort) Read(b []byte) (int, error) {
	for {
		select {
		case <-p.done:
			return 0, io.EOF
		default:
		}

		n, err := p.port.Read(b)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

// Close stops the board and closes the port.
func (p *boardPort) Close() error {
	var err error
	p.closer.Do(func() {
		close(p.done)
		p.port.Write([]byte{cmdStop})
		err = p.port.Close()
	})
	return err
}

// Port is a serial port name.
type Port string

func (p Port) String() string {
	return string(p)
}
