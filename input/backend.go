package input

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type Backend interface {
	// Init should do nothing if called more than once.
	Init() error
	Close() error

	Devices() ([]Device, error)
	DefaultDevice() (Device, error)
	// Streams lists the streams currently available for cfg.
	Streams(SessionConfig) ([]StreamInfo, error)
	// Open opens a stream returned by Streams.
	Open(StreamInfo, SessionConfig) (Inlet, error)
}

type NamedBackend struct {
	Name string
	Backend
}

var Backends []NamedBackend

// RegisterBackend registers a backend globally. This function is not
// thread-safe, and most packages should call it on init().
func RegisterBackend(name string, b Backend) {
	Backends = append(Backends, NamedBackend{
		Name:    name,
		Backend: b,
	})
}

// Get all installed backend names.
func GetAllBackendNames() []string {
	out := make([]string, len(Backends))
	for i, backend := range Backends {
		out[i] = backend.Name
	}
	return out
}

// DefaultBackend is the backend used when none is named.
func DefaultBackend() string {
	if HasBackend("synthetic") {
		return "synthetic"
	}

	if len(Backends) > 0 {
		return Backends[0].Name
	}

	return ""
}

// FindBackend is a helper function that finds a backend. It returns nil if the
// backend is not found.
func FindBackend(name string) Backend {
	for _, backend := range Backends {
		if backend.Name == name {
			return backend.Backend
		}
	}
	return nil
}

func HasBackend(name string) bool {
	return FindBackend(name) != nil
}

func InitBackend(bknd string) (Backend, error) {
	backend := FindBackend(bknd)
	if backend == nil {
		return nil, fmt.Errorf("backend not found: %q; check list-backends", bknd)
	}

	if err := backend.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize input backend")
	}

	return backend, nil
}

func GetDevice(backend Backend, device string) (Device, error) {
	if device == "" {
		def, err := backend.DefaultDevice()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get default device")
		}
		return def, nil
	}

	devices, err := backend.Devices()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get devices")
	}

	for idx := range devices {
		if devices[idx].String() == device {
			return devices[idx], nil
		}
	}

	return nil, errors.Errorf("device %q not found; check list-devices", device)
}

// resolveInterval is how often Resolve asks the backend for streams again.
const resolveInterval = 100 * time.Millisecond

// Resolve opens the first stream of streamType the backend offers. It keeps
// asking until a stream shows up or ctx ends, in which case the error wraps
// ErrNoStream and the last backend error, if any.
func Resolve(ctx context.Context, backend Backend, cfg SessionConfig, streamType string) (Inlet, error) {
	ticker := time.NewTicker(resolveInterval)
	defer ticker.Stop()

	var lastErr error

	for {
		streams, err := backend.Streams(cfg)
		if err != nil {
			lastErr = err
		}

		for _, info := range streams {
			if info.Type != streamType {
				continue
			}

			inlet, err := backend.Open(info, cfg)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to open stream %q", info.Name)
			}

			return inlet, nil
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, errors.Wrapf(ErrNoStream, "type %q: %v", streamType, lastErr)
			}
			return nil, errors.Wrapf(ErrNoStream, "type %q", streamType)
		case <-ticker.C:
		}
	}
}
