package stdinput

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// pump reads src for the life of the process and hands whole frames to the
// session reader that is open. Stdin cannot be reopened, so sessions share
// it through here instead of closing it.
type pump struct {
	src       io.Reader
	frameSize int
	frames    chan []byte

	start sync.Once
	err   error // set before frames is closed
}

func newPump(src io.Reader, frameSize int) *pump {
	return &pump{
		src:       src,
		frameSize: frameSize,
		frames:    make(chan []byte),
	}
}

func (p *pump) run() {
	defer close(p.frames)

	for {
		frame := make([]byte, p.frameSize)
		if _, err := io.ReadFull(p.src, frame); err != nil {
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				p.err = err
			}
			return
		}
		p.frames <- frame
	}
}

// reader returns a reader over the next frames. Closing it leaves src open.
func (p *pump) reader() *sessionReader {
	p.start.Do(func() { go p.run() })

	return &sessionReader{
		p:    p,
		done: make(chan struct{}),
	}
}

type sessionReader struct {
	p      *pump
	buf    []byte
	done   chan struct{}
	closer sync.Once
}

func (r *sessionReader) Read(b []byte) (int, error) {
	if len(r.buf) == 0 {
		select {
		case <-r.done:
			return 0, io.EOF
		default:
		}

		select {
		case <-r.done:
			return 0, io.EOF

		case frame, ok := <-r.p.frames:
			if !ok {
				if r.p.err != nil {
					return 0, r.p.err
				}
				return 0, io.EOF
			}
			r.buf = frame
		}
	}

	n := copy(b, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *sessionReader) Close() error {
	r.closer.Do(func() { close(r.done) })
	return nil
}
