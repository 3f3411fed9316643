package cyton

import (
	"bufio"
	"fmt"
	"io"
)

// Packet layout, see https://docs.openbci.com/Cyton/CytonDataFormat/
const (
	PacketSize = 33

	headerByte = 0xA0
	footerMin  = 0xC0
	footerMax  = 0xC6

	channelsPerBoard = 8
)

// ScaleFactor converts raw counts to uV: 4.5 V reference, gain 24, 24 bits.
const ScaleFactor = 4500000.0 / 24.0 / float64((1<<23)-1)

// Packet is one decoded board packet.
type Packet struct {
	ID       byte
	Channels [channelsPerBoard]float64 // uV
	Aux      [3]int16
	Footer   byte
}

// OutOfSyncError is returned when a packet does not end in a footer byte.
type OutOfSyncError struct {
	ByteSequence []byte
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("[cyton] incorrect footer detected: %v", e.ByteSequence)
}

// Decoder reads packets from a byte stream.
type Decoder struct {
	r   *bufio.Reader
	buf [PacketSize]byte
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, PacketSize*8)}
}

// Next returns the next packet. Bytes before a header are skipped. A packet
// with a bad footer returns *OutOfSyncError; the following call resyncs on
// the next header.
func (d *Decoder) Next() (Packet, error) {
	if err := d.sync(); err != nil {
		return Packet{}, err
	}

	d.buf[0] = headerByte
	if _, err := io.ReadFull(d.r, d.buf[1:]); err != nil {
		return Packet{}, err
	}

	footer := d.buf[PacketSize-1]
	if footer < footerMin || footer > footerMax {
		seq := make([]byte, PacketSize)
		copy(seq, d.buf[:])
		return Packet{}, &OutOfSyncError{ByteSequence: seq}
	}

	return decode(d.buf[:]), nil
}

func (d *Decoder) sync() error {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return err
		}

		if b == headerByte {
			return nil
		}
	}
}

func decode(raw []byte) Packet {
	p := Packet{
		ID:     raw[1],
		Footer: raw[PacketSize-1],
	}

	for ch := range p.Channels {
		off := 2 + ch*3
		p.Channels[ch] = float64(int24(raw[off:off+3])) * ScaleFactor
	}

	for idx := range p.Aux {
		off := 26 + idx*2
		p.Aux[idx] = int16(uint16(raw[off])<<8 | uint16(raw[off+1]))
	}

	return p
}

// int24 reads a big-endian two's complement 24 bit value.
func int24(b []byte) int32 {
	v := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

// merger pairs board and daisy packets into 16 channel samples. The board
// sends odd ids and the daisy the even id that follows.
type merger struct {
	held    Packet
	holding bool
}

func (m *merger) add(p Packet) ([]float64, bool) {
	if p.ID%2 == 1 {
		m.held = p
		m.holding = true
		return nil, false
	}

	if !m.holding || p.ID != m.held.ID+1 {
		m.holding = false
		return nil, false
	}

	m.holding = false

	values := make([]float64, 0, channelsPerBoard*2)
	values = append(values, m.held.Channels[:]...)
	values = append(values, p.Channels[:]...)

	return values, true
}
