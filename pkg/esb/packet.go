package esb

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MaxPayloadLength = 32

	sizeBits  = 6
	pidBits   = 2
	noAckBits = 1
	pcfBits   = sizeBits + pidBits + noAckBits
)

// Preamble precedes every over-the-air packet.  Receivers see 0x55 or 0xAA
// depending on the first address bit; both contain this pattern.
var Preamble = []byte{0, 1, 0, 1, 0, 1, 0, 1}

var (
	ErrNoPacket         = errors.New("no valid packet found")
	ErrPayloadTooLong   = errors.New("payload too long")
	ErrInvalidPID       = errors.New("invalid packet id")
	ErrInvalidCRCLength = errors.New("invalid crc length")
)

// Packet is an Enhanced ShockBurst packet.  Frequency and Timestamp are set by
// the receiver and are not part of the frame.
type Packet struct {
	Address []byte
	PID     uint8
	NoAck   bool
	Payload []byte
	CRC     []byte

	Frequency int
	Timestamp time.Time
}

// NewPacket builds a packet and computes its CRC.  crcLength is in bytes.
func NewPacket(address, payload []byte, pid uint8, noAck bool, crcLength int) (*Packet, error) {
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(payload))
	}
	if pid > 3 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}

	p := &Packet{
		Address: append([]byte(nil), address...),
		PID:     pid,
		NoAck:   noAck,
		Payload: append([]byte(nil), payload...),
	}

	crc, err := checksum(p.headerAndPayloadBits(), crcLength)
	if err != nil {
		return nil, err
	}
	p.CRC = crc

	return p, nil
}

func (p *Packet) Size() int {
	return len(p.Payload)
}

func (p *Packet) IsAck() bool {
	return len(p.Payload) == 0
}

func (p *Packet) AddressString() string {
	return hex.EncodeToString(p.Address)
}

func (p *Packet) PayloadString() string {
	return hex.EncodeToString(p.Payload)
}

// Bits returns the frame without preamble, one bit per byte.
func (p *Packet) Bits() []byte {
	return appendBytes(p.headerAndPayloadBits(), p.CRC)
}

func (p *Packet) headerAndPayloadBits() []byte {
	bits := make([]byte, 0, (len(p.Address)+len(p.Payload)+len(p.CRC))*8+pcfBits)
	bits = appendBytes(bits, p.Address)
	bits = appendUint(bits, uint(len(p.Payload)), sizeBits)
	bits = appendUint(bits, uint(p.PID), pidBits)
	if p.NoAck {
		bits = append(bits, 1)
	} else {
		bits = append(bits, 0)
	}
	return appendBytes(bits, p.Payload)
}

func (p *Packet) String() string {
	if p.IsAck() {
		return p.AddressString() + " - ACK"
	}

	bytes := make([]string, len(p.Payload))
	for i, b := range p.Payload {
		bytes[i] = fmt.Sprintf("%02x", b)
	}
	return p.AddressString() + " - " + strings.Join(bytes, " ")
}

type DecodeOptions struct {
	// AddressLength in bytes, 3 to 5 on real hardware.
	AddressLength int
	// CRCLength in bytes, 1 or 2.
	CRCLength int
	// Raw searches the stream for preambles.  Otherwise the stream is expected
	// to start with a preamble, which is skipped without being checked.
	Raw bool
	// Tries bounds how many preamble candidates are checked.
	Tries int
}

func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		AddressLength: 5,
		CRCLength:     2,
		Raw:           true,
		Tries:         8,
	}
}

func (o DecodeOptions) validate() error {
	if o.CRCLength != 1 && o.CRCLength != 2 {
		return fmt.Errorf("%w: %d", ErrInvalidCRCLength, o.CRCLength)
	}
	if o.AddressLength <= 0 {
		return fmt.Errorf("address length must be positive, got %d", o.AddressLength)
	}
	return nil
}

// Decode looks for a valid packet in a stream of bits, one per byte.  Candidates
// are taken in stream order and the first one with a matching CRC wins.
func Decode(bits []byte, opts DecodeOptions) (*Packet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var candidates []int
	if opts.Raw {
		candidates = searchPreamble(bits, opts.Tries)
	} else {
		candidates = []int{0}
	}

	for _, idx := range candidates {
		if p := decodeAt(bits, idx+len(Preamble), opts); p != nil {
			return p, nil
		}
	}

	return nil, ErrNoPacket
}

// DecodeAll returns every packet found in a long recording.  Scanning resumes
// after the end of each decoded frame; Raw and Tries are ignored.
func DecodeAll(bits []byte, opts DecodeOptions) ([]*Packet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var ret []*Packet
	for i := 0; i+len(Preamble) <= len(bits); i++ {
		if !preambleAt(bits, i) {
			continue
		}
		p := decodeAt(bits, i+len(Preamble), opts)
		if p == nil {
			continue
		}
		ret = append(ret, p)
		i += len(Preamble) + len(p.Bits()) - 1
	}
	return ret, nil
}

func decodeAt(bits []byte, addrIdx int, opts DecodeOptions) *Packet {
	sizeIdx := addrIdx + opts.AddressLength*8
	pidIdx := sizeIdx + sizeBits
	noAckIdx := pidIdx + pidBits
	payloadIdx := noAckIdx + noAckBits

	if payloadIdx > len(bits) {
		return nil
	}
	size := int(readUint(bits[sizeIdx:pidIdx]))
	if size > MaxPayloadLength {
		return nil
	}

	crcIdx := payloadIdx + size*8
	endIdx := crcIdx + opts.CRCLength*8
	if endIdx > len(bits) {
		return nil
	}

	// only the checksum decides, CRC lengths were validated by the caller
	calculated, _ := checksum(bits[addrIdx:crcIdx], opts.CRCLength)
	received := packBits(bits[crcIdx:endIdx])
	for i := range calculated {
		if calculated[i] != received[i] {
			return nil
		}
	}

	return &Packet{
		Address: packBits(bits[addrIdx:sizeIdx]),
		PID:     uint8(readUint(bits[pidIdx:noAckIdx])),
		NoAck:   bits[noAckIdx] != 0,
		Payload: packBits(bits[payloadIdx:crcIdx]),
		CRC:     received,
	}
}

// searchPreamble returns up to limit offsets where the preamble starts.
// Matches may overlap.  A limit <= 0 returns all of them.
func searchPreamble(bits []byte, limit int) []int {
	var ret []int
	for i := 0; i+len(Preamble) <= len(bits); i++ {
		if !preambleAt(bits, i) {
			continue
		}
		ret = append(ret, i)
		if limit > 0 && len(ret) == limit {
			break
		}
	}
	return ret
}

func preambleAt(bits []byte, idx int) bool {
	for j, b := range Preamble {
		if bits[idx+j] != b {
			return false
		}
	}
	return true
}

func appendBytes(bits []byte, data []byte) []byte {
	for _, b := range data {
		bits = appendUint(bits, uint(b), 8)
	}
	return bits
}

func appendUint(bits []byte, v uint, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		bits = append(bits, byte(v>>uint(i))&1)
	}
	return bits
}

func readUint(bits []byte) uint {
	var v uint
	for _, b := range bits {
		v = v<<1 | uint(b&1)
	}
	return v
}

// packBits packs MSB first.  A trailing partial byte is padded with zeros.
func packBits(bits []byte) []byte {
	ret := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b != 0 {
			ret[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return ret
}
