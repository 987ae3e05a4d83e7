package esb

import "fmt"

const (
	crc8Poly  = 0x107
	crc8Init  = 0xff
	crc16Poly = 0x11021
	crc16Init = 0xffff
)

// CRC8 runs bit by bit, MSB first, over a stream of one bit per byte.  ESB
// frames are not byte aligned after the 9 bit packet control field, so the
// usual table driven form does not apply.
func CRC8(bits []byte) uint8 {
	return uint8(crc(bits, crc8Poly, crc8Init, 8))
}

func CRC16(bits []byte) uint16 {
	return uint16(crc(bits, crc16Poly, crc16Init, 16))
}

func crc(bits []byte, poly, init uint32, width uint) uint32 {
	mask := uint32(1)<<width - 1
	top := width - 1
	c := init
	for _, b := range bits {
		if (c>>top)&1 != uint32(b&1) {
			c = ((c << 1) ^ poly) & mask
		} else {
			c = (c << 1) & mask
		}
	}
	return c
}

// checksum returns the CRC of bits as big endian bytes.
func checksum(bits []byte, length int) ([]byte, error) {
	switch length {
	case 1:
		return []byte{CRC8(bits)}, nil
	case 2:
		v := CRC16(bits)
		return []byte{byte(v >> 8), byte(v)}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidCRCLength, length)
	}
}
