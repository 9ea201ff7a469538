package solana

import "moff.io/moff-wallet/pkg/errors"

var ErrShortBuffer = errors.New("unexpected end of transaction data")

// decodeCompactU16 reads the 1 to 3 byte little endian base-128 length prefix used by the wire format.
func decodeCompactU16(data []byte) (int, int, error) {
	value := 0
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, ErrShortBuffer
		}
		b := data[i]
		if i == 2 && b > 0x03 {
			return 0, 0, errors.New("compact-u16 overflow")
		}
		value |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			if i > 0 && b == 0 {
				return 0, 0, errors.New("compact-u16 is not minimally encoded")
			}
			return value, i + 1, nil
		}
	}
	return 0, 0, errors.New("compact-u16 overflow")
}

func encodeCompactU16(value int) []byte {
	var out []byte
	for {
		b := byte(value & 0x7f)
		value >>= 7
		if value == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) u8() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, ErrShortBuffer
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, ErrShortBuffer
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) compactU16() (int, error) {
	v, n, err := decodeCompactU16(r.data[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

func (r *reader) publicKey() (PublicKey, error) {
	var key PublicKey
	b, err := r.bytes(PublicKeyLength)
	if err != nil {
		return key, err
	}
	copy(key[:], b)
	return key, nil
}

// byteList reads a compact-u16 prefixed list of u8.
func (r *reader) byteList() ([]uint8, error) {
	n, err := r.compactU16()
	if err != nil {
		return nil, err
	}
	b, err := r.bytes(n)
	if err != nil {
		return nil, err
	}
	return append([]uint8{}, b...), nil
}
