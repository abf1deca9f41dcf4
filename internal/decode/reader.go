package decode

import (
	"fmt"
	"strings"
)

// Reader provides bounds-checked, stateless access to a fixed frame of
// bytes. Every method takes its offset explicitly — callers track their
// own cursor — and every read that would cross the frame boundary fails
// with ErrFrameTruncated rather than panicking.
type Reader struct {
	frame []byte
}

// NewReader wraps frame for bounds-checked reads. frame is not copied;
// callers must not mutate it while the Reader is in use.
func NewReader(frame []byte) *Reader {
	return &Reader{frame: frame}
}

// Len returns the total length of the underlying frame.
func (r *Reader) Len() int {
	return len(r.frame)
}

func (r *Reader) checkBounds(off, length int) error {
	if off < 0 || length < 0 || off+length > len(r.frame) {
		return fmt.Errorf("%w: offset %d length %d exceeds frame length %d", ErrFrameTruncated, off, length, len(r.frame))
	}
	return nil
}

// ReadU8 reads a single unsigned byte at off.
func (r *Reader) ReadU8(off int) (byte, error) {
	if err := r.checkBounds(off, 1); err != nil {
		return 0, err
	}
	return r.frame[off], nil
}

// ReadU16BE reads a big-endian 16-bit unsigned integer at off.
func (r *Reader) ReadU16BE(off int) (uint16, error) {
	if err := r.checkBounds(off, 2); err != nil {
		return 0, err
	}
	return uint16(r.frame[off])<<8 | uint16(r.frame[off+1]), nil
}

// ReadU32BE reads a big-endian 32-bit unsigned integer at off.
func (r *Reader) ReadU32BE(off int) (uint32, error) {
	if err := r.checkBounds(off, 4); err != nil {
		return 0, err
	}
	return uint32(r.frame[off])<<24 | uint32(r.frame[off+1])<<16 |
		uint32(r.frame[off+2])<<8 | uint32(r.frame[off+3]), nil
}

// ReadBytes returns a copy of length bytes starting at off.
func (r *Reader) ReadBytes(off, length int) ([]byte, error) {
	if err := r.checkBounds(off, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, r.frame[off:off+length])
	return out, nil
}

// ReadDecimalFixed2 reads two bytes "a.b" — an integer part and a
// fractional part each in 0-99 — and returns a + b/100. Used throughout
// the family-B temperature/humidity frame layout.
func (r *Reader) ReadDecimalFixed2(off int) (float64, error) {
	whole, err := r.ReadU8(off)
	if err != nil {
		return 0, err
	}
	frac, err := r.ReadU8(off + 1)
	if err != nil {
		return 0, err
	}
	return float64(whole) + float64(frac)/100, nil
}

// ReadIPv4 reads 4 bytes at off and formats them as a dotted-quad string.
func (r *Reader) ReadIPv4(off int) (string, error) {
	b, err := r.ReadBytes(off, 4)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3]), nil
}

// ReadMAC reads 6 bytes at off and formats them as a colon-separated hex
// MAC address.
func (r *Reader) ReadMAC(off int) (string, error) {
	b, err := r.ReadBytes(off, 6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[0], b[1], b[2], b[3], b[4], b[5]), nil
}

// ReadHexString reads length bytes at off and renders them as an
// uppercase hex string (no separators) — used for RFID tag IDs.
func (r *Reader) ReadHexString(off, length int) (string, error) {
	b, err := r.ReadBytes(off, length)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(length * 2)
	for _, x := range b {
		fmt.Fprintf(&sb, "%02X", x)
	}
	return sb.String(), nil
}
