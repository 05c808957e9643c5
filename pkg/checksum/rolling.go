// Package checksum implements the block checksums used for delta transfer:
// an rsync-style rolling weak checksum, a BLAKE2b strong checksum, block
// signatures and delta matching against them.
package checksum

// Weak returns the 32-bit rolling checksum of p. The low half is the byte sum
// and the high half the position-weighted sum, both mod 2^16.
func Weak(p []byte) uint32 {
	a, b := sums(p)
	return pack(a, b)
}

func sums(p []byte) (a, b uint32) {
	n := uint32(len(p))
	for i, c := range p {
		a += uint32(c)
		b += (n - uint32(i)) * uint32(c)
	}
	return a, b
}

func pack(a, b uint32) uint32 {
	return (a & 0xffff) | (b&0xffff)<<16
}

// Rolling keeps the weak checksum of a fixed-size window and updates it in
// constant time as the window slides one byte forward.
type Rolling struct {
	a, b   uint32
	window []byte
	head   int
}

func NewRolling(window []byte) *Rolling {
	r := &Rolling{}
	r.Reset(window)
	return r
}

// Reset replaces the window contents and recomputes the sums.
func (r *Rolling) Reset(window []byte) {
	r.window = append(r.window[:0], window...)
	r.head = 0
	r.a, r.b = sums(window)
}

// Roll drops the oldest byte of the window and appends in.
func (r *Rolling) Roll(in byte) {
	if len(r.window) == 0 {
		return
	}
	out := uint32(r.window[r.head])
	n := uint32(len(r.window))

	r.a += uint32(in) - out
	r.b += r.a - n*out

	r.window[r.head] = in
	r.head++
	if r.head == len(r.window) {
		r.head = 0
	}
}

func (r *Rolling) Sum32() uint32 {
	return pack(r.a, r.b)
}

func (r *Rolling) Len() int {
	return len(r.window)
}
