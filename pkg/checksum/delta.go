package checksum

import (
	"bytes"
	"fmt"
)

// Literal marks an Op that carries raw bytes instead of a block reference.
const Literal = -1

// Op is one instruction of a delta: either copy block Block of the base
// file, or, when Block is Literal, write Data.
type Op struct {
	Block int    `json:"block"`
	Data  []byte `json:"data,omitempty"`
}

// Match scans target for runs that equal blocks of the signed base file and
// returns the ops that rebuild target from the base plus literal bytes.
func Match(blocks []Block, blockSize int, target []byte) []Op {
	var ops []Op
	litStart := 0

	flush := func(end int) {
		if end > litStart {
			data := make([]byte, end-litStart)
			copy(data, target[litStart:end])
			ops = append(ops, Op{Block: Literal, Data: data})
		}
	}

	index := make(map[uint32][]int)
	tail := -1
	for i, b := range blocks {
		if b.Length == blockSize {
			index[b.Weak] = append(index[b.Weak], i)
		} else if i == len(blocks)-1 {
			tail = i
		}
	}

	if blockSize > 0 && len(index) > 0 && len(target) >= blockSize {
		roller := NewRolling(target[:blockSize])
		pos := 0
		for pos+blockSize <= len(target) {
			if i, ok := lookup(index, blocks, roller.Sum32(), target[pos:pos+blockSize]); ok {
				flush(pos)
				ops = append(ops, Op{Block: i})
				pos += blockSize
				litStart = pos
				if pos+blockSize <= len(target) {
					roller.Reset(target[pos : pos+blockSize])
				}
				continue
			}
			if pos+blockSize < len(target) {
				roller.Roll(target[pos+blockSize])
			}
			pos++
		}
	}

	if tail >= 0 {
		t := blocks[tail]
		start := len(target) - t.Length
		if start >= litStart {
			window := target[start:]
			if Weak(window) == t.Weak && Strong(window) == t.Strong {
				flush(start)
				ops = append(ops, Op{Block: tail})
				return ops
			}
		}
	}

	flush(len(target))
	return ops
}

func lookup(index map[uint32][]int, blocks []Block, weak uint32, window []byte) (int, bool) {
	candidates, ok := index[weak]
	if !ok {
		return 0, false
	}
	strong := Strong(window)
	for _, i := range candidates {
		if blocks[i].Strong == strong {
			return i, true
		}
	}
	return 0, false
}

// Apply rebuilds a file from base and the ops produced by Match.
func Apply(base []byte, blocks []Block, ops []Op) ([]byte, error) {
	var out bytes.Buffer
	for n, op := range ops {
		if op.Block == Literal {
			out.Write(op.Data)
			continue
		}
		if op.Block < 0 || op.Block >= len(blocks) {
			return nil, fmt.Errorf("op %d references unknown block %d", n, op.Block)
		}
		b := blocks[op.Block]
		end := b.Offset + int64(b.Length)
		if end > int64(len(base)) {
			return nil, fmt.Errorf("op %d: block %d extends past base (%d > %d)", n, op.Block, end, len(base))
		}
		out.Write(base[b.Offset:end])
	}
	return out.Bytes(), nil
}
