package checksum

import (
	"errors"
	"fmt"
	"io"
)

var ErrInvalidBlockSize = errors.New("block size must be positive")

type Block struct {
	Offset int64  `json:"offset"`
	Length int    `json:"length"`
	Weak   uint32 `json:"weak"`
	Strong string `json:"strong"`
}

// Sign reads r to EOF in blocks of blockSize bytes and returns the checksums
// of each block together with the total number of bytes read. Only the last
// block may be shorter than blockSize.
func Sign(r io.Reader, blockSize int) ([]Block, int64, error) {
	if blockSize <= 0 {
		return nil, 0, ErrInvalidBlockSize
	}

	buf := make([]byte, blockSize)
	blocks := make([]Block, 0)
	var offset int64

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			blocks = append(blocks, Block{
				Offset: offset,
				Length: n,
				Weak:   Weak(buf[:n]),
				Strong: Strong(buf[:n]),
			})
			offset += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read block at offset %d: %w", offset, err)
		}
	}

	return blocks, offset, nil
}
