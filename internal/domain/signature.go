package domain

type BlockDescriptor struct {
	Offset         int64  `json:"offset"`
	Length         int    `json:"length"`
	WeakChecksum   uint32 `json:"weak_checksum"`
	StrongChecksum string `json:"strong_checksum"`
}

// FileSignature describes one version of a file as fixed-size blocks. It is
// derived from the bytes alone and is never persisted.
type FileSignature struct {
	ItemID        string            `json:"item_id"`
	VersionNumber int64             `json:"version_number"`
	BlockSize     int               `json:"block_size"`
	Size          int64             `json:"size"`
	Blocks        []BlockDescriptor `json:"blocks"`
}
