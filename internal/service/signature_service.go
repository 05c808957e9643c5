package service

import (
	"context"
	"errors"
	"fmt"

	"filesync-server/internal/domain"
	"filesync-server/internal/repository"
	"filesync-server/pkg/checksum"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

type SignatureLimits struct {
	DefaultBlockSize int
	MaxBlockSize     int
	CacheSize        int
}

type signatureKey struct {
	itemID    string
	version   int64
	blockSize int
}

type SignatureService struct {
	items   repository.ItemRepository
	content repository.ContentRepository
	limits  SignatureLimits
	cache   *lru.Cache[signatureKey, *domain.FileSignature]
	log     logrus.FieldLogger
}

func NewSignatureService(items repository.ItemRepository, content repository.ContentRepository, limits SignatureLimits, log logrus.FieldLogger) (*SignatureService, error) {
	size := limits.CacheSize
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[signatureKey, *domain.FileSignature](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create signature cache: %w", err)
	}

	return &SignatureService{
		items:   items,
		content: content,
		limits:  limits,
		cache:   cache,
		log:     log,
	}, nil
}

// Generate returns the block signature of one stored version. A blockSize of
// zero selects the configured default. Versions never change once written,
// so signatures are served from cache when possible.
func (s *SignatureService) Generate(ctx context.Context, userID, itemID string, version int64, blockSize int) (*domain.FileSignature, error) {
	if blockSize == 0 {
		blockSize = s.limits.DefaultBlockSize
	}
	if blockSize <= 0 || blockSize > s.limits.MaxBlockSize {
		return nil, domain.NewValidation("block_size", fmt.Sprintf("must be between 1 and %d", s.limits.MaxBlockSize))
	}
	if version <= 0 {
		return nil, domain.NewValidation("version", "must be positive")
	}

	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, domain.NewNotFound("item", itemID)
	}

	key := signatureKey{itemID: itemID, version: version, blockSize: blockSize}
	if sig, ok := s.cache.Get(key); ok {
		return sig, nil
	}

	rc, err := s.content.Open(ctx, itemID, version)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	blocks, size, err := checksum.Sign(rc, blockSize)
	if err != nil {
		if errors.Is(err, checksum.ErrInvalidBlockSize) {
			return nil, domain.NewValidation("block_size", err.Error())
		}
		return nil, domain.NewStorageError("read version content", err)
	}

	sig := &domain.FileSignature{
		ItemID:        itemID,
		VersionNumber: version,
		BlockSize:     blockSize,
		Size:          size,
		Blocks:        make([]domain.BlockDescriptor, len(blocks)),
	}
	for i, b := range blocks {
		sig.Blocks[i] = domain.BlockDescriptor{
			Offset:         b.Offset,
			Length:         b.Length,
			WeakChecksum:   b.Weak,
			StrongChecksum: b.Strong,
		}
	}

	s.cache.Add(key, sig)

	s.log.WithFields(logrus.Fields{
		"item_id":    itemID,
		"version":    version,
		"block_size": blockSize,
		"blocks":     len(sig.Blocks),
	}).Debug("signature generated")

	return sig, nil
}
