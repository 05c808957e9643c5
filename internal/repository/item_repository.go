package repository

import (
	"context"
	"fmt"
	"io"

	"filesync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// contentAttachment is the attachment name holding a version's bytes.
const contentAttachment = "content"

// ItemRepository resolves storage item identity. Items are written by the
// storage layer; this engine only reads them.
type ItemRepository interface {
	FindByID(ctx context.Context, itemID string) (*domain.StorageItem, error)
}

// ContentRepository opens the bytes of a stored file version.
type ContentRepository interface {
	Open(ctx context.Context, itemID string, version int64) (io.ReadCloser, error)
}

type itemRepository struct {
	client *kivik.Client
	dbName string
}

func NewItemRepository(client *kivik.Client, dbName string) ItemRepository {
	return &itemRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *itemRepository) FindByID(ctx context.Context, itemID string) (*domain.StorageItem, error) {
	db := r.client.DB(r.dbName)

	var item domain.StorageItem
	if err := db.Get(ctx, fmt.Sprintf("item:%s", itemID)).ScanDoc(&item); err != nil {
		return nil, couchError("find item", "item", itemID, err)
	}
	if item.ID == "" {
		item.ID = itemID
	}

	return &item, nil
}

type contentRepository struct {
	client *kivik.Client
	dbName string
}

func NewContentRepository(client *kivik.Client, dbName string) ContentRepository {
	return &contentRepository{
		client: client,
		dbName: dbName,
	}
}

func versionDocID(itemID string, version int64) string {
	return fmt.Sprintf("version:%s:%d", itemID, version)
}

// Open streams the content attachment of version:<item>:<n>. The caller
// must close the reader.
func (r *contentRepository) Open(ctx context.Context, itemID string, version int64) (io.ReadCloser, error) {
	db := r.client.DB(r.dbName)

	docID := versionDocID(itemID, version)
	att, err := db.GetAttachment(ctx, docID, contentAttachment)
	if err != nil {
		return nil, couchError("open version content", "version", fmt.Sprintf("%s@%d", itemID, version), err)
	}

	return att.Content, nil
}
