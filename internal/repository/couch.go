package repository

import (
	"context"
	"fmt"
	"net/http"

	"filesync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// EnsureDatabase creates the CouchDB database if it does not exist yet.
func EnsureDatabase(ctx context.Context, client *kivik.Client, dbName string) (bool, error) {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return false, fmt.Errorf("failed to check database existence: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := client.CreateDB(ctx, dbName); err != nil {
		return false, fmt.Errorf("failed to create database: %w", err)
	}
	return true, nil
}

// couchError maps a kivik error onto the domain error types.
func couchError(op, entity, id string, err error) error {
	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return domain.NewNotFound(entity, id)
	default:
		return domain.NewStorageError(op, err)
	}
}

func isConflict(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusConflict
}
