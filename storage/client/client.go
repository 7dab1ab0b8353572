// Package client reads indexed devnet data for the API.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apiCommon "github.com/tokenvault/tokenvault/api/common"
	"github.com/tokenvault/tokenvault/log"
	"github.com/tokenvault/tokenvault/storage"
	"github.com/tokenvault/tokenvault/storage/client/queries"
)

const (
	moduleName = "storage_client"

	maxTotalCount = 1000
)

// StorageClient is a wrapper around a storage.TargetStorage
// with knowledge of the indexed schema.
type StorageClient struct {
	db     storage.TargetStorage
	logger *log.Logger
}

type rowsWithCount struct {
	rows                pgx.Rows
	totalCount          uint64
	isTotalCountClipped bool
}

// NewStorageClient creates a new storage client.
func NewStorageClient(db storage.TargetStorage, l *log.Logger) *StorageClient {
	return &StorageClient{db: db, logger: l.WithModule(moduleName)}
}

// Wraps an error into one of the error types defined by the `api/common` package, if applicable.
func wrapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apiCommon.ErrNotFound
	}
	return apiCommon.ErrStorageError{Err: err}
}

// For queries that return multiple rows, returns the rows for a given query, as well as
// the total count of matching records, i.e. the number of rows the query would return
// with limit=infinity.
// Assumes that the last two query parameters are limit and offset.
// The total count is capped by an internal limit for performance reasons.
func (c *StorageClient) withTotalCount(ctx context.Context, sql string, args ...interface{}) (*rowsWithCount, error) {
	var totalCount uint64
	if len(args) < 2 {
		return nil, fmt.Errorf("list queries must have at least two params (limit and offset)")
	}

	// The count row is scanned right away, which releases its connection
	// before the caller starts scanning (and holding) the page rows.
	origLimit := args[len(args)-2]
	origOffset := args[len(args)-1]
	// Count from the start, just high enough to learn if there are more
	// than maxTotalCount matching items.
	args[len(args)-2] = maxTotalCount + 1
	args[len(args)-1] = 0
	if err := c.db.QueryRow(
		ctx,
		queries.TotalCountQuery(sql),
		args...,
	).Scan(&totalCount); err != nil {
		return nil, err
	}
	clipped := totalCount == maxTotalCount+1
	if clipped {
		totalCount = maxTotalCount
	}

	args[len(args)-2] = origLimit
	args[len(args)-1] = origOffset
	rows, err := c.db.Query(
		ctx,
		sql,
		args...,
	)
	if err != nil {
		return nil, err
	}

	return &rowsWithCount{
		rows:                rows,
		totalCount:          totalCount,
		isTotalCountClipped: clipped,
	}, nil
}

// Status returns the progress of the receipts analyzer.
func (c *StorageClient) Status(ctx context.Context) (*Status, error) {
	var latest int64
	var s Status
	if err := c.db.QueryRow(
		ctx,
		queries.Status,
	).Scan(&latest, &s.IndexedReceipts); err != nil {
		return nil, wrapError(err)
	}
	if latest >= 0 {
		block := uint64(latest)
		s.LatestBlock = &block
	}
	return &s, nil
}

// Events returns a page of indexed events, newest first.
func (c *StorageClient) Events(ctx context.Context, f EventFilter, p apiCommon.Pagination) (*EventList, error) {
	res, err := c.withTotalCount(
		ctx,
		queries.Events,
		f.Contract,
		f.Event,
		f.TxHash,
		p.Limit,
		p.Offset,
	)
	if err != nil {
		return nil, wrapError(err)
	}
	defer res.rows.Close()

	es := EventList{
		Events:              []Event{},
		TotalCount:          res.totalCount,
		IsTotalCountClipped: res.isTotalCountClipped,
	}
	for res.rows.Next() {
		var e Event
		if err := res.rows.Scan(
			&e.TxHash,
			&e.LogIndex,
			&e.Block,
			&e.Contract,
			&e.Kind,
			&e.Event,
			&e.Args,
		); err != nil {
			return nil, wrapError(err)
		}
		es.Events = append(es.Events, e)
	}
	if err := res.rows.Err(); err != nil {
		return nil, wrapError(err)
	}
	return &es, nil
}

// TokenHolders returns a page of accounts holding token, richest first.
func (c *StorageClient) TokenHolders(ctx context.Context, token string, p apiCommon.Pagination) (*TokenHolderList, error) {
	res, err := c.withTotalCount(
		ctx,
		queries.TokenHolders,
		token,
		p.Limit,
		p.Offset,
	)
	if err != nil {
		return nil, wrapError(err)
	}
	defer res.rows.Close()

	hs := TokenHolderList{
		Holders:             []TokenHolder{},
		TotalCount:          res.totalCount,
		IsTotalCountClipped: res.isTotalCountClipped,
	}
	for res.rows.Next() {
		var h TokenHolder
		if err := res.rows.Scan(&h.Account, &h.Balance); err != nil {
			return nil, wrapError(err)
		}
		hs.Holders = append(hs.Holders, h)
	}
	if err := res.rows.Err(); err != nil {
		return nil, wrapError(err)
	}
	return &hs, nil
}
