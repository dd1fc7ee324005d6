package flight

import (
	"context"
	"fmt"
	"time"

	"github.com/TFMV/bikedash/db"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// ---------------------------------------------------------------------
// Retry Policy
// ---------------------------------------------------------------------

// RetryPolicy re-runs calls that fail with a retryable gRPC status.
type RetryPolicy struct {
	MaxAttempts     int
	Backoff         time.Duration
	RetryableErrors map[codes.Code]bool
}

// DefaultRetryPolicy retries unavailable servers three times.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     3,
		Backoff:         100 * time.Millisecond,
		RetryableErrors: map[codes.Code]bool{codes.Unavailable: true},
	}
}

// Execute calls fn until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. The wait between attempts doubles each time.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	backoff := p.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !p.RetryableErrors[status.Code(err)] {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// ---------------------------------------------------------------------
// Flight Client
// ---------------------------------------------------------------------

// Client pulls tables from a Service.
type Client struct {
	client flight.Client
	retry  *RetryPolicy
}

// NewClient dials addr without transport security.
func NewClient(addr string, retry *RetryPolicy) (*Client, error) {
	client, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create flight client: %w", err)
	}
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Client{client: client, retry: retry}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Fetch returns every record served for ticket. The caller releases them.
func (c *Client) Fetch(ctx context.Context, ticket string) ([]arrow.Record, error) {
	var records []arrow.Record
	err := c.retry.Execute(ctx, func() error {
		var err error
		records, err = c.fetch(ctx, ticket)
		return err
	})
	return records, err
}

func (c *Client) fetch(ctx context.Context, ticket string) ([]arrow.Record, error) {
	stream, err := c.client.DoGet(ctx, &flight.Ticket{Ticket: []byte(ticket)})
	if err != nil {
		return nil, err
	}
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		rec := reader.Record()
		rec.Retain() // Retain the record for use after Next()
		records = append(records, rec)
	}
	if err := reader.Err(); err != nil {
		for _, rec := range records {
			rec.Release()
		}
		return nil, err
	}
	return records, nil
}

// FetchTable pulls ticket and assembles the records into one table.
func (c *Client) FetchTable(ctx context.Context, ticket string) (*db.Table, error) {
	records, err := c.Fetch(ctx, ticket)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, rec := range records {
			rec.Release()
		}
	}()
	return db.FromRecords(records, memory.NewGoAllocator())
}
