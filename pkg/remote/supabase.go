// Package remote implements the cloud side of the upload pipeline: a
// Supabase table holding one row per transaction, tagged with the
// entity the appliance belongs to. The server assigns its own
// created_at; the client never sends one.
package remote

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"

	"github.com/maxpark/accessd/pkg/txlog"
)

// DefaultTable is the remote transactions table.
const DefaultTable = "transactions"

// document is the row shape sent to the remote table.
type document struct {
	txlog.Transaction
	EntityID string `json:"entity_id"`
}

// Client uploads transactions to a Supabase project.
type Client struct {
	sb    *supabase.Client
	table string
}

// NewClient connects to the Supabase project at url with the service
// key.
func NewClient(url, key, table string) (*Client, error) {
	if url == "" || key == "" {
		return nil, fmt.Errorf("supabase url and key are required")
	}
	if table == "" {
		table = DefaultTable
	}

	sb, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Client{sb: sb, table: table}, nil
}

// Insert writes one transaction row. The context deadline is advisory
// only; the underlying client manages its own HTTP timeouts.
func (c *Client) Insert(ctx context.Context, tx txlog.Transaction, entityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := document{Transaction: tx, EntityID: entityID}
	var result []map[string]any
	if _, err := c.sb.From(c.table).Insert(doc, false, "", "", "").ExecuteTo(&result); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
