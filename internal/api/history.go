package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dmarchuk/depthstream/internal/history"
	"github.com/dmarchuk/depthstream/internal/wire"
)

// GetBookPage fetches one bounded page of order-book history. The first
// page of a range (AfterSeq == 0) carries the seeding checkpoint;
// continuation pages carry deltas only.
func (c *Client) GetBookPage(ctx context.Context, req history.PageRequest) (*BookPageResponse, error) {
	query := url.Values{}
	query.Set("coin", req.Coin)
	query.Set("start", strconv.FormatInt(req.Start, 10))
	query.Set("end", strconv.FormatInt(req.End, 10))
	if req.AfterSeq > 0 {
		query.Set("after_seq", strconv.FormatInt(req.AfterSeq, 10))
	}
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}

	var resp BookPageResponse
	if err := c.get(ctx, "/book/page", query, &resp); err != nil {
		return nil, fmt.Errorf("get book page %s: %w", req.Coin, err)
	}

	return &resp, nil
}

// BookProvider adapts the client into a history page source for the
// snapshot walker.
type BookProvider struct {
	client *Client
}

// NewBookProvider wraps a client as a history.Provider.
func NewBookProvider(client *Client) *BookProvider {
	return &BookProvider{client: client}
}

// FetchPage implements history.Provider.
func (p *BookProvider) FetchPage(ctx context.Context, req history.PageRequest) (*history.Page, error) {
	resp, err := p.client.GetBookPage(ctx, req)
	if err != nil {
		return nil, err
	}

	page := &history.Page{}
	if resp.Checkpoint != nil {
		cp, err := resp.Checkpoint.ToCheckpoint()
		if err != nil {
			return nil, fmt.Errorf("book page checkpoint: %w", err)
		}
		page.Checkpoint = cp
	}

	deltas, err := wire.ToDeltas(resp.Deltas)
	if err != nil {
		return nil, fmt.Errorf("book page deltas: %w", err)
	}
	page.Deltas = deltas

	return page, nil
}
