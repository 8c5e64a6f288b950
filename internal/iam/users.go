package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/idcs-tools/scimctl/pkg/scim"
)

// SearchRequest holds the query parameters of a SCIM search.
type SearchRequest struct {
	Filter     string
	SortBy     string
	Attributes []string
	Count      int
}

func (r SearchRequest) values() url.Values {
	v := url.Values{}
	if r.Filter != "" {
		v.Set("filter", r.Filter)
	}
	if r.SortBy != "" {
		v.Set("sortBy", r.SortBy)
	}
	if len(r.Attributes) > 0 {
		v.Set("attributes", strings.Join(r.Attributes, ","))
	}
	if r.Count > 0 {
		v.Set("count", strconv.Itoa(r.Count))
	}
	return v
}

func list[T any](ctx context.Context, c *Client, resource string, req SearchRequest) (*scim.ListResponse[T], error) {
	body, err := c.do(ctx, "GET", resource, req.values(), nil)
	if err != nil {
		return nil, err
	}

	var res scim.ListResponse[T]
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode %s list response: %w", resource, err)
	}
	return &res, nil
}

// SearchUsers returns one page of users matching req. A page without users is
// reported as ErrNoResults.
func (c *Client) SearchUsers(ctx context.Context, req SearchRequest) ([]scim.User, error) {
	c.logger.Debug("searching users", zap.String("filter", req.Filter), zap.Int("count", req.Count))

	res, err := list[scim.User](ctx, c, "/Users", req)
	if err != nil {
		return nil, err
	}
	if res.TotalResults == 0 || len(res.Resources) == 0 {
		return nil, ErrNoResults
	}
	return res.Resources, nil
}

// Bulk submits ops as one bulk request and returns the raw bulk response.
// The status of the individual operations is not inspected.
func (c *Client) Bulk(ctx context.Context, ops []scim.BulkOperation) ([]byte, error) {
	return c.do(ctx, "POST", "/Bulk", nil, scim.NewBulkRequest(ops))
}
