package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-advisor-auth/provider"
	"github.com/pkg/errors"
)

const singleObject = "application/vnd.pgrst.object+json"

// Filter is a set of PostgREST column filters, e.g. Eq("id", "42").
type Filter url.Values

// Eq returns a filter matching rows whose column equals value.
func Eq(column, value string) Filter {
	return Filter{column: {"eq." + value}}
}

func (c *Client) restRequest(ctx context.Context, method, table string, filter Filter) request {
	token, _ := provider.AccessTokenFrom(ctx)
	query := url.Values{}
	for k, v := range filter {
		query[k] = append([]string(nil), v...)
	}
	return request{
		method:  method,
		path:    restPath + "/" + table,
		query:   query,
		token:   token,
		headers: map[string]string{},
	}
}

// SelectOne reads the single row of table matching filter into out. No match is reported
// as a *provider.Error with code PGRST116.
func (c *Client) SelectOne(ctx context.Context, table string, filter Filter, out any) error {
	req := c.restRequest(ctx, http.MethodGet, table, filter)
	req.query.Set("select", "*")
	req.headers["Accept"] = singleObject
	return errors.Wrapf(c.do(ctx, req, out), "[Client.SelectOne] %s", table)
}

// Insert adds row to table. When out is non nil the stored row is decoded into it.
func (c *Client) Insert(ctx context.Context, table string, row any, out any) error {
	req := c.restRequest(ctx, http.MethodPost, table, nil)
	req.body = row
	if out != nil {
		req.headers["Prefer"] = "return=representation"
		req.headers["Accept"] = singleObject
	} else {
		req.headers["Prefer"] = "return=minimal"
	}
	return errors.Wrapf(c.do(ctx, req, out), "[Client.Insert] %s", table)
}

// UpdateOne patches the single row matching filter and decodes the result into out.
func (c *Client) UpdateOne(ctx context.Context, table string, filter Filter, patch any, out any) error {
	req := c.restRequest(ctx, http.MethodPatch, table, filter)
	req.body = patch
	req.headers["Prefer"] = "return=representation"
	req.headers["Accept"] = singleObject
	return errors.Wrapf(c.do(ctx, req, out), "[Client.UpdateOne] %s", table)
}

// Delete removes the rows matching filter and returns how many were deleted.
func (c *Client) Delete(ctx context.Context, table string, filter Filter) (int, error) {
	req := c.restRequest(ctx, http.MethodDelete, table, filter)
	req.headers["Prefer"] = "return=representation"

	var deleted []json.RawMessage
	if err := c.do(ctx, req, &deleted); err != nil {
		return 0, errors.Wrapf(err, "[Client.Delete] %s", table)
	}
	return len(deleted), nil
}

// RPC calls a Postgres function exposed by PostgREST.
func (c *Client) RPC(ctx context.Context, function string, args any, out any) error {
	req := c.restRequest(ctx, http.MethodPost, "rpc/"+function, nil)
	req.body = args
	return errors.Wrapf(c.do(ctx, req, out), "[Client.RPC] %s", function)
}
