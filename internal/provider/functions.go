package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// InvokeFunction calls the edge function name with a GET request and decodes
// the JSON response into out.
func (c *Client) InvokeFunction(ctx context.Context, name string, query url.Values, out any) error {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/functions/v1/" + url.PathEscape(strings.Trim(name, "/")),
		query:  query,
	}, out)
}
