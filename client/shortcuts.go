package client

import (
	"context"

	"transformator/rpcerr"
)

// Operation names understood by the service.
const (
	OpRenderTemplate = "render-template"
	OpCompileScript  = "compile-script"
	OpMinifyMarkup   = "minify-markup"
	OpList           = "list"
)

// CallString is Call for text operations: text in, text out.
// A non-text result is a ProtocolError.
func (c *Client) CallString(ctx context.Context, op, input string, data map[string]any) (string, error) {
	v, err := c.Call(ctx, op, []byte(input), data)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", rpcerr.Newf(rpcerr.KindProtocol, op, "expected a text result, got %T", v)
	}
}

func (c *Client) RenderTemplate(ctx context.Context, template string, data map[string]any) (string, error) {
	return c.CallString(ctx, OpRenderTemplate, template, data)
}

func (c *Client) CompileScript(ctx context.Context, source string, data map[string]any) (string, error) {
	return c.CallString(ctx, OpCompileScript, source, data)
}

func (c *Client) MinifyMarkup(ctx context.Context, markup string, data map[string]any) (string, error) {
	return c.CallString(ctx, OpMinifyMarkup, markup, data)
}

// List asks the service which operations it offers. The shape of the answer is the service's.
func (c *Client) List(ctx context.Context) (any, error) {
	return c.Call(ctx, OpList, nil, nil)
}
