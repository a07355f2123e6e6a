package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls playdeck procedures by name.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	opts       []connect.ClientOption
}

// NewClient creates a client for the server at baseURL. A non-empty token
// is sent with every request.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	opts = append(opts, connect.WithInterceptors(NewTokenHeaderInterceptor(token)))
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts:       opts,
	}
}

// Call invokes a unary procedure. A nil args map sends emptypb.Empty.
func (c *Client) Call(ctx context.Context, procedure string, args map[string]any) (map[string]any, error) {
	var (
		resp *connect.Response[structpb.Struct]
		err  error
	)
	if args == nil {
		client := connect.NewClient[emptypb.Empty, structpb.Struct](c.httpClient, c.baseURL+procedure, c.opts...)
		resp, err = client.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	} else {
		msg, serr := structpb.NewStruct(args)
		if serr != nil {
			return nil, errors.Wrap(serr, "failed to encode request")
		}
		client := connect.NewClient[structpb.Struct, structpb.Struct](c.httpClient, c.baseURL+procedure, c.opts...)
		resp, err = client.CallUnary(ctx, connect.NewRequest(msg))
	}
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}

// Subscribe streams notifications to fn until the stream ends, ctx is done
// or fn returns false.
func (c *Client) Subscribe(ctx context.Context, fn func(map[string]any) bool) error {
	client := connect.NewClient[emptypb.Empty, structpb.Struct](c.httpClient, c.baseURL+PlayerSubscribeProcedure, c.opts...)
	stream, err := client.CallServerStream(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if !fn(stream.Msg().AsMap()) {
			return nil
		}
	}
	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
