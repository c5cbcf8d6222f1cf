//go:build protogen

package entitlements

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/checkoutpanda/panda/libs/grpcx"
	entitlementsv1 "github.com/checkoutpanda/panda/protos/gen/entitlements/v1"
)

// Client fetches authoritative plan limits from billing over gRPC. The
// Kafka-fed local cache remains the default; this client exists for
// deployments that prefer a synchronous check.
type Client struct {
	conn   *grpc.ClientConn
	client entitlementsv1.EntitlementsServiceClient
}

func NewClient(addr string) (*Client, error) {
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		conn:   conn,
		client: entitlementsv1.NewEntitlementsServiceClient(conn),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) GetEntitlements(ctx context.Context, merchantID string) (*entitlementsv1.EntitlementsResponse, error) {
	return c.client.GetEntitlements(ctx, &entitlementsv1.EntitlementsRequest{
		MerchantId: merchantID,
	})
}
