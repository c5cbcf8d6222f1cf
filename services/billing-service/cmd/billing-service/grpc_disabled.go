//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/checkoutpanda/panda/libs/db"
)

// Built without the protogen tag: the entitlements gRPC surface is not
// compiled in. Regenerate protos and build with -tags protogen to enable it.
func startGrpcServer(ctx context.Context, logger *slog.Logger, pool *db.Pool) error {
	logger.Info("grpc server disabled (build without protogen tag)")
	return nil
}
