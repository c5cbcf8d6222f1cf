//go:build protogen

package entitlements

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"google.golang.org/grpc"

	entitlementsv1 "github.com/checkoutpanda/panda/protos/gen/entitlements/v1"
	"github.com/checkoutpanda/panda/services/billing-service/internal/storage"
)

type server struct {
	entitlementsv1.UnimplementedEntitlementsServiceServer
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, repo *storage.Repository) {
	entitlementsv1.RegisterEntitlementsServiceServer(grpcServer, &server{repo: repo})
}

func (s *server) GetEntitlements(ctx context.Context, req *entitlementsv1.EntitlementsRequest) (*entitlementsv1.EntitlementsResponse, error) {
	limits := LimitsForTier("free")
	if s.repo != nil && req.GetMerchantId() != "" {
		sub, err := s.repo.GetSubscription(ctx, req.GetMerchantId())
		if err == nil && sub.Status == "active" {
			limits = LimitsForTier(sub.Tier)
		}
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			// keep response stable: treat repo errors as free tier
		}
	}
	return &entitlementsv1.EntitlementsResponse{
		Tier:                limits.Tier,
		MaxOffers:           uint32(limits.MaxOffers),
		MaxMonthlyBookings:  uint32(limits.MaxMonthlyBookings),
		MaxTestimonialLinks: uint32(limits.MaxTestimonialLinks),
	}, nil
}
