package subscription

import (
	"context"

	"github.com/xraph/credits/id"
)

type Store interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	GetSubscriptionByOrganization(ctx context.Context, orgID string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, s *Subscription) error
	GetSubscriptionByLeaseID(ctx context.Context, leaseID id.LeaseID) (*Subscription, error)
}

// Repository resolves the subscription that owns a lease.
type Repository interface {
	GetByLeaseID(ctx context.Context, leaseID id.LeaseID) (*Subscription, error)
}

// RepositoryFunc adapts a function to Repository.
type RepositoryFunc func(ctx context.Context, leaseID id.LeaseID) (*Subscription, error)

// GetByLeaseID calls f.
func (f RepositoryFunc) GetByLeaseID(ctx context.Context, leaseID id.LeaseID) (*Subscription, error) {
	return f(ctx, leaseID)
}
