package repositories

import (
	"context"
	"fmt"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

// profileRepository implements ProfileRepository over the franchises and restaurants collections
type profileRepository struct {
	franchises  documentRepository[models.FranchiseProfile]
	restaurants documentRepository[models.FranchiseProfile]
}

// NewProfileRepository creates a profile repository over rw
func NewProfileRepository(rw storage.Tx) ProfileRepository {
	return &profileRepository{
		franchises:  newDocumentRepository[models.FranchiseProfile](rw, CollectionFranchises, "franchise"),
		restaurants: newDocumentRepository[models.FranchiseProfile](rw, CollectionRestaurants, "restaurant"),
	}
}

func (r *profileRepository) WithTx(tx storage.Tx) ProfileRepository {
	return &profileRepository{
		franchises:  r.franchises.withTx(tx),
		restaurants: r.restaurants.withTx(tx),
	}
}

func (r *profileRepository) GetFranchise(ctx context.Context, id string) (*models.FranchiseProfile, error) {
	return r.franchises.get(ctx, id)
}

func (r *profileRepository) GetCustomer(ctx context.Context, customerType models.CustomerType, id string) (*models.FranchiseProfile, error) {
	docs, err := r.forType(customerType)
	if err != nil {
		return nil, err
	}
	return docs.get(ctx, id)
}

func (r *profileRepository) Save(ctx context.Context, customerType models.CustomerType, profile *models.FranchiseProfile) error {
	docs, err := r.forType(customerType)
	if err != nil {
		return err
	}
	return docs.set(ctx, profile.ID, profile)
}

func (r *profileRepository) forType(customerType models.CustomerType) (documentRepository[models.FranchiseProfile], error) {
	switch customerType {
	case models.CustomerTypeFranchise:
		return r.franchises, nil
	case models.CustomerTypeRestaurant:
		return r.restaurants, nil
	}
	return documentRepository[models.FranchiseProfile]{},
		ValidationError("profile", "", fmt.Errorf("unknown customer type %q", customerType))
}

// metricsRepository implements MetricsRepository on the document store
type metricsRepository struct {
	docs documentRepository[models.FranchiseMetrics]
}

// NewMetricsRepository creates a franchise metrics repository over rw
func NewMetricsRepository(rw storage.Tx) MetricsRepository {
	return &metricsRepository{docs: newDocumentRepository[models.FranchiseMetrics](rw, CollectionFranchiseMetrics, "franchise metrics")}
}

func (r *metricsRepository) WithTx(tx storage.Tx) MetricsRepository {
	return &metricsRepository{docs: r.docs.withTx(tx)}
}

func (r *metricsRepository) Get(ctx context.Context, franchiseID, period string) (*models.FranchiseMetrics, error) {
	return r.docs.get(ctx, models.MetricsID(franchiseID, period))
}

func (r *metricsRepository) Save(ctx context.Context, metrics *models.FranchiseMetrics) error {
	return r.docs.set(ctx, models.MetricsID(metrics.FranchiseID, metrics.Period), metrics)
}
