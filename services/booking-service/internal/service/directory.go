package service

import (
	"context"

	"github.com/you/salon-booking/pkg/cache"
	"github.com/you/salon-booking/services/booking-service/internal/domain"
	"github.com/you/salon-booking/services/booking-service/internal/repository"
)

// Directory is the cached read side of salons, staff, services and customers.
type Directory struct {
	repo  *repository.DirectoryRepo
	cache *cache.Client
}

func NewDirectory(repo *repository.DirectoryRepo, c *cache.Client) *Directory {
	return &Directory{repo: repo, cache: c}
}

func (d *Directory) Salon(ctx context.Context, id string) (*domain.Salon, error) {
	return cache.GetOrLoad(ctx, d.cache, cache.SalonKey(id), cache.TTLEntity, func(ctx context.Context) (*domain.Salon, error) {
		return d.repo.Salon(ctx, id)
	})
}

func (d *Directory) Staff(ctx context.Context, id string) (*domain.StaffMember, error) {
	return cache.GetOrLoad(ctx, d.cache, cache.StaffKey(id), cache.TTLEntity, func(ctx context.Context) (*domain.StaffMember, error) {
		return d.repo.Staff(ctx, id)
	})
}

// Customer always reads the store: the discount flag on it must be current.
func (d *Directory) Customer(ctx context.Context, id string) (*domain.Customer, error) {
	return d.repo.Customer(ctx, id)
}

// ServiceLines prices the requested services from the salon's catalogue, in
// request order. Unknown, foreign or retired services are rejected.
func (d *Directory) ServiceLines(ctx context.Context, salonID string, ids []string) ([]domain.ServiceLine, error) {
	if len(ids) == 0 {
		return nil, domain.Invalid("at least one service is required")
	}
	rows, err := d.repo.Services(ctx, salonID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Service, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	lines := make([]domain.ServiceLine, 0, len(ids))
	for _, id := range ids {
		svc, ok := byID[id]
		if !ok {
			return nil, domain.Invalid("service %q is not offered by salon %q", id, salonID)
		}
		if !svc.Active {
			return nil, domain.Invalid("service %q is no longer offered", id)
		}
		lines = append(lines, svc.Line())
	}
	return lines, nil
}

// OwnsSalon reports whether the salon belongs to ownerID.
func (d *Directory) OwnsSalon(ctx context.Context, salonID, ownerID string) (bool, error) {
	s, err := d.Salon(ctx, salonID)
	if err != nil {
		return false, err
	}
	return s.OwnerID == ownerID, nil
}
