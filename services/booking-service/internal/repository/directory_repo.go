package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/you/salon-booking/services/booking-service/internal/domain"
)

// DirectoryRepo reads salons, staff, services and customers. The Create methods exist
// for seeding; directory CRUD lives elsewhere.
type DirectoryRepo struct{ db *gorm.DB }

func NewDirectoryRepo(db *gorm.DB) *DirectoryRepo { return &DirectoryRepo{db: db} }

func (r *DirectoryRepo) Salon(ctx context.Context, id string) (*domain.Salon, error) {
	var s domain.Salon
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "salon", id)
	}
	return &s, nil
}

func (r *DirectoryRepo) Staff(ctx context.Context, id string) (*domain.StaffMember, error) {
	var s domain.StaffMember
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "staff member", id)
	}
	return &s, nil
}

func (r *DirectoryRepo) Customer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "customer", id)
	}
	return &c, nil
}

// Services loads the listed services of one salon. Ids that are unknown or
// belong to another salon are simply absent from the result.
func (r *DirectoryRepo) Services(ctx context.Context, salonID string, ids []string) ([]domain.Service, error) {
	var out []domain.Service
	err := r.db.WithContext(ctx).
		Where("salon_id = ? AND id IN ?", salonID, ids).
		Find(&out).Error
	return out, err
}

func (r *DirectoryRepo) CreateService(ctx context.Context, s *domain.Service) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *DirectoryRepo) CreateSalon(ctx context.Context, s *domain.Salon) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *DirectoryRepo) CreateStaff(ctx context.Context, s *domain.StaffMember) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *DirectoryRepo) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	return r.db.WithContext(ctx).Create(c).Error
}
