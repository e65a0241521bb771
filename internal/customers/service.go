package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/storeline/storeline/internal/shared"
)

type Service struct {
	repo  Repository
	audit AuditPort
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

func (s *Service) Create(ctx context.Context, businessID int64, req CreateCustomerRequest) (*Customer, error) {
	if businessID == 0 {
		return nil, shared.ErrTenantRequired
	}
	code := req.Code
	if code == "" {
		generated, err := s.repo.GenerateCode(ctx, businessID)
		if err != nil {
			return nil, fmt.Errorf("generate customer code: %w", err)
		}
		code = generated
	} else {
		existing, err := s.repo.GetByCode(ctx, businessID, code)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check existing customer: %w", err)
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: customer code already exists", ErrAlreadyExists)
		}
	}

	customer := Customer{
		BusinessID:   businessID,
		Code:         code,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		TaxID:        req.TaxID,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		Country:      req.Country,
		IsActive:     true,
		Notes:        req.Notes,
		CreatedBy:    shared.ActorFromContext(ctx),
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, customer)
		if err != nil {
			return err
		}
		customer.ID = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	s.recordAudit(ctx, businessID, "customer:create", customer.ID, map[string]any{"code": code})
	return s.repo.Get(ctx, businessID, customer.ID)
}

func (s *Service) Update(ctx context.Context, businessID, id int64, req UpdateCustomerRequest) (*Customer, error) {
	existing, err := s.repo.Get(ctx, businessID, id)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.TaxID != nil {
		updates["tax_id"] = *req.TaxID
	}
	if req.AddressLine1 != nil {
		updates["address_line1"] = *req.AddressLine1
	}
	if req.AddressLine2 != nil {
		updates["address_line2"] = *req.AddressLine2
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.State != nil {
		updates["state"] = *req.State
	}
	if req.PostalCode != nil {
		updates["postal_code"] = *req.PostalCode
	}
	if req.Country != nil {
		updates["country"] = *req.Country
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 {
		return existing, nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.Update(ctx, businessID, id, updates)
	})
	if err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return s.repo.Get(ctx, businessID, id)
}

// Delete soft-deletes a customer. Deleted customers disappear from all
// reads; their account and ledger history remain untouched.
func (s *Service) Delete(ctx context.Context, businessID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.SoftDelete(ctx, businessID, id)
	})
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	s.recordAudit(ctx, businessID, "customer:delete", id, nil)
	return nil
}

func (s *Service) Get(ctx context.Context, businessID, id int64) (*Customer, error) {
	return s.repo.Get(ctx, businessID, id)
}

func (s *Service) List(ctx context.Context, businessID int64, req ListCustomersRequest) ([]Customer, int, error) {
	return s.repo.List(ctx, businessID, req)
}

func (s *Service) GenerateCode(ctx context.Context, businessID int64) (string, error) {
	return s.repo.GenerateCode(ctx, businessID)
}

func (s *Service) recordAudit(ctx context.Context, businessID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    shared.ActorFromContext(ctx),
		Action:     action,
		Entity:     "customer",
		EntityID:   fmt.Sprintf("%d", id),
		Meta:       meta,
	})
}
