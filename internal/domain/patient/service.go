package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ehr/triage/pkg/taxid"
)

var ErrValidation = errors.New("invalid patient")

const defaultMemberNumber = "00000000"

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	p.TaxID = taxid.Normalize(p.TaxID)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)

	if p.TaxID == "" {
		return fmt.Errorf("%w: tax_id is required", ErrValidation)
	}
	if !taxid.Valid(p.TaxID) {
		return fmt.Errorf("%w: tax_id must have %d digits", ErrValidation, taxid.Length)
	}
	if p.LastName == "" {
		return fmt.Errorf("%w: last_name is required", ErrValidation)
	}
	if p.FirstName == "" {
		return fmt.Errorf("%w: first_name is required", ErrValidation)
	}
	if strings.TrimSpace(p.Street) == "" || strings.TrimSpace(p.StreetNumber) == "" || strings.TrimSpace(p.Locality) == "" {
		return fmt.Errorf("%w: address is required", ErrValidation)
	}
	if p.Email == "" {
		p.Email = strings.ToLower(p.FirstName) + "." + strings.ToLower(p.LastName) + "@example.com"
	}
	if p.MemberNumber == "" {
		p.MemberNumber = defaultMemberNumber
	}
	return s.repo.Create(ctx, p)
}

// Lookup finds a patient by tax id in any formatting.
func (s *Service) Lookup(ctx context.Context, id string) (*Patient, error) {
	n := taxid.Normalize(id)
	if n == "" {
		return nil, ErrNotFound
	}
	return s.repo.GetByTaxID(ctx, n)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}
