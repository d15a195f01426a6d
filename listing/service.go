package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrForbidden signals the caller does not own the listing.
	ErrForbidden = errors.New("listing: forbidden")
	// ErrClosed signals an application to a closed listing.
	ErrClosed = errors.New("listing: listing is closed")
	// ErrOwnListing signals a user applying to their own listing.
	ErrOwnListing = errors.New("listing: cannot apply to own listing")
)

// Service handles marketplace listing business logic.
type Service struct {
	repo Repository
}

// NewService creates a listing service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateParams contains caller-supplied fields for a new listing.
type CreateParams struct {
	OwnerID      string
	Kind         Kind
	Title        string
	Description  string
	Location     string
	SalaryMin    *int64
	SalaryMax    *int64
	JobType      string
	Category     string
	ContactPhone string
	ContactEmail string
}

// Create validates and stores a new open listing.
func (s *Service) Create(ctx context.Context, params CreateParams) (Listing, error) {
	if params.OwnerID == "" {
		return Listing{}, fmt.Errorf("listing: missing owner id")
	}
	if strings.TrimSpace(params.Title) == "" || strings.TrimSpace(params.Description) == "" {
		return Listing{}, fmt.Errorf("listing: title and description are required")
	}
	switch params.Kind {
	case KindJob, KindWorker, KindInternship, KindTraining:
	default:
		return Listing{}, fmt.Errorf("listing: invalid kind %q", params.Kind)
	}
	if params.SalaryMin != nil && *params.SalaryMin < 0 {
		return Listing{}, fmt.Errorf("listing: invalid salary range")
	}
	if params.SalaryMin != nil && params.SalaryMax != nil && *params.SalaryMax < *params.SalaryMin {
		return Listing{}, fmt.Errorf("listing: invalid salary range")
	}

	l := Listing{
		OwnerID:      params.OwnerID,
		Kind:         params.Kind,
		Title:        strings.TrimSpace(params.Title),
		Description:  params.Description,
		Location:     optional(params.Location),
		SalaryMin:    params.SalaryMin,
		SalaryMax:    params.SalaryMax,
		JobType:      optional(params.JobType),
		Category:     optional(params.Category),
		ContactPhone: optional(params.ContactPhone),
		ContactEmail: optional(params.ContactEmail),
	}
	return s.repo.Create(ctx, l)
}

// Get fetches one listing.
func (s *Service) Get(ctx context.Context, id string) (Listing, error) {
	return s.repo.Get(ctx, id)
}

// List returns listings matching the filters plus the total count.
func (s *Service) List(ctx context.Context, filters Filters) ([]Listing, int, error) {
	return s.repo.List(ctx, filters)
}

// Close transitions a listing to closed. Only the owner may close it.
func (s *Service) Close(ctx context.Context, userID, listingID string) (Listing, error) {
	l, err := s.repo.Get(ctx, listingID)
	if err != nil {
		return Listing{}, err
	}
	if l.OwnerID != userID {
		return Listing{}, ErrForbidden
	}
	if l.Status == StatusClosed {
		return l, nil
	}
	return s.repo.SetStatus(ctx, listingID, StatusClosed)
}

// Apply records an application to an open listing. Owners cannot apply
// to their own posts and a user applies at most once per listing.
func (s *Service) Apply(ctx context.Context, userID, listingID, message string) (Application, error) {
	l, err := s.repo.Get(ctx, listingID)
	if err != nil {
		return Application{}, err
	}
	if l.OwnerID == userID {
		return Application{}, ErrOwnListing
	}
	if l.Status != StatusOpen {
		return Application{}, ErrClosed
	}

	return s.repo.InsertApplication(ctx, Application{
		ListingID:   listingID,
		ApplicantID: userID,
		Message:     optional(message),
	})
}

// Applications returns the applications on a listing, owner only.
func (s *Service) Applications(ctx context.Context, userID, listingID string) ([]Application, error) {
	l, err := s.repo.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != userID {
		return nil, ErrForbidden
	}
	return s.repo.ListApplications(ctx, listingID)
}

// Decide accepts or rejects an application, owner only.
func (s *Service) Decide(ctx context.Context, userID, listingID, applicationID string, accept bool) (Application, error) {
	l, err := s.repo.Get(ctx, listingID)
	if err != nil {
		return Application{}, err
	}
	if l.OwnerID != userID {
		return Application{}, ErrForbidden
	}

	status := ApplicationRejected
	if accept {
		status = ApplicationAccepted
	}
	return s.repo.SetApplicationStatus(ctx, listingID, applicationID, status)
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
