package listing

import "time"

// Kind distinguishes the four post types the marketplace carries. All
// share one generic listing record with type-specific optional fields.
type Kind string

const (
	KindJob        Kind = "job"
	KindWorker     Kind = "worker"
	KindInternship Kind = "internship"
	KindTraining   Kind = "training"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Listing mirrors the listings table.
type Listing struct {
	ID           string
	OwnerID      string
	Kind         Kind
	Title        string
	Description  string
	Location     *string
	SalaryMin    *int64
	SalaryMax    *int64
	JobType      *string
	Category     *string
	ContactPhone *string
	ContactEmail *string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ApplicationStatus is the lifecycle of an application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Application is one user's application to a listing. A user can apply
// to a given listing at most once.
type Application struct {
	ID          string
	ListingID   string
	ApplicantID string
	Message     *string
	Status      ApplicationStatus
	CreatedAt   time.Time
}

// Filters narrows and pages List results.
type Filters struct {
	OwnerID  string
	Kind     Kind
	Status   Status
	Category string
	Page     int
	PageSize int
}
