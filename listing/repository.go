package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no listing exists for the identifier.
	ErrNotFound = errors.New("listing: not found")
	// ErrApplicationNotFound is returned when no application exists.
	ErrApplicationNotFound = errors.New("listing: application not found")
	// ErrAlreadyApplied signals a second application to the same listing.
	ErrAlreadyApplied = errors.New("listing: already applied")
)

// Repository handles data access for listings and applications.
type Repository interface {
	Create(ctx context.Context, l Listing) (Listing, error)
	Get(ctx context.Context, id string) (Listing, error)
	List(ctx context.Context, filters Filters) ([]Listing, int, error)
	SetStatus(ctx context.Context, id string, status Status) (Listing, error)
	InsertApplication(ctx context.Context, a Application) (Application, error)
	ListApplications(ctx context.Context, listingID string) ([]Application, error)
	SetApplicationStatus(ctx context.Context, listingID, id string, status ApplicationStatus) (Application, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed listing repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const listingColumns = `id, owner_id, kind, title, description, location, salary_min, salary_max, job_type, category, contact_phone, contact_email, status, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, l Listing) (Listing, error) {
	const insertSQL = `
		INSERT INTO listings (owner_id, kind, title, description, location, salary_min, salary_max, job_type, category, contact_phone, contact_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + listingColumns

	row := r.pool.QueryRow(ctx, insertSQL,
		l.OwnerID,
		l.Kind,
		l.Title,
		l.Description,
		l.Location,
		l.SalaryMin,
		l.SalaryMax,
		l.JobType,
		l.Category,
		l.ContactPhone,
		l.ContactEmail,
	)
	out, err := scanListing(row)
	if err != nil {
		return Listing{}, fmt.Errorf("listing: create: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Listing, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: get: %w", err)
	}
	return l, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Listing, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := []string{"1=1"}
	args := []any{}

	if filters.OwnerID != "" {
		where = append(where, fmt.Sprintf("owner_id=$%d", len(args)+1))
		args = append(args, filters.OwnerID)
	}
	if filters.Kind != "" {
		where = append(where, fmt.Sprintf("kind=$%d", len(args)+1))
		args = append(args, filters.Kind)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}
	if filters.Category != "" {
		where = append(where, fmt.Sprintf("category=$%d", len(args)+1))
		args = append(args, filters.Category)
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")
	query := fmt.Sprintf(
		`SELECT %s FROM listings%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		listingColumns, whereClause, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing: query list: %w", err)
	}
	defer rows.Close()

	list := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("listing: scan: %w", err)
		}
		list = append(list, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing: iterate: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM listings" + whereClause
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("listing: count: %w", err)
	}

	return list, total, nil
}

func (r *PGRepository) SetStatus(ctx context.Context, id string, status Status) (Listing, error) {
	const query = `
		UPDATE listings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + listingColumns

	row := r.pool.QueryRow(ctx, query, id, status)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: set status: %w", err)
	}
	return l, nil
}

const applicationColumns = `id, listing_id, applicant_id, message, status, created_at`

func (r *PGRepository) InsertApplication(ctx context.Context, a Application) (Application, error) {
	const insertSQL = `
		INSERT INTO applications (listing_id, applicant_id, message)
		VALUES ($1, $2, $3)
		RETURNING ` + applicationColumns

	row := r.pool.QueryRow(ctx, insertSQL, a.ListingID, a.ApplicantID, a.Message)
	out, err := scanApplication(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Application{}, ErrAlreadyApplied
		}
		return Application{}, fmt.Errorf("listing: insert application: %w", err)
	}
	return out, nil
}

func (r *PGRepository) ListApplications(ctx context.Context, listingID string) ([]Application, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE listing_id = $1 ORDER BY created_at DESC`,
		listingID)
	if err != nil {
		return nil, fmt.Errorf("listing: list applications: %w", err)
	}
	defer rows.Close()

	out := []Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("listing: scan application: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing: iterate applications: %w", err)
	}
	return out, nil
}

func (r *PGRepository) SetApplicationStatus(ctx context.Context, listingID, id string, status ApplicationStatus) (Application, error) {
	const query = `
		UPDATE applications
		SET status = $3
		WHERE id = $1 AND listing_id = $2
		RETURNING ` + applicationColumns

	row := r.pool.QueryRow(ctx, query, id, listingID, status)
	a, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrApplicationNotFound
		}
		return Application{}, fmt.Errorf("listing: set application status: %w", err)
	}
	return a, nil
}

func scanListing(row pgx.Row) (Listing, error) {
	var l Listing
	return l, row.Scan(
		&l.ID,
		&l.OwnerID,
		&l.Kind,
		&l.Title,
		&l.Description,
		&l.Location,
		&l.SalaryMin,
		&l.SalaryMax,
		&l.JobType,
		&l.Category,
		&l.ContactPhone,
		&l.ContactEmail,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
}

func scanApplication(row pgx.Row) (Application, error) {
	var a Application
	return a, row.Scan(
		&a.ID,
		&a.ListingID,
		&a.ApplicantID,
		&a.Message,
		&a.Status,
		&a.CreatedAt,
	)
}
