package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"ajilpay/auth"
	"ajilpay/listing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer() (*Server, *stubUserRepo, *stubListingRepo) {
	users := newStubUserRepo()
	listings := newStubListingRepo()
	s := NewServer(
		auth.NewService(users, "test-secret"),
		nil,
		nil,
		listing.NewService(listings),
		nil,
	)
	return s, users, listings
}

func doJSON(t *testing.T, router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerAndLogin(t *testing.T, router http.Handler, email, role string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/auth/register", "",
		fmt.Sprintf(`{"email":%q,"password":"secret-password","full_name":"Test User","role":%q}`, email, role))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/auth/login", "",
		fmt.Sprintf(`{"email":%q,"password":"secret-password"}`, email))
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return payload.Token
}

func TestRegister_DuplicateEmail(t *testing.T) {
	s, _, _ := newTestServer()
	router := s.Router()

	body := `{"email":"bat@example.mn","password":"secret-password","full_name":"Bat"}`
	if rec := doJSON(t, router, http.MethodPost, "/auth/register", "", body); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodPost, "/auth/register", "", body); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	s, _, _ := newTestServer()

	rec := doJSON(t, s.Router(), http.MethodPost, "/auth/register", "",
		`{"email":"bat@example.mn","password":"short","full_name":"Bat"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	s, _, _ := newTestServer()
	router := s.Router()
	registerAndLogin(t, router, "bat@example.mn", "worker")

	rec := doJSON(t, router, http.MethodPost, "/auth/login", "",
		`{"email":"bat@example.mn","password":"wrong-password"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	s, _, _ := newTestServer()

	rec := doJSON(t, s.Router(), http.MethodGet, "/listings", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, s.Router(), http.MethodGet, "/listings", "not-a-jwt", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestAdminRoutes_ForbiddenForWorker(t *testing.T) {
	s, _, _ := newTestServer()
	router := s.Router()
	token := registerAndLogin(t, router, "worker@example.mn", "worker")

	rec := doJSON(t, router, http.MethodGet, "/admin/withdrawals", token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
}

func TestTransfer_ZeroAmountRejected(t *testing.T) {
	s, _, _ := newTestServer()
	router := s.Router()

	token := registerAndLogin(t, router, "bat@example.mn", "worker")

	for _, body := range []string{
		`{"receiver_email":"saraa@example.mn","amount":0}`,
		`{"receiver_email":"saraa@example.mn","amount":-50}`,
	} {
		rec := doJSON(t, router, http.MethodPost, "/wallet/transfer", token, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "invalid amount") {
			t.Errorf("expected invalid amount message, got %s", rec.Body.String())
		}
	}
}

func TestListingFlow(t *testing.T) {
	s, _, _ := newTestServer()
	router := s.Router()
	employer := registerAndLogin(t, router, "employer@example.mn", "employer")
	worker := registerAndLogin(t, router, "worker@example.mn", "worker")

	rec := doJSON(t, router, http.MethodPost, "/listings", employer,
		`{"kind":"job","title":"Warehouse worker","description":"Night shift","category":"logistics"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create listing: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode listing: %v", err)
	}

	// Owner cannot apply to their own post.
	rec = doJSON(t, router, http.MethodPost, "/listings/"+created.ID+"/apply", employer, `{"message":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("own apply: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/listings/"+created.ID+"/apply", worker, `{"message":"I can start Monday"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("apply: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Double apply is a conflict.
	rec = doJSON(t, router, http.MethodPost, "/listings/"+created.ID+"/apply", worker, `{}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double apply: expected 409, got %d", rec.Code)
	}

	// Applications are owner-only.
	rec = doJSON(t, router, http.MethodGet, "/listings/"+created.ID+"/applications", worker, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("applications as worker: expected 403, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/listings/"+created.ID+"/applications", employer, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("applications as owner: expected 200, got %d", rec.Code)
	}

	// Close, then applying returns conflict.
	rec = doJSON(t, router, http.MethodPost, "/listings/"+created.ID+"/close", employer, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, router, http.MethodPost, "/listings/"+created.ID+"/apply", worker, `{}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("apply to closed: expected 409, got %d", rec.Code)
	}
}

func TestGetListing_NotFound(t *testing.T) {
	s, _, _ := newTestServer()
	router := s.Router()
	token := registerAndLogin(t, router, "worker@example.mn", "worker")

	rec := doJSON(t, router, http.MethodGet, "/listings/missing", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

type stubUserRepo struct {
	byEmail map[string]auth.User
	byID    map[string]auth.User
	nextID  int
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{byEmail: map[string]auth.User{}, byID: map[string]auth.User{}}
}

func (f *stubUserRepo) CreateUser(_ context.Context, params auth.CreateUserParams) (auth.User, error) {
	if _, ok := f.byEmail[params.Email]; ok {
		return auth.User{}, auth.ErrDuplicateEmail
	}
	f.nextID++
	user := auth.User{
		ID:           fmt.Sprintf("user-%d", f.nextID),
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Phone:        params.Phone,
		Role:         params.Role,
	}
	f.byEmail[user.Email] = user
	f.byID[user.ID] = user
	return user, nil
}

func (f *stubUserRepo) GetUserByEmail(_ context.Context, email string) (auth.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return user, nil
}

func (f *stubUserRepo) GetUserByID(_ context.Context, userID string) (auth.User, error) {
	user, ok := f.byID[userID]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return user, nil
}

type stubListingRepo struct {
	listings map[string]listing.Listing
	apps     map[string]listing.Application
	nextID   int
}

func newStubListingRepo() *stubListingRepo {
	return &stubListingRepo{
		listings: map[string]listing.Listing{},
		apps:     map[string]listing.Application{},
	}
}

func (f *stubListingRepo) Create(_ context.Context, l listing.Listing) (listing.Listing, error) {
	f.nextID++
	l.ID = fmt.Sprintf("l-%d", f.nextID)
	l.Status = listing.StatusOpen
	f.listings[l.ID] = l
	return l, nil
}

func (f *stubListingRepo) Get(_ context.Context, id string) (listing.Listing, error) {
	l, ok := f.listings[id]
	if !ok {
		return listing.Listing{}, listing.ErrNotFound
	}
	return l, nil
}

func (f *stubListingRepo) List(_ context.Context, filters listing.Filters) ([]listing.Listing, int, error) {
	out := []listing.Listing{}
	for _, l := range f.listings {
		out = append(out, l)
	}
	return out, len(out), nil
}

func (f *stubListingRepo) SetStatus(_ context.Context, id string, status listing.Status) (listing.Listing, error) {
	l, ok := f.listings[id]
	if !ok {
		return listing.Listing{}, listing.ErrNotFound
	}
	l.Status = status
	f.listings[id] = l
	return l, nil
}

func (f *stubListingRepo) InsertApplication(_ context.Context, a listing.Application) (listing.Application, error) {
	for _, existing := range f.apps {
		if existing.ListingID == a.ListingID && existing.ApplicantID == a.ApplicantID {
			return listing.Application{}, listing.ErrAlreadyApplied
		}
	}
	f.nextID++
	a.ID = fmt.Sprintf("a-%d", f.nextID)
	a.Status = listing.ApplicationPending
	f.apps[a.ID] = a
	return a, nil
}

func (f *stubListingRepo) ListApplications(_ context.Context, listingID string) ([]listing.Application, error) {
	out := []listing.Application{}
	for _, a := range f.apps {
		if a.ListingID == listingID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *stubListingRepo) SetApplicationStatus(_ context.Context, listingID, id string, status listing.ApplicationStatus) (listing.Application, error) {
	a, ok := f.apps[id]
	if !ok || a.ListingID != listingID {
		return listing.Application{}, listing.ErrApplicationNotFound
	}
	a.Status = status
	f.apps[id] = a
	return a, nil
}
