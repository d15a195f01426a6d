package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ajilpay/listing"
)

type listingResponse struct {
	ID           string  `json:"id"`
	OwnerID      string  `json:"owner_id"`
	Kind         string  `json:"kind"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Location     *string `json:"location,omitempty"`
	SalaryMin    *int64  `json:"salary_min,omitempty"`
	SalaryMax    *int64  `json:"salary_max,omitempty"`
	JobType      *string `json:"job_type,omitempty"`
	Category     *string `json:"category,omitempty"`
	ContactPhone *string `json:"contact_phone,omitempty"`
	ContactEmail *string `json:"contact_email,omitempty"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
}

func toListingResponse(l listing.Listing) listingResponse {
	return listingResponse{
		ID:           l.ID,
		OwnerID:      l.OwnerID,
		Kind:         string(l.Kind),
		Title:        l.Title,
		Description:  l.Description,
		Location:     l.Location,
		SalaryMin:    l.SalaryMin,
		SalaryMax:    l.SalaryMax,
		JobType:      l.JobType,
		Category:     l.Category,
		ContactPhone: l.ContactPhone,
		ContactEmail: l.ContactEmail,
		Status:       string(l.Status),
		CreatedAt:    l.CreatedAt.Format(time.RFC3339),
	}
}

type applicationResponse struct {
	ID          string  `json:"id"`
	ListingID   string  `json:"listing_id"`
	ApplicantID string  `json:"applicant_id"`
	Message     *string `json:"message,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
}

func toApplicationResponse(a listing.Application) applicationResponse {
	return applicationResponse{
		ID:          a.ID,
		ListingID:   a.ListingID,
		ApplicantID: a.ApplicantID,
		Message:     a.Message,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
}

type createListingRequest struct {
	Kind         string `json:"kind" binding:"required"`
	Title        string `json:"title" binding:"required"`
	Description  string `json:"description" binding:"required"`
	Location     string `json:"location"`
	SalaryMin    *int64 `json:"salary_min"`
	SalaryMax    *int64 `json:"salary_max"`
	JobType      string `json:"job_type"`
	Category     string `json:"category"`
	ContactPhone string `json:"contact_phone"`
	ContactEmail string `json:"contact_email"`
}

func (s *Server) handleCreateListing(c *gin.Context) {
	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	l, err := s.listings.Create(c.Request.Context(), listing.CreateParams{
		OwnerID:      currentUserID(c),
		Kind:         listing.Kind(req.Kind),
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		SalaryMin:    req.SalaryMin,
		SalaryMax:    req.SalaryMax,
		JobType:      req.JobType,
		Category:     req.Category,
		ContactPhone: req.ContactPhone,
		ContactEmail: req.ContactEmail,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toListingResponse(l))
}

func (s *Server) handleListListings(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	filters := listing.Filters{
		Kind:     listing.Kind(c.Query("kind")),
		Status:   listing.Status(c.Query("status")),
		Category: c.Query("category"),
		OwnerID:  c.Query("owner_id"),
		Page:     page,
		PageSize: pageSize,
	}

	list, total, err := s.listings.List(c.Request.Context(), filters)
	if err != nil {
		logrus.WithError(err).Error("list listings failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		return
	}

	out := make([]listingResponse, 0, len(list))
	for _, l := range list {
		out = append(out, toListingResponse(l))
	}
	c.JSON(http.StatusOK, gin.H{"listings": out, "total": total})
}

func (s *Server) handleGetListing(c *gin.Context) {
	l, err := s.listings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, toListingResponse(l))
}

func (s *Server) handleCloseListing(c *gin.Context) {
	l, err := s.listings.Close(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		s.writeListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, toListingResponse(l))
}

type applyRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleApply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	a, err := s.listings.Apply(c.Request.Context(), currentUserID(c), c.Param("id"), req.Message)
	if err != nil {
		s.writeListingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toApplicationResponse(a))
}

func (s *Server) handleListApplications(c *gin.Context) {
	apps, err := s.listings.Applications(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		s.writeListingError(c, err)
		return
	}
	out := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, toApplicationResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"applications": out})
}

type decideRequest struct {
	Accept bool `json:"accept"`
}

func (s *Server) handleDecideApplication(c *gin.Context) {
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	a, err := s.listings.Decide(c.Request.Context(), currentUserID(c), c.Param("id"), c.Param("appID"), req.Accept)
	if err != nil {
		s.writeListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApplicationResponse(a))
}

func (s *Server) writeListingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, listing.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
	case errors.Is(err, listing.ErrApplicationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
	case errors.Is(err, listing.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, listing.ErrClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "listing is closed"})
	case errors.Is(err, listing.ErrOwnListing):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot apply to your own listing"})
	case errors.Is(err, listing.ErrAlreadyApplied):
		c.JSON(http.StatusConflict, gin.H{"error": "already applied"})
	default:
		logrus.WithError(err).Error("listing operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
	}
}
