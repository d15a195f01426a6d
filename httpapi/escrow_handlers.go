package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ajilpay/escrow"
	"ajilpay/wallet"
)

type escrowResponse struct {
	ID                string    `json:"id"`
	SenderID          string    `json:"sender_id"`
	ReceiverID        string    `json:"receiver_id"`
	Amount            int64     `json:"amount"`
	AmountDisplay     string    `json:"amount_display"`
	Status            string    `json:"status"`
	SenderConfirmed   bool      `json:"sender_confirmed"`
	ReceiverConfirmed bool      `json:"receiver_confirmed"`
	Description       string    `json:"description"`
	CreatedAt         time.Time `json:"created_at"`
}

func toEscrowResponse(e escrow.Escrow) escrowResponse {
	return escrowResponse{
		ID:                e.ID,
		SenderID:          e.SenderID,
		ReceiverID:        e.ReceiverID,
		Amount:            e.Amount,
		AmountDisplay:     wallet.FormatAmount(e.Amount),
		Status:            string(e.Status),
		SenderConfirmed:   e.SenderConfirmed,
		ReceiverConfirmed: e.ReceiverConfirmed,
		Description:       e.Description,
		CreatedAt:         e.CreatedAt,
	}
}

func (s *Server) handleListEscrows(c *gin.Context) {
	userID := currentUserID(c)
	ctx := c.Request.Context()

	var cached []escrowResponse
	if ok, err := cacheGet(ctx, s.cache, escrowCacheKey(userID), &cached); err == nil && ok {
		c.JSON(http.StatusOK, gin.H{"escrows": cached})
		return
	}

	escrows, err := s.escrows.ListByUser(ctx, userID, 50)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("list escrows failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		return
	}

	resp := make([]escrowResponse, 0, len(escrows))
	for _, e := range escrows {
		resp = append(resp, toEscrowResponse(e))
	}
	_ = cacheSet(ctx, s.cache, escrowCacheKey(userID), resp)
	c.JSON(http.StatusOK, gin.H{"escrows": resp})
}

// handleConfirmEscrow records the caller's confirmation and, when it is
// the second one, settles the escrow.
func (s *Server) handleConfirmEscrow(c *gin.Context) {
	userID := currentUserID(c)
	ctx := c.Request.Context()

	e, err := s.escrows.Confirm(ctx, c.Param("id"), userID)
	if err != nil {
		s.writeEscrowError(c, err)
		return
	}

	invalidateUserCache(ctx, s.cache, e.SenderID, e.ReceiverID)
	c.JSON(http.StatusOK, toEscrowResponse(e))
}

func (s *Server) writeEscrowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "escrow not found"})
	case errors.Is(err, escrow.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a party to this escrow"})
	case errors.Is(err, escrow.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
	case errors.Is(err, escrow.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance"})
	case errors.Is(err, escrow.ErrSelfTransfer):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot transfer to yourself"})
	case errors.Is(err, wallet.ErrDuplicateOperation):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate operation"})
	default:
		logrus.WithError(err).Error("escrow operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
	}
}
