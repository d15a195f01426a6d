package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ajilpay/auth"
	"ajilpay/escrow"
	"ajilpay/wallet"
)

type walletResponse struct {
	Balance              int64  `json:"balance"`
	EscrowBalance        int64  `json:"escrow_balance"`
	BalanceDisplay       string `json:"balance_display"`
	EscrowBalanceDisplay string `json:"escrow_balance_display"`
}

type transactionResponse struct {
	ID            string    `json:"id"`
	SenderID      *string   `json:"sender_id"`
	ReceiverID    *string   `json:"receiver_id"`
	Amount        int64     `json:"amount"`
	AmountDisplay string    `json:"amount_display"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

func toWalletResponse(w wallet.Wallet) walletResponse {
	return walletResponse{
		Balance:              w.Balance,
		EscrowBalance:        w.EscrowBalance,
		BalanceDisplay:       wallet.FormatAmount(w.Balance),
		EscrowBalanceDisplay: wallet.FormatAmount(w.EscrowBalance),
	}
}

func toTransactionResponse(t wallet.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		SenderID:      t.SenderID,
		ReceiverID:    t.ReceiverID,
		Amount:        t.Amount,
		AmountDisplay: wallet.FormatAmount(t.Amount),
		Type:          string(t.Type),
		Status:        string(t.Status),
		Description:   t.Description,
		CreatedAt:     t.CreatedAt,
	}
}

func (s *Server) handleGetWallet(c *gin.Context) {
	userID := currentUserID(c)
	ctx := c.Request.Context()

	var cached walletResponse
	if ok, err := cacheGet(ctx, s.cache, walletCacheKey(userID), &cached); err == nil && ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	w, err := s.wallets.GetOrCreateWallet(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("get wallet failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		return
	}

	resp := toWalletResponse(w)
	_ = cacheSet(ctx, s.cache, walletCacheKey(userID), resp)
	c.JSON(http.StatusOK, resp)
}

type depositRequest struct {
	Amount      int64  `json:"amount" binding:"required,min=1"`
	Bank        string `json:"bank"`
	Description string `json:"description"`
}

func (s *Server) handleDeposit(c *gin.Context) {
	userID := currentUserID(c)

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	desc := req.Description
	if desc == "" {
		desc = "Bank deposit"
		if req.Bank != "" {
			desc = "Bank deposit - " + req.Bank
		}
	}

	entry, err := s.wallets.Deposit(c.Request.Context(), wallet.DepositParams{
		UserID:         userID,
		Amount:         req.Amount,
		Description:    desc,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		s.writeWalletError(c, err)
		return
	}

	invalidateUserCache(c.Request.Context(), s.cache, userID)
	c.JSON(http.StatusOK, toTransactionResponse(entry))
}

type withdrawRequest struct {
	Amount      int64  `json:"amount" binding:"required,min=1"`
	Description string `json:"description"`
}

func (s *Server) handleWithdraw(c *gin.Context) {
	userID := currentUserID(c)

	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	entry, err := s.wallets.Withdraw(c.Request.Context(), wallet.WithdrawParams{
		UserID:         userID,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		s.writeWalletError(c, err)
		return
	}

	invalidateUserCache(c.Request.Context(), s.cache, userID)
	c.JSON(http.StatusOK, toTransactionResponse(entry))
}

type transferRequest struct {
	ReceiverEmail string `json:"receiver_email" binding:"required"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
	TransferType  string `json:"transfer_type"`
}

// handleTransfer covers both transfer modes of the send-money form:
// "direct" moves the funds immediately, "escrow" holds them until both
// parties confirm. Receivers are addressed by email.
func (s *Server) handleTransfer(c *gin.Context) {
	userID := currentUserID(c)
	ctx := c.Request.Context()

	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	receiver, err := s.auth.GetUserByEmail(ctx, req.ReceiverEmail)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "receiver not found"})
			return
		}
		logrus.WithError(err).Error("resolve receiver failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		return
	}

	key := c.GetHeader("Idempotency-Key")

	switch req.TransferType {
	case "", "direct":
		entry, err := s.wallets.Transfer(ctx, wallet.TransferParams{
			SenderID:       userID,
			ReceiverID:     receiver.ID,
			Amount:         req.Amount,
			Description:    req.Description,
			IdempotencyKey: key,
		})
		if err != nil {
			s.writeWalletError(c, err)
			return
		}
		invalidateUserCache(ctx, s.cache, userID, receiver.ID)
		c.JSON(http.StatusOK, toTransactionResponse(entry))

	case "escrow":
		e, err := s.escrows.Create(ctx, escrow.CreateParams{
			SenderID:       userID,
			ReceiverID:     receiver.ID,
			Amount:         req.Amount,
			Description:    req.Description,
			IdempotencyKey: key,
		})
		if err != nil {
			s.writeEscrowError(c, err)
			return
		}
		invalidateUserCache(ctx, s.cache, userID, receiver.ID)
		c.JSON(http.StatusOK, toEscrowResponse(e))

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transfer type"})
	}
}

func (s *Server) handleHistory(c *gin.Context) {
	userID := currentUserID(c)
	ctx := c.Request.Context()

	var cached []transactionResponse
	if ok, err := cacheGet(ctx, s.cache, historyCacheKey(userID), &cached); err == nil && ok {
		c.JSON(http.StatusOK, gin.H{"transactions": cached})
		return
	}

	entries, err := s.wallets.History(ctx, userID, 50)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		return
	}

	resp := make([]transactionResponse, 0, len(entries))
	for _, t := range entries {
		resp = append(resp, toTransactionResponse(t))
	}
	_ = cacheSet(ctx, s.cache, historyCacheKey(userID), resp)
	c.JSON(http.StatusOK, gin.H{"transactions": resp})
}

func (s *Server) handleListPendingWithdrawals(c *gin.Context) {
	entries, err := s.wallets.PendingWithdrawals(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("list pending withdrawals failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		return
	}

	resp := make([]transactionResponse, 0, len(entries))
	for _, t := range entries {
		resp = append(resp, toTransactionResponse(t))
	}
	c.JSON(http.StatusOK, gin.H{"pending_withdrawals": resp})
}

func (s *Server) handleApproveWithdrawal(c *gin.Context) {
	s.settleWithdrawal(c, true)
}

func (s *Server) handleRejectWithdrawal(c *gin.Context) {
	s.settleWithdrawal(c, false)
}

func (s *Server) settleWithdrawal(c *gin.Context, approve bool) {
	entry, err := s.wallets.SettleWithdrawal(c.Request.Context(), wallet.SettleWithdrawalParams{
		TransactionID: c.Param("id"),
		Approve:       approve,
	})
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrTransactionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "withdrawal not found"})
		case errors.Is(err, wallet.ErrNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": "withdrawal is not pending"})
		default:
			logrus.WithError(err).Error("settle withdrawal failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		}
		return
	}

	if entry.SenderID != nil {
		invalidateUserCache(c.Request.Context(), s.cache, *entry.SenderID)
	}
	c.JSON(http.StatusOK, toTransactionResponse(entry))
}

// writeWalletError maps wallet sentinels onto the API's error taxonomy:
// validation failures are 4xx with an inline message, anything else is
// a generic 500.
func (s *Server) writeWalletError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, wallet.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance"})
	case errors.Is(err, wallet.ErrSelfTransfer):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot transfer to yourself"})
	case errors.Is(err, wallet.ErrDuplicateOperation):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate operation"})
	default:
		logrus.WithError(err).Error("wallet operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
	}
}
