package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"ajilpay/auth"
	"ajilpay/escrow"
	"ajilpay/listing"
	"ajilpay/wallet"
)

// Server bundles the domain services behind the HTTP API.
type Server struct {
	auth     *auth.Service
	wallets  *wallet.Service
	escrows  *escrow.Service
	listings *listing.Service
	cache    *redis.Client
}

// NewServer creates the HTTP server facade. The cache client may be nil,
// which disables read-side caching.
func NewServer(authSvc *auth.Service, wallets *wallet.Service, escrows *escrow.Service, listings *listing.Service, cache *redis.Client) *Server {
	return &Server{
		auth:     authSvc,
		wallets:  wallets,
		escrows:  escrows,
		listings: listings,
		cache:    cache,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.Use(requestID())

	r.POST("/auth/register", s.handleRegister)
	r.POST("/auth/login", s.handleLogin)

	authed := r.Group("/", authMiddleware(s.auth))
	{
		authed.GET("/wallet", s.handleGetWallet)
		authed.POST("/wallet/deposit", s.handleDeposit)
		authed.POST("/wallet/withdraw", s.handleWithdraw)
		authed.POST("/wallet/transfer", s.handleTransfer)
		authed.GET("/wallet/transactions", s.handleHistory)

		authed.GET("/escrows", s.handleListEscrows)
		authed.POST("/escrows/:id/confirm", s.handleConfirmEscrow)

		authed.POST("/listings", s.handleCreateListing)
		authed.GET("/listings", s.handleListListings)
		authed.GET("/listings/:id", s.handleGetListing)
		authed.POST("/listings/:id/close", s.handleCloseListing)
		authed.POST("/listings/:id/apply", s.handleApply)
		authed.GET("/listings/:id/applications", s.handleListApplications)
		authed.POST("/listings/:id/applications/:appID/decide", s.handleDecideApplication)
	}

	admin := r.Group("/admin", authMiddleware(s.auth), adminOnly())
	{
		admin.GET("/withdrawals", s.handleListPendingWithdrawals)
		admin.POST("/withdrawals/:id/approve", s.handleApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", s.handleRejectWithdrawal)
	}

	return r
}
