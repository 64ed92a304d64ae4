// internal/handlers/trade.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kinbech/backend/internal/models"
	"github.com/kinbech/backend/internal/services"
	"github.com/kinbech/backend/internal/utils"
)

type TradeHandler struct {
	tradeService   *services.TradeService
	offerService   *services.OfferService
	auctionService *services.AuctionService
	queryService   *services.TradeQueryService
	storageService *services.StorageService
}

func NewTradeHandler(
	tradeService *services.TradeService,
	offerService *services.OfferService,
	auctionService *services.AuctionService,
	queryService *services.TradeQueryService,
	storageService *services.StorageService,
) *TradeHandler {
	return &TradeHandler{
		tradeService:   tradeService,
		offerService:   offerService,
		auctionService: auctionService,
		queryService:   queryService,
		storageService: storageService,
	}
}

// currentUserID resolves the authenticated caller, writing the 401 itself
// when missing.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return uuid.Nil, false
	}
	return userID, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON binds the request body, reporting field-level validation failures
// as a structured 400.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if fields := utils.GetValidationErrors(err); len(fields) > 0 {
			utils.ValidationErrorResponse(c, fields)
		} else {
			utils.BadRequestResponse(c, "Invalid input", err.Error())
		}
		return false
	}
	return true
}

// POST /trades
func (h *TradeHandler) CreateTrade(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateTradeRequest
	if !bindJSON(c, &req) {
		return
	}

	trade, err := h.tradeService.CreateTrade(buyerID, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"trade": trade})
}

// GET /trades
func (h *TradeHandler) GetTrades(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	filter := services.TradeListFilter{
		Role:   c.Query("role"),
		View:   c.Query("view"),
		Status: models.TradeStatus(c.Query("status")),
	}

	trades, total, err := h.queryService.ListTrades(userID, filter, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	result := utils.CreatePaginationResult(trades, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /trades/:id
func (h *TradeHandler) GetTrade(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	trade, err := h.tradeService.GetTrade(userID, tradeID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"trade": trade})
}

// GET /trades/product/:productId
func (h *TradeHandler) GetTradesByProduct(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	productID, ok := pathUUID(c, "productId")
	if !ok {
		return
	}

	trades, err := h.queryService.TradesByProduct(userID, productID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"trades": trades})
}

// GET /trades/auctions/active
func (h *TradeHandler) GetActiveAuctions(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	auctions, total, err := h.queryService.ActiveAuctions(params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	result := utils.CreatePaginationResult(auctions, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /trades/stats/overview
func (h *TradeHandler) GetTradeStats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	stats, err := h.queryService.Stats(userID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"stats": stats})
}

// PUT /trades/:id/status
func (h *TradeHandler) UpdateTradeStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status  models.TradeStatus `json:"status" binding:"required"`
		Details string             `json:"details"`
	}
	if !bindJSON(c, &req) {
		return
	}

	trade, err := h.tradeService.UpdateStatus(userID, tradeID, req.Status, req.Details)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"trade": trade})
}

// POST /trades/:id/offer
func (h *TradeHandler) SubmitOffer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Amount  float64 `json:"amount" binding:"required"`
		Message string  `json:"message"`
	}
	if !bindJSON(c, &req) {
		return
	}

	trade, offer, err := h.offerService.SubmitOffer(userID, tradeID, req.Amount, req.Message)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"trade": trade, "offer": offer})
}

// PUT /trades/:id/offer/:offerId
func (h *TradeHandler) RespondToOffer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "offerId")
	if !ok {
		return
	}

	var req struct {
		Action         string   `json:"action" binding:"required"`
		CounterAmount  *float64 `json:"counter_amount"`
		CounterMessage string   `json:"counter_message"`
	}
	if !bindJSON(c, &req) {
		return
	}

	trade, offer, err := h.offerService.RespondToOffer(userID, tradeID, offerID,
		services.OfferAction(req.Action), req.CounterAmount, req.CounterMessage)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"trade": trade, "offer": offer})
}

// PUT /trades/:id/counter/:offerId
func (h *TradeHandler) RespondToCounter(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "offerId")
	if !ok {
		return
	}

	var req struct {
		Accept *bool `json:"accept" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	trade, offer, err := h.offerService.RespondToCounter(userID, tradeID, offerID, *req.Accept)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"trade": trade, "offer": offer})
}

// POST /trades/:id/respond
func (h *TradeHandler) RespondToTrade(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Accept *bool `json:"accept" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	trade, err := h.tradeService.Respond(userID, tradeID, *req.Accept)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"trade": trade})
}

// PUT /trades/:id/accept
func (h *TradeHandler) AcceptTrade(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	trade, err := h.tradeService.MutualAccept(userID, tradeID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"trade": trade})
}

// PUT /trades/:id/reject
func (h *TradeHandler) RejectTrade(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	trade, err := h.tradeService.Reject(userID, tradeID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"trade": trade})
}

// POST /trades/:id/message
// Accepts multipart form data with an optional image alongside the text.
func (h *TradeHandler) PostMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	text := c.PostForm("message")

	var imageURL string
	if file, header, err := c.Request.FormFile("image"); err == nil {
		defer file.Close()
		result, err := h.storageService.UploadTradeImage(file, header)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}
		imageURL = result.URL
	}

	message, err := h.tradeService.PostMessage(userID, tradeID, text, imageURL)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"trade_message": message})
}

// PUT /trades/:id/end-auction
func (h *TradeHandler) EndAuction(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	trade, err := h.auctionService.EndAuction(userID, tradeID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"trade": trade})
}

// POST /trades/:id/rate
func (h *TradeHandler) RateTrade(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Role   models.TradeRole `json:"role" binding:"required"`
		Rating int              `json:"rating" binding:"required"`
		Review string           `json:"review"`
	}
	if !bindJSON(c, &req) {
		return
	}

	trade, err := h.tradeService.RateTrade(userID, tradeID, req.Role, req.Rating, req.Review)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"trade": trade})
}

// POST /trades/:id/dispute
func (h *TradeHandler) RaiseDispute(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tradeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Reason      string `json:"reason" binding:"required"`
		Description string `json:"description" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	trade, err := h.tradeService.RaiseDispute(userID, tradeID, req.Reason, req.Description)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"trade": trade})
}
