package settlement

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	playground "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/joefazee/parimutuel/app/api"
	"github.com/joefazee/parimutuel/internal/lock"
	"github.com/joefazee/parimutuel/internal/logger"
	"github.com/joefazee/parimutuel/internal/validator"
	"github.com/joefazee/parimutuel/models"
)

// Handler handles HTTP requests for market settlement
type Handler struct {
	service  Service
	validate *playground.Validate
	log      logger.Logger
}

// NewHandler creates a new settlement handler
func NewHandler(service Service, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Handler{
		service:  service,
		validate: playground.New(),
		log:      log,
	}
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings lists the settlement failures clients can act on. Anything
// else is reported as an internal error.
var errorMappings = []errorMapping{
	{models.ErrAlreadyResolved, http.StatusConflict, "ALREADY_RESOLVED"},
	{models.ErrDeadlinePassed, http.StatusConflict, "DEADLINE_PASSED"},
	{models.ErrDeadlineNotReached, http.StatusConflict, "DEADLINE_NOT_REACHED"},
	{models.ErrAlreadyParticipated, http.StatusConflict, "ALREADY_PARTICIPATED"},
	{models.ErrNotResolved, http.StatusConflict, "NOT_RESOLVED"},
	{models.ErrNotCreator, http.StatusForbidden, "NOT_CREATOR"},
	{models.ErrNotTokenOwner, http.StatusForbidden, "NOT_TOKEN_OWNER"},
	{models.ErrInvalidOutcome, http.StatusBadRequest, "INVALID_OUTCOME"},
	{models.ErrInsufficientStake, http.StatusBadRequest, "INSUFFICIENT_STAKE"},
	{models.ErrInvalidRecipient, http.StatusBadRequest, "INVALID_RECIPIENT"},
	{models.ErrInvalidUUID, http.StatusBadRequest, "BAD_REQUEST"},
	{models.ErrInvalidCreatorID, http.StatusBadRequest, "BAD_REQUEST"},
	{models.ErrInvalidMarketID, http.StatusBadRequest, "BAD_REQUEST"},
	{models.ErrInvalidQuestion, http.StatusBadRequest, "BAD_REQUEST"},
	{models.ErrInvalidDeadline, http.StatusBadRequest, "BAD_REQUEST"},
	{models.ErrWrongOutcome, http.StatusUnprocessableEntity, "WRONG_OUTCOME"},
	{models.ErrNoWinningStake, http.StatusUnprocessableEntity, "NO_WINNING_STAKE"},
	{models.ErrAmountOverflow, http.StatusUnprocessableEntity, "AMOUNT_OVERFLOW"},
	{models.ErrRecordNotFound, http.StatusNotFound, "NOT_FOUND"},
	{models.ErrClaimTokenBurned, http.StatusNotFound, "NOT_FOUND"},
	{lock.ErrLockTimeout, http.StatusServiceUnavailable, "MARKET_BUSY"},
}

// handleServiceError writes the response for a failed service call.
func (h *Handler) handleServiceError(c *gin.Context, err error, operation string) {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		api.ValidationErrorResponse(c, verr.Fields)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			api.ErrorResponse(c, m.status, m.code, m.err.Error(), nil)
			return
		}
	}

	h.log.Error(err, logger.Fields{"op": operation, "path": c.FullPath()})
	api.InternalErrorResponse(c, "Failed to "+operation)
}

func (h *Handler) parseUUIDFromParam(c *gin.Context, paramName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(paramName))
	if err != nil {
		api.BadRequestResponse(c, "Invalid "+paramName+" format")
		return uuid.Nil, false
	}
	return id, true
}

// bindJSONRequest binds the body into req and runs its struct validation.
func (h *Handler) bindJSONRequest(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		api.BadRequestResponse(c, err.Error())
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		api.ValidationErrorResponse(c, h.formatValidationErrors(err))
		return false
	}
	return true
}

func (h *Handler) identity(c *gin.Context) (uuid.UUID, bool) {
	id := api.IdentityFromContext(c)
	if id == uuid.Nil {
		api.UnauthorizedResponse(c)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) formatValidationErrors(err error) interface{} {
	var validationErrors playground.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, fe := range validationErrors {
			fields[fe.Field()] = validationMessage(fe)
		}
		return fields
	}
	return err.Error()
}

func validationMessage(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "uuid":
		return "Must be a valid UUID"
	case "min":
		return "Value must be at least " + fe.Param()
	default:
		return "Invalid value"
	}
}

func paginationMeta(total int64, page, perPage, totalPages int) api.PaginationMeta {
	return api.PaginationMeta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// CreateMarket godoc
// @Summary Open a market
// @Tags settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateMarketRequest true "Market"
// @Success 201 {object} api.Response{data=MarketResponse}
// @Failure 400 {object} api.Response{error=api.ErrorInfo}
// @Router /api/v1/markets [post]
func (h *Handler) CreateMarket(c *gin.Context) {
	creator, ok := h.identity(c)
	if !ok {
		return
	}

	var req CreateMarketRequest
	if !h.bindJSONRequest(c, &req) {
		return
	}

	market, err := h.service.CreateMarket(c.Request.Context(), creator, &req)
	if err != nil {
		h.handleServiceError(c, err, "create market")
		return
	}
	api.CreatedResponse(c, "Market created successfully", market)
}

// PlaceStake godoc
// @Summary Stake on an outcome
// @Tags settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Market ID"
// @Param request body PlaceStakeRequest true "Stake"
// @Success 201 {object} api.Response{data=StakeResponse}
// @Failure 409 {object} api.Response{error=api.ErrorInfo}
// @Router /api/v1/markets/{id}/stakes [post]
func (h *Handler) PlaceStake(c *gin.Context) {
	staker, ok := h.identity(c)
	if !ok {
		return
	}
	marketID, ok := h.parseUUIDFromParam(c, "id")
	if !ok {
		return
	}

	var req PlaceStakeRequest
	if !h.bindJSONRequest(c, &req) {
		return
	}

	result, err := h.service.PlaceStake(c.Request.Context(), marketID, staker, &req)
	if err != nil {
		h.handleServiceError(c, err, "place stake")
		return
	}
	api.CreatedResponse(c, "Stake placed successfully", result)
}

// ResolveMarket godoc
// @Summary Resolve a market
// @Tags settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Market ID"
// @Param request body ResolveMarketRequest true "Winning outcome"
// @Success 200 {object} api.Response{data=MarketResponse}
// @Failure 403 {object} api.Response{error=api.ErrorInfo}
// @Router /api/v1/markets/{id}/resolve [post]
func (h *Handler) ResolveMarket(c *gin.Context) {
	caller, ok := h.identity(c)
	if !ok {
		return
	}
	marketID, ok := h.parseUUIDFromParam(c, "id")
	if !ok {
		return
	}

	var req ResolveMarketRequest
	if !h.bindJSONRequest(c, &req) {
		return
	}

	market, err := h.service.ResolveMarket(c.Request.Context(), marketID, caller, &req)
	if err != nil {
		h.handleServiceError(c, err, "resolve market")
		return
	}
	api.UpdatedResponse(c, "Market resolved successfully", market)
}

// ClaimReward godoc
// @Summary Redeem a claim token
// @Tags settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Market ID"
// @Param request body ClaimRewardRequest true "Claim token"
// @Success 200 {object} api.Response{data=ClaimResponse}
// @Failure 422 {object} api.Response{error=api.ErrorInfo}
// @Router /api/v1/markets/{id}/claims [post]
func (h *Handler) ClaimReward(c *gin.Context) {
	caller, ok := h.identity(c)
	if !ok {
		return
	}
	marketID, ok := h.parseUUIDFromParam(c, "id")
	if !ok {
		return
	}

	var req ClaimRewardRequest
	if !h.bindJSONRequest(c, &req) {
		return
	}

	result, err := h.service.ClaimReward(c.Request.Context(), marketID, caller, &req)
	if err != nil {
		h.handleServiceError(c, err, "claim reward")
		return
	}
	api.SuccessResponse(c, http.StatusOK, "Reward paid successfully", result)
}

// TransferClaimToken godoc
// @Summary Transfer a claim token
// @Tags settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Claim token ID"
// @Param request body TransferClaimTokenRequest true "Recipient"
// @Success 200 {object} api.Response{data=ClaimTokenResponse}
// @Router /api/v1/claim-tokens/{id}/transfer [post]
func (h *Handler) TransferClaimToken(c *gin.Context) {
	caller, ok := h.identity(c)
	if !ok {
		return
	}
	tokenID, ok := h.parseUUIDFromParam(c, "id")
	if !ok {
		return
	}

	var req TransferClaimTokenRequest
	if !h.bindJSONRequest(c, &req) {
		return
	}

	token, err := h.service.TransferClaimToken(c.Request.Context(), tokenID, caller, &req)
	if err != nil {
		h.handleServiceError(c, err, "transfer claim token")
		return
	}
	api.UpdatedResponse(c, "Claim token transferred successfully", token)
}

// ListMarkets godoc
// @Summary List markets
// @Tags settlement
// @Produce json
// @Param creator query string false "Filter by creator"
// @Param resolved query bool false "Filter by resolution"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} api.Response{data=[]MarketResponse}
// @Router /api/v1/markets [get]
func (h *Handler) ListMarkets(c *gin.Context) {
	var filters MarketFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		api.ValidationErrorResponse(c, err.Error())
		return
	}
	if err := h.validate.Struct(&filters); err != nil {
		api.ValidationErrorResponse(c, h.formatValidationErrors(err))
		return
	}

	result, err := h.service.ListMarkets(c.Request.Context(), &filters)
	if err != nil {
		h.handleServiceError(c, err, "fetch markets")
		return
	}

	api.PaginatedResponse(c, "Markets retrieved successfully", result.Markets,
		paginationMeta(result.Total, result.Page, result.PerPage, result.TotalPages))
}

// executeRead parses the :id parameter and writes the result of read.
func (h *Handler) executeRead(c *gin.Context, operation, message string, read func(id uuid.UUID) (interface{}, error)) {
	id, ok := h.parseUUIDFromParam(c, "id")
	if !ok {
		return
	}

	result, err := read(id)
	if err != nil {
		h.handleServiceError(c, err, operation)
		return
	}
	api.SuccessResponse(c, http.StatusOK, message, result)
}

// GetMarketInfo godoc
// @Summary Get market details
// @Tags settlement
// @Produce json
// @Param id path string true "Market ID"
// @Success 200 {object} api.Response{data=MarketResponse}
// @Failure 404 {object} api.Response{error=api.ErrorInfo}
// @Router /api/v1/markets/{id} [get]
func (h *Handler) GetMarketInfo(c *gin.Context) {
	h.executeRead(c, "fetch market", "Market retrieved successfully", func(id uuid.UUID) (interface{}, error) {
		return h.service.GetMarketInfo(c.Request.Context(), id)
	})
}

// GetOdds godoc
// @Summary Get stake distribution
// @Tags settlement
// @Produce json
// @Param id path string true "Market ID"
// @Success 200 {object} api.Response{data=OddsResponse}
// @Router /api/v1/markets/{id}/odds [get]
func (h *Handler) GetOdds(c *gin.Context) {
	h.executeRead(c, "fetch odds", "Odds retrieved successfully", func(id uuid.UUID) (interface{}, error) {
		return h.service.GetOdds(c.Request.Context(), id)
	})
}

// GetPoolValue godoc
// @Summary Get pool value
// @Tags settlement
// @Produce json
// @Param id path string true "Market ID"
// @Success 200 {object} api.Response{data=PoolResponse}
// @Router /api/v1/markets/{id}/pool [get]
func (h *Handler) GetPoolValue(c *gin.Context) {
	h.executeRead(c, "fetch pool", "Pool retrieved successfully", func(id uuid.UUID) (interface{}, error) {
		return h.service.GetPoolValue(c.Request.Context(), id)
	})
}

// GetStatus godoc
// @Summary Get resolution status
// @Tags settlement
// @Produce json
// @Param id path string true "Market ID"
// @Success 200 {object} api.Response{data=StatusResponse}
// @Router /api/v1/markets/{id}/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	h.executeRead(c, "fetch status", "Status retrieved successfully", func(id uuid.UUID) (interface{}, error) {
		return h.service.GetStatus(c.Request.Context(), id)
	})
}

// GetMarketEvents godoc
// @Summary Get settlement history
// @Tags settlement
// @Produce json
// @Param id path string true "Market ID"
// @Success 200 {object} api.Response{data=[]EventResponse}
// @Router /api/v1/markets/{id}/events [get]
func (h *Handler) GetMarketEvents(c *gin.Context) {
	id, ok := h.parseUUIDFromParam(c, "id")
	if !ok {
		return
	}

	evs, err := h.service.GetMarketEvents(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err, "fetch events")
		return
	}
	api.ListResponse(c, "Events retrieved successfully", evs, len(evs))
}

// HasParticipated godoc
// @Summary Check participation
// @Tags settlement
// @Produce json
// @Param id path string true "Market ID"
// @Param identity path string true "Identity"
// @Success 200 {object} api.Response{data=ParticipationResponse}
// @Router /api/v1/markets/{id}/participants/{identity} [get]
func (h *Handler) HasParticipated(c *gin.Context) {
	marketID, ok := h.parseUUIDFromParam(c, "id")
	if !ok {
		return
	}
	identity, ok := h.parseUUIDFromParam(c, "identity")
	if !ok {
		return
	}

	result, err := h.service.HasParticipated(c.Request.Context(), marketID, identity)
	if err != nil {
		h.handleServiceError(c, err, "fetch participation")
		return
	}
	api.SuccessResponse(c, http.StatusOK, "Participation retrieved successfully", result)
}

// GetClaimTokenInfo godoc
// @Summary Get claim token
// @Tags settlement
// @Produce json
// @Param id path string true "Claim token ID"
// @Success 200 {object} api.Response{data=ClaimTokenResponse}
// @Failure 404 {object} api.Response{error=api.ErrorInfo}
// @Router /api/v1/claim-tokens/{id} [get]
func (h *Handler) GetClaimTokenInfo(c *gin.Context) {
	h.executeRead(c, "fetch claim token", "Claim token retrieved successfully", func(id uuid.UUID) (interface{}, error) {
		return h.service.GetClaimTokenInfo(c.Request.Context(), id)
	})
}

// QuoteReward godoc
// @Summary Quote the reward of a claim token
// @Tags settlement
// @Produce json
// @Param id path string true "Claim token ID"
// @Success 200 {object} api.Response{data=QuoteResponse}
// @Router /api/v1/claim-tokens/{id}/quote [get]
func (h *Handler) QuoteReward(c *gin.Context) {
	h.executeRead(c, "quote reward", "Quote calculated successfully", func(id uuid.UUID) (interface{}, error) {
		return h.service.QuoteReward(c.Request.Context(), id)
	})
}

// ListMyClaimTokens godoc
// @Summary List my claim tokens
// @Tags settlement
// @Produce json
// @Security BearerAuth
// @Param market_id query string false "Filter by market"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} api.Response{data=[]ClaimTokenListItem}
// @Router /api/v1/claim-tokens [get]
func (h *Handler) ListMyClaimTokens(c *gin.Context) {
	owner, ok := h.identity(c)
	if !ok {
		return
	}

	var filters ClaimTokenFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		api.ValidationErrorResponse(c, err.Error())
		return
	}
	if err := h.validate.Struct(&filters); err != nil {
		api.ValidationErrorResponse(c, h.formatValidationErrors(err))
		return
	}

	result, err := h.service.ListClaimTokens(c.Request.Context(), owner, &filters)
	if err != nil {
		h.handleServiceError(c, err, "fetch claim tokens")
		return
	}

	api.PaginatedResponse(c, "Claim tokens retrieved successfully", result.Tokens,
		paginationMeta(result.Total, result.Page, result.PerPage, result.TotalPages))
}
