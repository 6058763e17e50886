package handler

import (
	"context"
	"errors"
	"io"

	"github.com/erp/salesrecon/internal/application/closing"
	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/interfaces/http/dto"
	"github.com/erp/salesrecon/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// CloseService is the close-invoice use case the handler drives
type CloseService interface {
	Open(ctx context.Context, ref sales.InvoiceRef) (*closing.SessionView, error)
	Get(ctx context.Context, id string) (*closing.SessionView, error)
	Enter(ctx context.Context, id string, entry sales.PaymentEntry) (*closing.SessionView, error)
	Submit(ctx context.Context, id string, opts closing.SubmitOptions) (*closing.SubmitResult, error)
	Cancel(ctx context.Context, id string) error
	ReturnToCart(ctx context.Context, numFact string) error
	UpdateSeller(ctx context.Context, numFact string, usr int64) error
	History(ctx context.Context, ref sales.InvoiceRef) ([]sales.CloseAttempt, error)
	Attempts(ctx context.Context, filter sales.CloseAttemptFilter) ([]sales.CloseAttempt, int64, error)
}

// CloseSessionHandler serves the close-invoice dialog
type CloseSessionHandler struct {
	BaseHandler
	closeService CloseService
}

// NewCloseSessionHandler creates a new CloseSessionHandler
func NewCloseSessionHandler(closeService CloseService) *CloseSessionHandler {
	return &CloseSessionHandler{closeService: closeService}
}

// InvoiceHistoryRequest names the shop of an invoice whose journal is read
type InvoiceHistoryRequest struct {
	PointOfSale string `form:"ps" binding:"required,max=20"`
}

// canSee reports whether the caller may work on invoices of ps. Anonymous
// callers are only possible when authentication is optional.
func canSee(c *gin.Context, ps string) bool {
	claims := middleware.GetJWTClaims(c)
	return claims == nil || claims.CanSeePointOfSale(ps)
}

// session loads a session the caller is allowed to touch. It writes the
// error response itself and reports false when the caller must stop.
func (h *CloseSessionHandler) session(c *gin.Context, id string) (*closing.SessionView, bool) {
	view, err := h.closeService.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	if !canSee(c, view.Invoice.PointOfSale) {
		// a foreign session is reported as missing
		h.HandleError(c, closing.ErrSessionNotFound)
		return nil, false
	}
	return view, true
}

// Open godoc
// @ID           openCloseSession
// @Summary      Open a close session
// @Description  Loads every row of the invoice and seeds the dialog with the amounts on file
// @Tags         close-sessions
// @Accept       json
// @Produce      json
// @Param        request body dto.OpenCloseSessionRequest true "Invoice identifiers"
// @Success      201 {object} APIResponse[closing.SessionView]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /invoices/close-sessions [post]
func (h *CloseSessionHandler) Open(c *gin.Context) {
	var req dto.OpenCloseSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if !canSee(c, req.PointOfSale) {
		h.Forbidden(c, "Point of sale is not accessible")
		return
	}

	view, err := h.closeService.Open(c.Request.Context(), req.Ref())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, view)
}

// Get godoc
// @ID           getCloseSession
// @Summary      Get a close session
// @Tags         close-sessions
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} APIResponse[closing.SessionView]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /invoices/close-sessions/{id} [get]
func (h *CloseSessionHandler) Get(c *gin.Context) {
	view, ok := h.session(c, c.Param("id"))
	if !ok {
		return
	}
	h.Success(c, view)
}

// Enter godoc
// @ID           enterClosePayment
// @Summary      Enter the collected amounts
// @Description  Amounts are text as typed by the clerk; the remaining balance is recomputed on every entry
// @Tags         close-sessions
// @Accept       json
// @Produce      json
// @Param        id      path string                  true "Session ID"
// @Param        request body dto.PaymentEntryRequest true "Amounts"
// @Success      200 {object} APIResponse[closing.SessionView]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /invoices/close-sessions/{id}/entry [put]
func (h *CloseSessionHandler) Enter(c *gin.Context) {
	var req dto.PaymentEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	id := c.Param("id")
	if _, ok := h.session(c, id); !ok {
		return
	}

	view, err := h.closeService.Enter(c.Request.Context(), id, req.Entry())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// Submit godoc
// @ID           submitCloseSession
// @Summary      Validate and close the invoice
// @Description  Rejects overpayment and missing LYD equivalents, writes the amounts to every row, then closes the invoice
// @Tags         close-sessions
// @Accept       json
// @Produce      json
// @Param        id      path string                 true  "Session ID"
// @Param        request body dto.SubmitCloseRequest false "Closure flags"
// @Success      200 {object} APIResponse[closing.SubmitResult]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /invoices/close-sessions/{id}/submit [post]
func (h *CloseSessionHandler) Submit(c *gin.Context) {
	// the body is optional
	var req dto.SubmitCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BindError(c, err)
		return
	}
	id := c.Param("id")
	if _, ok := h.session(c, id); !ok {
		return
	}

	result, err := h.closeService.Submit(c.Request.Context(), id, closing.SubmitOptions{
		MakeCashVoucher: req.MakeCashVoucher,
		ActorID:         getActorID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Cancel godoc
// @ID           cancelCloseSession
// @Summary      Cancel a close session
// @Tags         close-sessions
// @Param        id path string true "Session ID"
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /invoices/close-sessions/{id} [delete]
func (h *CloseSessionHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.session(c, id); !ok {
		return
	}
	if err := h.closeService.Cancel(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ListAttempts godoc
// @ID           listCloseAttempts
// @Summary      List close attempts
// @Tags         close-sessions
// @Produce      json
// @Param        num_fact  query string false "Invoice number"
// @Param        ps        query string false "Point of sale"
// @Param        status    query string false "rejected, closed or failed"
// @Param        page      query int    false "Page number"
// @Param        page_size query int    false "Page size"
// @Success      200 {object} APIResponse[[]dto.CloseAttemptResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /invoices/close-attempts [get]
func (h *CloseSessionHandler) ListAttempts(c *gin.Context) {
	req := dto.CloseAttemptListRequest{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if req.PointOfSale == "" {
		if claims := middleware.GetJWTClaims(c); claims != nil && !claims.AllowAllShop {
			req.PointOfSale = claims.PointOfSale
		}
	}

	attempts, total, err := h.closeService.Attempts(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.ToCloseAttemptResponses(attempts), total, req.Page, req.PageSize)
}

// History godoc
// @ID           getInvoiceCloseHistory
// @Summary      Get the close journal of one invoice
// @Tags         close-sessions
// @Produce      json
// @Param        num_fact path  string true "Invoice number"
// @Param        ps       query string true "Point of sale"
// @Success      200 {object} APIResponse[[]dto.CloseAttemptResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /invoices/{num_fact}/close-attempts [get]
func (h *CloseSessionHandler) History(c *gin.Context) {
	var req InvoiceHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	attempts, err := h.closeService.History(c.Request.Context(), sales.InvoiceRef{
		PointOfSale: req.PointOfSale,
		Number:      c.Param("num_fact"),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToCloseAttemptResponses(attempts))
}

// ReturnToCart godoc
// @ID           returnInvoiceToCart
// @Summary      Send an invoice back to the cart
// @Tags         invoices
// @Param        num_fact path string true "Invoice number"
// @Success      204
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /invoices/{num_fact}/return-to-cart [put]
func (h *CloseSessionHandler) ReturnToCart(c *gin.Context) {
	if err := h.closeService.ReturnToCart(c.Request.Context(), c.Param("num_fact")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// UpdateSeller godoc
// @ID           updateInvoiceSeller
// @Summary      Reassign an invoice to another seller
// @Tags         invoices
// @Accept       json
// @Param        num_fact path string                  true "Invoice number"
// @Param        request  body dto.UpdateSellerRequest true "New seller"
// @Success      204
// @Failure      400 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /invoices/{num_fact}/seller [put]
func (h *CloseSessionHandler) UpdateSeller(c *gin.Context) {
	var req dto.UpdateSellerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if err := h.closeService.UpdateSeller(c.Request.Context(), c.Param("num_fact"), req.Seller); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
