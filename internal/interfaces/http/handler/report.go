package handler

import (
	"context"

	"github.com/erp/salesrecon/internal/application/report"
	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/interfaces/http/dto"
	"github.com/erp/salesrecon/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ReportService is the report use case the handler drives
type ReportService interface {
	Load(ctx context.Context, q report.Query) (*report.Result, error)
	Latest() (*report.Result, bool)
	PointsOfSale(ctx context.Context) ([]sales.PointOfSale, error)
}

// ReportHandler serves the sales report
type ReportHandler struct {
	BaseHandler
	reportService ReportService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reportService ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// SummaryResponse is the rollup of one report load
type SummaryResponse struct {
	Generation  uint64                `json:"generation"`
	PointOfSale string                `json:"ps"`
	Stale       bool                  `json:"stale"`
	Summary     sales.Summary         `json:"summary"`
	Failures    []report.FetchFailure `json:"failures,omitempty"`
}

// pointOfSale resolves the shop a request reads. Without an explicit ps a
// shop-bound token reads its own shop, anything else reads every shop.
func pointOfSale(c *gin.Context, requested string) string {
	if requested != "" {
		return requested
	}
	if claims := middleware.GetJWTClaims(c); claims != nil && !claims.AllowAllShop && claims.PointOfSale != "" {
		return claims.PointOfSale
	}
	return report.AllPointsOfSale
}

func (h *ReportHandler) load(c *gin.Context) (*report.Result, bool) {
	var req dto.SalesReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return nil, false
	}

	res, err := h.reportService.Load(c.Request.Context(), report.Query{
		PointOfSale: pointOfSale(c, req.PointOfSale),
		Seller:      req.Seller,
		Filter:      req.Filter(),
		Sort:        req.Sort(),
		Page:        req.Page,
		PageSize:    req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	return res, true
}

// ListPointsOfSale godoc
// @ID           listPointsOfSale
// @Summary      List points of sale
// @Description  Lists the backend shops with their normalized codes
// @Tags         reports
// @Produce      json
// @Success      200 {object} APIResponse[[]sales.PointOfSale]
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /points-of-sale [get]
func (h *ReportHandler) ListPointsOfSale(c *gin.Context) {
	shops, err := h.reportService.PointsOfSale(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if claims := middleware.GetJWTClaims(c); claims != nil {
		visible := make([]sales.PointOfSale, 0, len(shops))
		for _, shop := range shops {
			if claims.CanSeePointOfSale(shop.ID) {
				visible = append(visible, shop)
			}
		}
		shops = visible
	}
	h.Success(c, shops)
}

// GetSalesReport godoc
// @ID           getSalesReport
// @Summary      Get the sales report
// @Description  Fetches, merges and filters invoice lines. Balances and the rollup are computed per invoice.
// @Tags         reports
// @Produce      json
// @Param        ps             query  string    false  "Point of sale ID or all"
// @Param        usr            query  string    false  "Seller"
// @Param        type           query  []string  false  "Supplier types (gold, diamond, watch)"
// @Param        from           query  string    false  "Period start (2006-01-02)"
// @Param        to             query  string    false  "Period end (2006-01-02)"
// @Param        payment_status query  string    false  "all, paid, unpaid or partial"
// @Param        page           query  int       false  "Page number"
// @Param        page_size      query  int       false  "Page size"
// @Success      200 {object} APIResponse[report.Result]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reports/sales [get]
func (h *ReportHandler) GetSalesReport(c *gin.Context) {
	res, ok := h.load(c)
	if !ok {
		return
	}
	h.SuccessWithMeta(c, res, int64(res.Page.Total), res.Page.Page, res.Page.PageSize)
}

// GetSalesSummary godoc
// @ID           getSalesSummary
// @Summary      Get the sales rollup
// @Tags         reports
// @Produce      json
// @Success      200 {object} APIResponse[SummaryResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reports/sales/summary [get]
func (h *ReportHandler) GetSalesSummary(c *gin.Context) {
	res, ok := h.load(c)
	if !ok {
		return
	}
	h.Success(c, toSummaryResponse(res))
}

// GetLatestReport godoc
// @ID           getLatestSalesReport
// @Summary      Get the latest completed report
// @Description  Returns the newest load that was not overtaken by a later one
// @Tags         reports
// @Produce      json
// @Success      200 {object} APIResponse[SummaryResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reports/sales/latest [get]
func (h *ReportHandler) GetLatestReport(c *gin.Context) {
	res, ok := h.reportService.Latest()
	if !ok {
		h.NotFound(c, "No report has been loaded yet")
		return
	}
	if claims := middleware.GetJWTClaims(c); claims != nil && !claims.CanSeePointOfSale(res.PointOfSale) {
		h.NotFound(c, "No report has been loaded yet")
		return
	}
	h.Success(c, toSummaryResponse(res))
}

func toSummaryResponse(res *report.Result) SummaryResponse {
	return SummaryResponse{
		Generation:  res.Generation,
		PointOfSale: res.PointOfSale,
		Stale:       res.Stale,
		Summary:     res.Summary,
		Failures:    res.Failures,
	}
}
