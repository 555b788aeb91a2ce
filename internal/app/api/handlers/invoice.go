package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	mw "github.com/fernlabs/tally/internal/app/api/middleware"
	"github.com/fernlabs/tally/internal/app/service/account"
	"github.com/fernlabs/tally/internal/app/service/invoice"
	models "github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/pkg/response"
)

type ListInvoicesResponse struct {
	Items []*models.Invoice `json:"items"`
}

// @Summary      List Invoices
// @Description  Returns the caller's invoices, newest first.
// @Tags         Billing
// @Produce      json
// @Param        limit query int false "Maximum number of invoices (default 20)"
// @Success      200  {object}  response.APIResponse[ListInvoicesResponse]
// @Router       /api/v1/invoices [get]
func ApiListInvoices(invoices invoice.Aggregator, accounts *account.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		acc, err := accounts.FindByExternalUserID(c.Request.Context(), mw.ExternalUserID(c))
		if err != nil {
			if errors.Is(err, account.ErrAccountNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}

		limit, _ := strconv.Atoi(c.Query("limit"))
		items, err := invoices.List(c.Request.Context(), acc.ID, limit)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListInvoicesResponse{Items: items}))
	}
}

func RegisterInvoiceRoutes(r gin.IRouter, invoices invoice.Aggregator, accounts *account.Service) {
	r.GET("/invoices", ApiListInvoices(invoices, accounts))
}
