package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	mw "github.com/fernlabs/tally/internal/app/api/middleware"
	"github.com/fernlabs/tally/internal/app/service/account"
	"github.com/fernlabs/tally/internal/app/service/transaction"
	models "github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/pkg/response"
)

type ListTransactionsResponse struct {
	Items []*models.Transaction `json:"items"`
}

// @Summary      List Transactions
// @Description  Returns the caller's most recent transactions, newest first.
// @Tags         Ledger
// @Produce      json
// @Param        limit query int false "Maximum number of transactions (default 20)"
// @Success      200  {object}  response.APIResponse[ListTransactionsResponse]
// @Router       /api/v1/transactions [get]
func ApiListTransactions(recorder transaction.Recorder, accounts *account.Service) gin.HandlerFunc {
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
		items, err := recorder.ListRecent(c.Request.Context(), acc.ID, limit)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListTransactionsResponse{Items: items}))
	}
}

func RegisterTransactionRoutes(r gin.IRouter, recorder transaction.Recorder, accounts *account.Service) {
	r.GET("/transactions", ApiListTransactions(recorder, accounts))
}
