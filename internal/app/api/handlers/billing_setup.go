package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	mw "github.com/fernlabs/tally/internal/app/api/middleware"
	"github.com/fernlabs/tally/internal/app/service/billingsetup"
	"github.com/fernlabs/tally/internal/platform/checkout"
	"github.com/fernlabs/tally/pkg/response"
)

type beginSetupRequest struct {
	ExternalCompanyID string  `json:"external_company_id"`
	ExternalMemberID  string  `json:"external_member_id"`
	Email             *string `json:"email"`
	AllowUpdate       bool    `json:"allow_update"`
}

// @Summary      Begin Billing Setup
// @Description  Opens a hosted payment-method vaulting session and returns the checkout URL.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body beginSetupRequest true "Billing setup request"
// @Success      200  {object}  response.APIResponse[billingsetup.BeginSetupResult]
// @Router       /api/v1/billing/setup [post]
func ApiBeginBillingSetup(svc *billingsetup.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req beginSetupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := svc.BeginSetup(c.Request.Context(), &billingsetup.BeginSetupRequest{
			ExternalUserID:    mw.ExternalUserID(c),
			ExternalCompanyID: req.ExternalCompanyID,
			ExternalMemberID:  req.ExternalMemberID,
			Email:             req.Email,
			AllowUpdate:       req.AllowUpdate,
		})
		if err != nil {
			switch {
			case errors.Is(err, billingsetup.ErrAlreadyConnected):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeConflict, err.Error()))
			case errors.Is(err, checkout.ErrProcessor):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUpstream, err.Error()))
			default:
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterBillingSetupRoutes(r gin.IRouter, svc *billingsetup.Service) {
	r.POST("/billing/setup", ApiBeginBillingSetup(svc))
}
