package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	mw "github.com/fernlabs/tally/internal/app/api/middleware"
	"github.com/fernlabs/tally/internal/app/service/account"
	"github.com/fernlabs/tally/internal/app/service/analytics"
	"github.com/fernlabs/tally/pkg/response"
)

// @Summary      Get Analytics Snapshot
// @Description  Returns cumulative and current-week counters for the caller's account.
// @Tags         Analytics
// @Produce      json
// @Success      200  {object}  response.APIResponse[analytics.Snapshot]
// @Router       /api/v1/analytics [get]
func ApiGetAnalytics(svc *analytics.Service, accounts *account.Service) gin.HandlerFunc {
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

		snap, err := svc.Snapshot(c.Request.Context(), acc.ID, time.Now())
		if err != nil {
			if errors.Is(err, analytics.ErrSnapshotNotFound) {
				// an account with no recorded activity reads as all zeros
				c.JSON(http.StatusOK, response.OKT(&analytics.Snapshot{AccountID: acc.ID}))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(snap))
	}
}

type recordViewRequest struct {
	AccountID string `json:"account_id"`
}

// @Summary      Record View Event
// @Description  Increments the account's cumulative and weekly view counters.
// @Tags         Analytics
// @Accept       json
// @Produce      json
// @Param        request body recordViewRequest true "View event"
// @Success      200  {object}  response.APIResponse[any]
// @Router       /api/v1/events/view [post]
func ApiRecordView(svc *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordViewRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.AccountID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "account_id required"))
			return
		}
		if err := svc.RecordView(c.Request.Context(), req.AccountID, time.Now()); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

type recordConversionRequest struct {
	AccountID string `json:"account_id"`
	// Revenue is in minor currency units.
	Revenue int64 `json:"revenue"`
}

// @Summary      Record Conversion Event
// @Description  Increments the account's conversion counters and adds revenue.
// @Tags         Analytics
// @Accept       json
// @Produce      json
// @Param        request body recordConversionRequest true "Conversion event"
// @Success      200  {object}  response.APIResponse[any]
// @Router       /api/v1/events/conversion [post]
func ApiRecordConversion(svc *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordConversionRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.AccountID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "account_id required"))
			return
		}
		if err := svc.RecordConversion(c.Request.Context(), req.AccountID, req.Revenue, time.Now()); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterEventRoutes(r gin.IRouter, svc *analytics.Service) {
	r.POST("/events/view", ApiRecordView(svc))
	r.POST("/events/conversion", ApiRecordConversion(svc))
}
