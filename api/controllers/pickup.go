package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodrescue-backend/api/middleware"
	"github.com/angelmondragon/foodrescue-backend/api/responses"
	"github.com/angelmondragon/foodrescue-backend/api/validators"
	"github.com/angelmondragon/foodrescue-backend/internal/sales"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
)

// PickupService verifies pickup codes and completes handovers for a seller.
type PickupService interface {
	FindByCode(ctx context.Context, code string, sellerUserID uuid.UUID) (*models.Sale, error)
	Complete(ctx context.Context, saleID, sellerUserID uuid.UUID, code string) (*models.Sale, error)
}

type checkCustomerCodeRequest struct {
	PickupCode string `json:"pickupCode" validate:"required,max=32"`
}

type completeSellRequest struct {
	PickUpCode string `json:"pickUpCode" validate:"required,max=32"`
}

// CheckCustomerCode lets a seller look up the sale behind a code shown at the counter.
func CheckCustomerCode(svc PickupService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pickup service unavailable"))
			return
		}

		sellerID, err := middleware.UserUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkCustomerCodeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sale, err := svc.FindByCode(r.Context(), req.PickupCode, sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sales.ViewOf(sale, false))
	}
}

// CompleteSell records the handover of a sale once the buyer's code matches.
func CompleteSell(svc PickupService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pickup service unavailable"))
			return
		}

		sellerID, err := middleware.UserUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		saleID, err := validators.ParseUUIDParam(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req completeSellRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sale, err := svc.Complete(r.Context(), saleID, sellerID, req.PickUpCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sales.ViewOf(sale, false))
	}
}
