package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodrescue-backend/api/middleware"
	"github.com/angelmondragon/foodrescue-backend/api/responses"
	"github.com/angelmondragon/foodrescue-backend/api/validators"
	"github.com/angelmondragon/foodrescue-backend/internal/purchases"
	"github.com/angelmondragon/foodrescue-backend/internal/sales"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
	"github.com/angelmondragon/foodrescue-backend/pkg/pagination"
)

const maxCursorLength = 512

// PurchaseService prepares and commits purchases for the calling buyer.
type PurchaseService interface {
	Prepare(ctx context.Context, buyerID uuid.UUID, req purchases.PrepareRequest) (purchases.PrepareResult, error)
	Buy(ctx context.Context, buyerID uuid.UUID, token string) (purchases.BuyResult, error)
}

// BuyerSales exposes a buyer's open sales and their pickup codes.
type BuyerSales interface {
	ListOpenPurchases(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (sales.PurchasePage, error)
	PickupCode(ctx context.Context, saleID, buyerID uuid.UUID) (sales.PickupCodeView, error)
}

// PreparePurchase snapshots the requested offers and returns a single-use purchase token.
func PreparePurchase(svc PurchaseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}

		buyerID, err := middleware.UserUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req purchases.PrepareRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Prepare(r.Context(), buyerID, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// BuyOffers commits a prepared purchase.
func BuyOffers(svc PurchaseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}

		buyerID, err := middleware.UserUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req purchases.BuyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Buy(r.Context(), buyerID, strings.TrimSpace(req.PurchaseToken))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CustomerPurchases lists the caller's sales that are still waiting for pickup.
func CustomerPurchases(svc BuyerSales, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		buyerID, err := middleware.UserUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListOpenPurchases(r.Context(), buyerID, pagination.Params{
			Limit:  limit,
			Cursor: validators.SanitizeString(r.URL.Query().Get("cursor"), maxCursorLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// PurchaseCode returns the pickup code of one of the caller's sales.
func PurchaseCode(svc BuyerSales, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		buyerID, err := middleware.UserUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		saleID, err := validators.ParseUUIDParam(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.PickupCode(r.Context(), saleID, buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
