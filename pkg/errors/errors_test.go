package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeGone, status: http.StatusGone, publicMsg: "pickup window has closed", detailsOK: true},
		{code: CodeOfferExpired, status: http.StatusBadRequest, publicMsg: "offer has expired", detailsOK: true},
		{code: CodeOfferNotActive, status: http.StatusBadRequest, publicMsg: "offer is not active", detailsOK: true},
		{code: CodeOfferEstablishmentMismatch, status: http.StatusForbidden, publicMsg: "offers do not belong to the establishment", detailsOK: true},
		{code: CodeStaleData, status: http.StatusBadRequest, publicMsg: "offer changed since the purchase was prepared", detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "not enough stock", detailsOK: true},
		{code: CodeTokenInvalid, status: http.StatusBadRequest, publicMsg: "purchase token is invalid"},
		{code: CodeTokenExpired, status: http.StatusBadRequest, publicMsg: "purchase token has expired"},
		{code: CodeCodeMismatch, status: http.StatusBadRequest, publicMsg: "pickup code does not match"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsMatchesWrappedCode(t *testing.T) {
	inner := New(CodeStaleData, "price changed")
	outer := fmt.Errorf("commit: %w", inner)
	if !Is(outer, CodeStaleData) {
		t.Fatalf("expected Is to find STALE_DATA through wrapping")
	}
	if Is(outer, CodeNotFound) {
		t.Fatalf("did not expect NOT_FOUND")
	}
	if Is(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("untyped errors carry no code")
	}
}

func TestIsClientFacing(t *testing.T) {
	if !IsClientFacing(CodeGone) || !IsClientFacing(CodeCodeMismatch) {
		t.Fatalf("4xx codes should be client facing")
	}
	if IsClientFacing(CodeInternal) || IsClientFacing(CodeDependency) {
		t.Fatalf("5xx codes must not leak messages")
	}
	if IsClientFacing("UNKNOWN") {
		t.Fatalf("unknown codes must not leak messages")
	}
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_sells_pickup_code", TableName: "sells", Message: "duplicate key value"}
	err := Wrap(CodeConflict, fmt.Errorf("insert sale: %w", pgErr), "pickup code collision")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.PGCode != "23505" || d.PGConstraint != "ux_sells_pickup_code" || d.PGTable != "sells" {
		t.Fatalf("unexpected pg fields %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(d.Chain))
	}
}

func TestDumpCarriesDetails(t *testing.T) {
	err := New(CodeInsufficientStock, "not enough").WithDetails(map[string]any{"offer_id": "o-1"})
	d := Dump(err)
	if d.Details == nil {
		t.Fatalf("expected details in dump")
	}
	if d.Retryable {
		t.Fatalf("insufficient stock is not retryable")
	}
	if Dump(nil).TopMessage != "" {
		t.Fatalf("nil dump should be empty")
	}
}
