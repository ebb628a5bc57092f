package establishments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodrescue-backend/internal/dbtest"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
)

func TestDirectoryForSeller(t *testing.T) {
	conn := dbtest.Open(t)
	sellerID := uuid.New()
	est := dbtest.MustCreateEstablishment(t, conn, sellerID, "Corner Bakery")

	dir, err := NewDirectory(NewRepository(conn))
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}

	got, err := dir.ForSeller(context.Background(), sellerID)
	if err != nil {
		t.Fatalf("ForSeller: %v", err)
	}
	if got.ID != est.ID {
		t.Fatalf("expected establishment %s got %s", est.ID, got.ID)
	}

	_, err = dir.ForSeller(context.Background(), uuid.New())
	if !pkgerrors.Is(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN for seller without establishment, got %v", err)
	}

	_, err = dir.ForSeller(context.Background(), uuid.Nil)
	if !pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED for missing identity, got %v", err)
	}
}

func TestDirectoryGet(t *testing.T) {
	conn := dbtest.Open(t)
	est := dbtest.MustCreateEstablishment(t, conn, uuid.New(), "Green Grocer")
	dir, _ := NewDirectory(NewRepository(conn))

	got, err := dir.Get(context.Background(), est.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if summary := SummaryFromModel(got); summary.Name != "Green Grocer" {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if _, err := dir.Get(context.Background(), uuid.New()); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

type failingLookup struct{}

func (failingLookup) FindByID(context.Context, uuid.UUID) (*models.Establishment, error) {
	return nil, errors.New("db down")
}

func (failingLookup) FindByUserID(context.Context, uuid.UUID) (*models.Establishment, error) {
	return nil, errors.New("db down")
}

func TestDirectoryWrapsReadFailures(t *testing.T) {
	dir, _ := NewDirectory(failingLookup{})
	if _, err := dir.ForSeller(context.Background(), uuid.New()); !pkgerrors.Is(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
	}
	if _, err := dir.Get(context.Background(), uuid.New()); !pkgerrors.Is(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
	}
	if SummaryFromModel(nil) != nil {
		t.Fatal("expected nil summary")
	}
}
