package establishments

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
)

// Summary is the public view of an establishment attached to purchase responses.
type Summary struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Address string    `json:"address"`
	Phone   *string   `json:"phone,omitempty"`
}

// SummaryFromModel maps the row to its public view. A nil row maps to nil.
func SummaryFromModel(est *models.Establishment) *Summary {
	if est == nil {
		return nil
	}
	return &Summary{
		ID:      est.ID,
		Name:    est.Name,
		Address: est.Address,
		Phone:   est.Phone,
	}
}
