package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TaxID        string    `db:"tax_id" json:"tax_id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Email        string    `db:"email" json:"email"`
	InsurerName  string    `db:"insurer_name" json:"insurer_name,omitempty"`
	MemberNumber string    `db:"member_number" json:"member_number,omitempty"`
	Street       string    `db:"street" json:"street"`
	StreetNumber string    `db:"street_number" json:"street_number"`
	Locality     string    `db:"locality" json:"locality"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
