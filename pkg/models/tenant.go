package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an organization using the platform. FiwareService is the
// value sent as the Fiware-Service header on Orion-LD requests and recorded
// as the tenant id on jobs.
type Tenant struct {
	ID            uuid.UUID `db:"id"             json:"id"`
	Name          string    `db:"name"           json:"name"`
	FiwareService string    `db:"fiware_service" json:"fiware_service"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"     json:"updated_at"`
}
