package model

import "time"

// UserInfo stores information about registered participants in the system.
// Unregistered identities are represented by the zero value with
// Registered=false, so lookups never need to distinguish "missing" from
// "never registered".
type UserInfo struct {
	ObjectType   string    `json:"objectType"` // Set to the composite key object type (UserInfo)
	ID           string    `json:"id"`         // Full client identity string
	InternalID   uint64    `json:"internalId"` // Stable sequence number assigned at registration
	Role         string    `json:"role"`       // One of the role constants below
	HashID       string    `json:"hashId"`     // Off-chain identity digest, opaque to this layer
	Registered   bool      `json:"registered"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Roles recognized by the identity registry. "patient" is the only role
// allowed to publish data and manage consent; every other role is a
// requester role.
const (
	RolePatient    = "patient"
	RoleDoctor     = "doctor"
	RoleResearcher = "researcher"
	RoleInsurance  = "insurance"
	RoleSpecialist = "specialist"
)
