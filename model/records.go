package model

import "time"

// DataType classifies a category of medical data. The enumeration is a closed
// set shared with off-chain callers; extending it is a breaking schema change.
type DataType uint8

const (
	DataTypeLabResults DataType = 1
	DataTypeImaging    DataType = 2
	DataTypeFullRecord DataType = 3
)

// Valid reports whether dt is inside the recognized enumeration.
func (dt DataType) Valid() bool {
	switch dt {
	case DataTypeLabResults, DataTypeImaging, DataTypeFullRecord:
		return true
	}
	return false
}

func (dt DataType) String() string {
	switch dt {
	case DataTypeLabResults:
		return "lab-results"
	case DataTypeImaging:
		return "imaging"
	case DataTypeFullRecord:
		return "full-record"
	}
	return "unknown"
}

// DataRecord is one published version of a patient's data pointer for a given
// data type. Records are append-only: never mutated or deleted, and versions
// for a given (owner, dataType) form a dense sequence 1..N.
type DataRecord struct {
	ObjectType   string    `json:"objectType"` // "DataRecord"
	Owner        string    `json:"owner"`      // Full client identity of the publishing patient
	DataType     DataType  `json:"dataType"`
	Version      uint32    `json:"version"`
	ContentHash  string    `json:"contentHash"` // Digest referencing off-ledger data; opaque here
	RegisteredAt time.Time `json:"registeredAt"`
}

// ConsentGrant is a patient's time-bounded authorization of one requester for
// one data type/version. A single slot exists per (patient, requester) pair;
// granting again overwrites the slot even for an unrelated data type.
type ConsentGrant struct {
	ObjectType string    `json:"objectType"` // "ConsentGrant"
	Patient    string    `json:"patient"`
	Requester  string    `json:"requester"`
	DataType   DataType  `json:"dataType"`
	Version    uint32    `json:"version"`
	GrantedAt  time.Time `json:"grantedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Revoked    bool      `json:"revoked"`
}

// AuditEntry is the immutable record of one access attempt, written exactly
// once per AccessData invocation regardless of outcome.
type AuditEntry struct {
	ObjectType string    `json:"objectType"` // "AuditEntry"
	Requester  string    `json:"requester"`
	Patient    string    `json:"patient"`
	DataType   DataType  `json:"dataType"`
	Version    uint32    `json:"version"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason"` // empty on success; "consent_denied" or "record_not_found" otherwise
	TxID       string    `json:"txId"`
	Timestamp  time.Time `json:"timestamp"`
}

// Audit entry failure reasons.
const (
	ReasonConsentDenied  = "consent_denied"
	ReasonRecordNotFound = "record_not_found"
)

// AccessResult is returned by AccessData. On denial it is a sentinel value
// (Success=false, empty hash) rather than a chaincode error, so the audit
// entry written on the denial path still commits with the transaction.
type AccessResult struct {
	Success      bool      `json:"success"`
	Reason       string    `json:"reason"` // empty when Success is true
	ContentHash  string    `json:"contentHash"`
	Version      uint32    `json:"version"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// PaginatedAuditResponse is the structure returned by paginated audit queries.
type PaginatedAuditResponse struct {
	Entries      []*AuditEntry `json:"entries"`
	NextBookmark string        `json:"nextBookmark"`
	FetchedCount int32         `json:"fetchedCount"`
}
