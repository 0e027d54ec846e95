package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"healthledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Core Helper Methods (used across multiple operations) ---

// getCurrentTxTimestamp retrieves the current transaction timestamp from the
// stub. Deterministic across endorsers; never use wall-clock time instead.
func (s *HealthSmartContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// --- Key Creation Helpers (using Composite Keys) ---

// versionKeyAttr zero-pads the version so composite keys iterate in numeric
// order under range scans.
func versionKeyAttr(version uint32) string {
	return fmt.Sprintf("%010d", version)
}

func dataTypeKeyAttr(dt model.DataType) string {
	return strconv.Itoa(int(dt))
}

func (s *HealthSmartContract) createDataRecordKey(ctx contractapi.TransactionContextInterface, owner string, dt model.DataType, version uint32) (string, error) {
	return ctx.GetStub().CreateCompositeKey(dataRecordObjectType, []string{owner, dataTypeKeyAttr(dt), versionKeyAttr(version)})
}

func (s *HealthSmartContract) createVersionCountKey(ctx contractapi.TransactionContextInterface, owner string, dt model.DataType) (string, error) {
	return ctx.GetStub().CreateCompositeKey(versionCountObjectType, []string{owner, dataTypeKeyAttr(dt)})
}

func (s *HealthSmartContract) createConsentKey(ctx contractapi.TransactionContextInterface, patient, requester string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(consentObjectType, []string{patient, requester})
}

func (s *HealthSmartContract) createAuditKey(ctx contractapi.TransactionContextInterface, patient, txID string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(auditObjectType, []string{patient, txID})
}

func (s *HealthSmartContract) createAuditIndexKey(ctx contractapi.TransactionContextInterface, requester, patient, txID string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(auditIndexObjectType, []string{requester, patient, txID})
}

// --- Validation Helper Functions ---

func (s *HealthSmartContract) validatePatientID(patient string) error {
	if strings.TrimSpace(patient) == "" {
		return fmt.Errorf("%w: patient identity cannot be empty", ErrInvalidPatient)
	}
	return nil
}

func (s *HealthSmartContract) validateDataType(raw int) (model.DataType, error) {
	if raw < 0 || raw > 255 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDataType, raw)
	}
	dt := model.DataType(raw)
	if !dt.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDataType, raw)
	}
	return dt, nil
}

func (s *HealthSmartContract) validateVersion(raw int) (uint32, error) {
	if raw < 1 {
		return 0, fmt.Errorf("%w: version must be >= 1, got %d", ErrInvalidVersion, raw)
	}
	return uint32(raw), nil
}

func (s *HealthSmartContract) validateContentHash(contentHash string) error {
	trimmed := strings.TrimSpace(contentHash)
	if trimmed == "" {
		return fmt.Errorf("contentHash cannot be empty")
	}
	if len(trimmed) > maxContentHashLength {
		return fmt.Errorf("contentHash exceeds max length %d", maxContentHashLength)
	}
	return nil
}

// parsePageSize interprets the optional page size argument of paginated
// queries, defaulting and clamping in one place.
func parsePageSize(pageSizeStr string) (int32, error) {
	trimmed := strings.TrimSpace(pageSizeStr)
	if trimmed == "" {
		return defaultAuditPageSize, nil
	}
	v, err := strconv.Atoi(trimmed)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid pageSize '%s': must be a positive integer", pageSizeStr)
	}
	if v > maxAuditPageSize {
		return maxAuditPageSize, nil
	}
	return int32(v), nil
}

// --- Event Emission ---

// emitAccessEvent sends the AccessLogged chaincode event. The event mirrors
// the durable AuditEntry; failures to emit are logged but never fail the
// transaction, since the world-state entry is the authoritative record.
func (s *HealthSmartContract) emitAccessEvent(ctx contractapi.TransactionContextInterface, entry *model.AuditEntry) {
	if entry == nil {
		logger.Error("emitAccessEvent: cannot emit event, entry is nil")
		return
	}
	payload := map[string]interface{}{
		"requester":   entry.Requester,
		"patient":     entry.Patient,
		"dataType":    entry.DataType,
		"dataVersion": entry.Version,
		"success":     entry.Success,
		"reason":      entry.Reason,
		"timestamp":   entry.Timestamp.Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(payload)
	if err != nil {
		logger.Warningf("emitAccessEvent: Failed to marshal AccessLogged payload for tx '%s': %v", entry.TxID, err)
		return
	}
	if errSet := ctx.GetStub().SetEvent("AccessLogged", eventBytes); errSet != nil {
		logger.Warningf("emitAccessEvent: Failed to set AccessLogged event for tx '%s': %v", entry.TxID, errSet)
	}
}
