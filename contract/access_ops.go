package contract

import (
	"encoding/json"
	"errors"
	"fmt"

	"healthledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Access Controller Operations ---
//
// AccessData is the single externally visible gate coupling consent
// verification to data retrieval. Every attempt, successful or denied,
// appends exactly one AuditEntry and emits one AccessLogged event. Because a
// chaincode error invalidates the whole transaction, the denial path must
// return a sentinel AccessResult instead of an error: otherwise the audit
// entry recording the denied attempt would never commit. Input-validation
// failures still return errors, since they must leave no trace at all.
//
// Consent check and record fetch execute inside one transaction, so both
// observe the same committed snapshot; an authorization decision can never go
// stale between step 2 and step 3.

// AccessData attempts to retrieve patient's data pointer at (dataType,
// version) on behalf of the calling requester.
func (s *HealthSmartContract) AccessData(ctx contractapi.TransactionContextInterface, patient string, dataType int, version int) (*model.AccessResult, error) {
	ur := NewUserRegistry(ctx)
	requester, err := ur.RequireRequester()
	if err != nil {
		return nil, fmt.Errorf("AccessData: %w", err)
	}

	// Step 1: input validation. Caller-contract errors, not access
	// decisions: rejected before any audit write.
	if err := s.validatePatientID(patient); err != nil {
		return nil, fmt.Errorf("AccessData: %w", err)
	}
	dt, err := s.validateDataType(dataType)
	if err != nil {
		return nil, fmt.Errorf("AccessData: %w", err)
	}
	v, err := s.validateVersion(version)
	if err != nil {
		return nil, fmt.Errorf("AccessData: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("AccessData: %w", err)
	}

	// Step 2: authorization check.
	grant, err := s.getConsentGrant(ctx, patient, requester)
	if err != nil {
		return nil, fmt.Errorf("AccessData: %w", err)
	}
	if !grantIsValid(grant, dt, v, now) {
		entry, err := s.appendAuditEntry(ctx, requester, patient, dt, v, false, model.ReasonConsentDenied)
		if err != nil {
			return nil, fmt.Errorf("AccessData: %w", err)
		}
		s.emitAccessEvent(ctx, entry)
		logger.Infof("Access denied: requester '%s' lacks valid consent from '%s' for %s v%d", requester, patient, dt, v)
		return &model.AccessResult{Success: false, Reason: model.ReasonConsentDenied}, nil
	}

	// Step 3: data retrieval. Consent can name a version that was never
	// published; that inconsistency surfaces here, not in the consent layer.
	record, err := s.getRecord(ctx, patient, dt, v)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, fmt.Errorf("AccessData: %w", err)
		}
		entry, auditErr := s.appendAuditEntry(ctx, requester, patient, dt, v, false, model.ReasonRecordNotFound)
		if auditErr != nil {
			return nil, fmt.Errorf("AccessData: %w", auditErr)
		}
		s.emitAccessEvent(ctx, entry)
		logger.Infof("Access failed: requester '%s' authorized but %s v%d of '%s' does not exist", requester, dt, v, patient)
		return &model.AccessResult{Success: false, Reason: model.ReasonRecordNotFound}, nil
	}

	// Step 4: success path.
	entry, err := s.appendAuditEntry(ctx, requester, patient, dt, v, true, "")
	if err != nil {
		return nil, fmt.Errorf("AccessData: %w", err)
	}
	s.emitAccessEvent(ctx, entry)
	logger.Infof("Access granted: requester '%s' retrieved %s v%d of '%s'", requester, dt, v, patient)

	return &model.AccessResult{
		Success:      true,
		ContentHash:  record.ContentHash,
		Version:      record.Version,
		RegisteredAt: record.RegisteredAt,
	}, nil
}

// CheckAccessPermission is the side-effect-free variant of the authorization
// step: no data retrieval, no audit entry, no event. Lets a requester probe
// eligibility before spending a state-changing call.
func (s *HealthSmartContract) CheckAccessPermission(ctx contractapi.TransactionContextInterface, patient string, dataType int, version int) (bool, error) {
	ur := NewUserRegistry(ctx)
	requester, err := ur.RequireRequester()
	if err != nil {
		return false, fmt.Errorf("CheckAccessPermission: %w", err)
	}
	return s.HasValidConsent(ctx, patient, requester, dataType, version)
}

// appendAuditEntry writes the audit record under the patient's composite key
// and a requester-side index key. Called only from AccessData, once per
// invocation.
func (s *HealthSmartContract) appendAuditEntry(ctx contractapi.TransactionContextInterface, requester, patient string, dt model.DataType, version uint32, success bool, reason string) (*model.AuditEntry, error) {
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("appendAuditEntry: %w", err)
	}
	entry := model.AuditEntry{
		ObjectType: auditObjectType,
		Requester:  requester,
		Patient:    patient,
		DataType:   dt,
		Version:    version,
		Success:    success,
		Reason:     reason,
		TxID:       ctx.GetStub().GetTxID(),
		Timestamp:  now,
	}
	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("appendAuditEntry: failed to marshal entry: %w", err)
	}
	entryKey, err := s.createAuditKey(ctx, patient, entry.TxID)
	if err != nil {
		return nil, fmt.Errorf("appendAuditEntry: failed to create audit key: %w", err)
	}
	if err := ctx.GetStub().PutState(entryKey, entryBytes); err != nil {
		return nil, fmt.Errorf("appendAuditEntry: failed to save entry: %w", err)
	}

	// Secondary index so requesters can derive their own history from the
	// same records. The value is a placeholder; the key carries the data.
	indexKey, err := s.createAuditIndexKey(ctx, requester, patient, entry.TxID)
	if err != nil {
		return nil, fmt.Errorf("appendAuditEntry: failed to create audit index key: %w", err)
	}
	if err := ctx.GetStub().PutState(indexKey, []byte{0x00}); err != nil {
		return nil, fmt.Errorf("appendAuditEntry: failed to save audit index: %w", err)
	}
	return &entry, nil
}
