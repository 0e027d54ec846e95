package contract

import (
	"encoding/json"
	"fmt"

	"healthledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Audit Log Queries ---
//
// Audit entries are written only by AccessData and never modified or removed.
// Entries are keyed by patient, with a requester-side index, so both parties
// can page through the attempts that concern them without scanning the whole
// log.

// GetMyAuditLog returns a page of audit entries recorded against the calling
// patient's data, covering successful and denied attempts alike.
func (s *HealthSmartContract) GetMyAuditLog(ctx contractapi.TransactionContextInterface, pageSizeStr string, bookmark string) (*model.PaginatedAuditResponse, error) {
	ur := NewUserRegistry(ctx)
	if err := ur.RequireRole(model.RolePatient); err != nil {
		return nil, fmt.Errorf("GetMyAuditLog: %w", err)
	}
	patient, err := ur.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("GetMyAuditLog: failed to get caller identity: %w", err)
	}
	pageSize, err := parsePageSize(pageSizeStr)
	if err != nil {
		return nil, fmt.Errorf("GetMyAuditLog: %w", err)
	}

	logger.Debugf("GetMyAuditLog: patient '%s', pageSize %d, bookmark '%s'", patient, pageSize, bookmark)

	resultsIterator, metadata, err := ctx.GetStub().GetStateByPartialCompositeKeyWithPagination(auditObjectType, []string{patient}, pageSize, bookmark)
	if err != nil {
		return nil, fmt.Errorf("GetMyAuditLog: failed to query audit entries: %w", err)
	}
	defer resultsIterator.Close()

	entries := []*model.AuditEntry{}
	var fetchedCount int32
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetMyAuditLog: Error iterating audit entries: %v. Skipping.", iterErr)
			continue
		}
		var entry model.AuditEntry
		if err := json.Unmarshal(queryResponse.Value, &entry); err != nil {
			logger.Warningf("GetMyAuditLog: Error unmarshalling audit entry for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		entries = append(entries, &entry)
		fetchedCount++
	}

	return &model.PaginatedAuditResponse{
		Entries:      entries, // Will be [] if empty, not null
		NextBookmark: metadata.GetBookmark(),
		FetchedCount: fetchedCount,
	}, nil
}

// GetMyAccessHistory returns a page of the calling requester's own access
// attempts, resolved through the requester-side index back to the primary
// audit records.
func (s *HealthSmartContract) GetMyAccessHistory(ctx contractapi.TransactionContextInterface, pageSizeStr string, bookmark string) (*model.PaginatedAuditResponse, error) {
	ur := NewUserRegistry(ctx)
	requester, err := ur.RequireRequester()
	if err != nil {
		return nil, fmt.Errorf("GetMyAccessHistory: %w", err)
	}
	pageSize, err := parsePageSize(pageSizeStr)
	if err != nil {
		return nil, fmt.Errorf("GetMyAccessHistory: %w", err)
	}

	logger.Debugf("GetMyAccessHistory: requester '%s', pageSize %d, bookmark '%s'", requester, pageSize, bookmark)

	indexIterator, metadata, err := ctx.GetStub().GetStateByPartialCompositeKeyWithPagination(auditIndexObjectType, []string{requester}, pageSize, bookmark)
	if err != nil {
		return nil, fmt.Errorf("GetMyAccessHistory: failed to query audit index: %w", err)
	}
	defer indexIterator.Close()

	entries := []*model.AuditEntry{}
	var fetchedCount int32
	for indexIterator.HasNext() {
		indexResponse, iterErr := indexIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetMyAccessHistory: Error iterating audit index: %v. Skipping.", iterErr)
			continue
		}
		_, attrs, splitErr := ctx.GetStub().SplitCompositeKey(indexResponse.Key)
		if splitErr != nil || len(attrs) != 3 {
			logger.Warningf("GetMyAccessHistory: Malformed audit index key '%s' (err: %v). Skipping.", indexResponse.Key, splitErr)
			continue
		}
		patient, txID := attrs[1], attrs[2]

		entryKey, keyErr := s.createAuditKey(ctx, patient, txID)
		if keyErr != nil {
			logger.Warningf("GetMyAccessHistory: Failed to rebuild audit key for tx '%s': %v. Skipping.", txID, keyErr)
			continue
		}
		entryBytes, getErr := ctx.GetStub().GetState(entryKey)
		if getErr != nil || entryBytes == nil {
			logger.Warningf("GetMyAccessHistory: Audit entry missing for index key '%s' (err: %v). Skipping.", indexResponse.Key, getErr)
			continue
		}
		var entry model.AuditEntry
		if err := json.Unmarshal(entryBytes, &entry); err != nil {
			logger.Warningf("GetMyAccessHistory: Error unmarshalling audit entry for tx '%s': %v. Skipping.", txID, err)
			continue
		}
		entries = append(entries, &entry)
		fetchedCount++
	}

	return &model.PaginatedAuditResponse{
		Entries:      entries, // Will be [] if empty, not null
		NextBookmark: metadata.GetBookmark(),
		FetchedCount: fetchedCount,
	}, nil
}
