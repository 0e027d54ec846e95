package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"healthledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Data Registry Operations ---
//
// The registry owns the per-(owner, dataType) version history of content-hash
// pointers. Records are append-only; versions form a dense sequence 1..N with
// no gaps, and the counter update commits in the same write-set as the record
// insert.

// PublishData appends a new data pointer version for the calling patient and
// returns the assigned version number.
func (s *HealthSmartContract) PublishData(ctx contractapi.TransactionContextInterface, dataType int, contentHash string) (uint32, error) {
	ur := NewUserRegistry(ctx)
	if err := ur.RequireRole(model.RolePatient); err != nil {
		return 0, fmt.Errorf("PublishData: %w", err)
	}
	owner, err := ur.GetCurrentIdentityFullID()
	if err != nil {
		return 0, fmt.Errorf("PublishData: failed to get caller identity: %w", err)
	}

	dt, err := s.validateDataType(dataType)
	if err != nil {
		return 0, fmt.Errorf("PublishData: %w", err)
	}
	if err := s.validateContentHash(contentHash); err != nil {
		return 0, fmt.Errorf("PublishData: %w", err)
	}

	count, err := s.readVersionCount(ctx, owner, dt)
	if err != nil {
		return 0, fmt.Errorf("PublishData: %w", err)
	}
	version := count + 1

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("PublishData: %w", err)
	}

	record := model.DataRecord{
		ObjectType:   dataRecordObjectType,
		Owner:        owner,
		DataType:     dt,
		Version:      version,
		ContentHash:  strings.TrimSpace(contentHash),
		RegisteredAt: now,
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("PublishData: failed to marshal record v%d: %w", version, err)
	}

	recordKey, err := s.createDataRecordKey(ctx, owner, dt, version)
	if err != nil {
		return 0, fmt.Errorf("PublishData: failed to create record key: %w", err)
	}
	if err := ctx.GetStub().PutState(recordKey, recordBytes); err != nil {
		return 0, fmt.Errorf("PublishData: failed to save record v%d: %w", version, err)
	}

	countKey, err := s.createVersionCountKey(ctx, owner, dt)
	if err != nil {
		return 0, fmt.Errorf("PublishData: failed to create version count key: %w", err)
	}
	if err := ctx.GetStub().PutState(countKey, []byte(strconv.FormatUint(uint64(version), 10))); err != nil {
		return 0, fmt.Errorf("PublishData: failed to save version count: %w", err)
	}

	logger.Infof("Patient '%s' published %s pointer v%d", owner, dt, version)
	return version, nil
}

// readVersionCount is the internal counter read; 0 means nothing has been
// published for that (owner, dataType).
func (s *HealthSmartContract) readVersionCount(ctx contractapi.TransactionContextInterface, owner string, dt model.DataType) (uint32, error) {
	countKey, err := s.createVersionCountKey(ctx, owner, dt)
	if err != nil {
		return 0, fmt.Errorf("failed to create version count key: %w", err)
	}
	raw, err := ctx.GetStub().GetState(countKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read version count: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	count, err := strconv.ParseUint(string(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("corrupt version count '%s' for owner '%s' type %s: %w", string(raw), owner, dt, err)
	}
	return uint32(count), nil
}

// GetVersionCount returns how many versions exist for (owner, dataType).
// Pure read; 0 means no data has ever been published for that type.
func (s *HealthSmartContract) GetVersionCount(ctx contractapi.TransactionContextInterface, owner string, dataType int) (uint32, error) {
	logger.Debugf("GetVersionCount: owner '%s', dataType %d", owner, dataType)
	if err := s.validatePatientID(owner); err != nil {
		return 0, fmt.Errorf("GetVersionCount: %w", err)
	}
	dt, err := s.validateDataType(dataType)
	if err != nil {
		return 0, fmt.Errorf("GetVersionCount: %w", err)
	}
	return s.readVersionCount(ctx, owner, dt)
}

// getRecord is the internal lookup shared by GetRecord, GetLatestRecord, and
// the access path.
func (s *HealthSmartContract) getRecord(ctx contractapi.TransactionContextInterface, owner string, dt model.DataType, version uint32) (*model.DataRecord, error) {
	if version == 0 {
		return nil, fmt.Errorf("%w: version 0 for owner '%s' type %s", ErrRecordNotFound, owner, dt)
	}
	recordKey, err := s.createDataRecordKey(ctx, owner, dt, version)
	if err != nil {
		return nil, fmt.Errorf("failed to create record key: %w", err)
	}
	recordBytes, err := ctx.GetStub().GetState(recordKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read record v%d from ledger: %w", version, err)
	}
	if recordBytes == nil {
		return nil, fmt.Errorf("%w: owner '%s' type %s v%d", ErrRecordNotFound, owner, dt, version)
	}
	var record model.DataRecord
	if err := json.Unmarshal(recordBytes, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record v%d: %w", version, err)
	}
	return &record, nil
}

// GetRecord returns one published version of an owner's data pointer.
func (s *HealthSmartContract) GetRecord(ctx contractapi.TransactionContextInterface, owner string, dataType int, version int) (*model.DataRecord, error) {
	logger.Debugf("GetRecord: owner '%s', dataType %d, version %d", owner, dataType, version)
	if err := s.validatePatientID(owner); err != nil {
		return nil, fmt.Errorf("GetRecord: %w", err)
	}
	dt, err := s.validateDataType(dataType)
	if err != nil {
		return nil, fmt.Errorf("GetRecord: %w", err)
	}
	v, err := s.validateVersion(version)
	if err != nil {
		return nil, fmt.Errorf("GetRecord: %w", err)
	}
	return s.getRecord(ctx, owner, dt, v)
}

// GetLatestRecord returns the highest published version for (owner, dataType).
func (s *HealthSmartContract) GetLatestRecord(ctx contractapi.TransactionContextInterface, owner string, dataType int) (*model.DataRecord, error) {
	logger.Debugf("GetLatestRecord: owner '%s', dataType %d", owner, dataType)
	if err := s.validatePatientID(owner); err != nil {
		return nil, fmt.Errorf("GetLatestRecord: %w", err)
	}
	dt, err := s.validateDataType(dataType)
	if err != nil {
		return nil, fmt.Errorf("GetLatestRecord: %w", err)
	}
	count, err := s.readVersionCount(ctx, owner, dt)
	if err != nil {
		return nil, fmt.Errorf("GetLatestRecord: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: no data published for owner '%s' type %s", ErrRecordNotFound, owner, dt)
	}
	return s.getRecord(ctx, owner, dt, count)
}
