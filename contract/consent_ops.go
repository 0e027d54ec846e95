package contract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"healthledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Consent Manager Operations ---
//
// A single grant slot exists per (patient, requester) pair. SetConsent
// overwrites the slot unconditionally, so "at most one active grant per pair"
// holds without any cross-call locking. Callers must be aware there is no
// multi-grant list per requester: a second grant silently supersedes the
// first even for an unrelated data type or version.

// SetConsent creates or overwrites the calling patient's grant for one
// requester, scoped to a data type and version, expiring after durationDays.
func (s *HealthSmartContract) SetConsent(ctx contractapi.TransactionContextInterface, requester string, dataType int, version int, durationDays int) error {
	ur := NewUserRegistry(ctx)
	if err := ur.RequireRole(model.RolePatient); err != nil {
		return fmt.Errorf("SetConsent: %w", err)
	}
	patient, err := ur.GetCurrentIdentityFullID()
	if err != nil {
		return fmt.Errorf("SetConsent: failed to get caller identity: %w", err)
	}

	requester = strings.TrimSpace(requester)
	if requester == "" {
		return fmt.Errorf("SetConsent: %w: requester cannot be empty", ErrInvalidRequester)
	}
	// Self-consent is disallowed so patients reach their own data through the
	// same audited requester path as everyone else.
	if requester == patient {
		return fmt.Errorf("SetConsent: %w: requester equals caller", ErrInvalidRequester)
	}
	dt, err := s.validateDataType(dataType)
	if err != nil {
		return fmt.Errorf("SetConsent: %w", err)
	}
	v, err := s.validateVersion(version)
	if err != nil {
		return fmt.Errorf("SetConsent: %w", err)
	}
	if durationDays <= 0 {
		return fmt.Errorf("SetConsent: %w: durationDays must be positive, got %d", ErrInvalidDuration, durationDays)
	}
	if durationDays > maxDurationDays {
		return fmt.Errorf("SetConsent: %w: durationDays exceeds maximum of %d", ErrInvalidDuration, maxDurationDays)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("SetConsent: %w", err)
	}

	grant := model.ConsentGrant{
		ObjectType: consentObjectType,
		Patient:    patient,
		Requester:  requester,
		DataType:   dt,
		Version:    v,
		GrantedAt:  now,
		ExpiresAt:  now.Add(time.Duration(durationDays) * 24 * time.Hour),
		Revoked:    false,
	}
	grantBytes, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("SetConsent: failed to marshal grant: %w", err)
	}
	grantKey, err := s.createConsentKey(ctx, patient, requester)
	if err != nil {
		return fmt.Errorf("SetConsent: failed to create consent key: %w", err)
	}
	if err := ctx.GetStub().PutState(grantKey, grantBytes); err != nil {
		return fmt.Errorf("SetConsent: failed to save grant: %w", err)
	}

	logger.Infof("Patient '%s' granted '%s' consent for %s v%d until %s", patient, requester, dt, v, grant.ExpiresAt.Format(time.RFC3339))
	return nil
}

// RevokeConsent invalidates the calling patient's grant for the requester.
// Idempotent: revoking a missing or already-revoked grant is a no-op.
func (s *HealthSmartContract) RevokeConsent(ctx contractapi.TransactionContextInterface, requester string) error {
	ur := NewUserRegistry(ctx)
	if err := ur.RequireRole(model.RolePatient); err != nil {
		return fmt.Errorf("RevokeConsent: %w", err)
	}
	patient, err := ur.GetCurrentIdentityFullID()
	if err != nil {
		return fmt.Errorf("RevokeConsent: failed to get caller identity: %w", err)
	}
	requester = strings.TrimSpace(requester)
	if requester == "" {
		return fmt.Errorf("RevokeConsent: %w: requester cannot be empty", ErrInvalidRequester)
	}

	grant, err := s.getConsentGrant(ctx, patient, requester)
	if err != nil {
		return fmt.Errorf("RevokeConsent: %w", err)
	}
	if grant == nil || grant.Revoked {
		logger.Debugf("RevokeConsent: no active grant for patient '%s' -> requester '%s'. No action taken.", patient, requester)
		return nil
	}

	grant.Revoked = true
	grantBytes, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("RevokeConsent: failed to marshal grant: %w", err)
	}
	grantKey, err := s.createConsentKey(ctx, patient, requester)
	if err != nil {
		return fmt.Errorf("RevokeConsent: failed to create consent key: %w", err)
	}
	if err := ctx.GetStub().PutState(grantKey, grantBytes); err != nil {
		return fmt.Errorf("RevokeConsent: failed to save revoked grant: %w", err)
	}

	logger.Infof("Patient '%s' revoked consent for requester '%s'", patient, requester)
	return nil
}

// getConsentGrant returns the stored grant for the pair, or nil when no grant
// has ever been written.
func (s *HealthSmartContract) getConsentGrant(ctx contractapi.TransactionContextInterface, patient, requester string) (*model.ConsentGrant, error) {
	grantKey, err := s.createConsentKey(ctx, patient, requester)
	if err != nil {
		return nil, fmt.Errorf("failed to create consent key: %w", err)
	}
	grantBytes, err := ctx.GetStub().GetState(grantKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read grant from ledger: %w", err)
	}
	if grantBytes == nil {
		return nil, nil
	}
	var grant model.ConsentGrant
	if err := json.Unmarshal(grantBytes, &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant for patient '%s' requester '%s': %w", patient, requester, err)
	}
	return &grant, nil
}

// grantIsValid applies the consent validity predicate: the grant exists, is
// not revoked, has not expired at the transaction timestamp, and its stored
// scope matches the (dataType, version) being checked.
func grantIsValid(grant *model.ConsentGrant, dt model.DataType, version uint32, now time.Time) bool {
	if grant == nil || grant.Revoked {
		return false
	}
	if !grant.ExpiresAt.After(now) {
		return false
	}
	return grant.DataType == dt && grant.Version == version
}

// HasValidConsent reports whether requester holds a currently valid grant
// from patient for the exact (dataType, version). Pure read: every unmet
// condition, including "no grant ever existed", yields false rather than an
// error.
func (s *HealthSmartContract) HasValidConsent(ctx contractapi.TransactionContextInterface, patient, requester string, dataType int, version int) (bool, error) {
	logger.Debugf("HasValidConsent: patient '%s', requester '%s', dataType %d, version %d", patient, requester, dataType, version)
	if strings.TrimSpace(patient) == "" || strings.TrimSpace(requester) == "" {
		return false, nil
	}
	dt, err := s.validateDataType(dataType)
	if err != nil {
		return false, nil
	}
	v, err := s.validateVersion(version)
	if err != nil {
		return false, nil
	}
	grant, err := s.getConsentGrant(ctx, patient, requester)
	if err != nil {
		// Ledger I/O failure, not a negative consent decision.
		return false, fmt.Errorf("HasValidConsent: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return false, fmt.Errorf("HasValidConsent: %w", err)
	}
	return grantIsValid(grant, dt, v, now), nil
}

// GetMyConsent returns the calling patient's grant slot for one requester,
// or RecordNotFound when no grant has ever been written.
func (s *HealthSmartContract) GetMyConsent(ctx contractapi.TransactionContextInterface, requester string) (*model.ConsentGrant, error) {
	ur := NewUserRegistry(ctx)
	if err := ur.RequireRole(model.RolePatient); err != nil {
		return nil, fmt.Errorf("GetMyConsent: %w", err)
	}
	patient, err := ur.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("GetMyConsent: failed to get caller identity: %w", err)
	}
	requester = strings.TrimSpace(requester)
	if requester == "" {
		return nil, fmt.Errorf("GetMyConsent: %w: requester cannot be empty", ErrInvalidRequester)
	}
	grant, err := s.getConsentGrant(ctx, patient, requester)
	if err != nil {
		return nil, fmt.Errorf("GetMyConsent: %w", err)
	}
	if grant == nil {
		return nil, fmt.Errorf("%w: no consent grant for requester '%s'", ErrRecordNotFound, requester)
	}
	return grant, nil
}
