package contract

import (
	"fmt"

	"healthledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("healthledger.healthcontract")

// Object types used for composite keys and as 'docType' for CouchDB queries.
const (
	dataRecordObjectType   = "DataRecord"       // Attributes: owner, dataType, version
	versionCountObjectType = "DataVersionCount" // Attributes: owner, dataType
	consentObjectType      = "ConsentGrant"     // Attributes: patient, requester
	auditObjectType        = "AuditEntry"       // Attributes: patient, txID
	auditIndexObjectType   = "AuditByRequester" // Attributes: requester, patient, txID
)

// Constants for input validation and limits
const (
	maxContentHashLength = 128 // hex digest plus margin for multihash prefixes
	maxDurationDays      = 3650
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// HealthSmartContract provides functions for managing patient data pointers,
// consent grants, and audited data access.
// @contract:HealthSmartContract
type HealthSmartContract struct {
	contractapi.Contract
}

// Instantiate is called during chaincode instantiation.
// It's a lifecycle method of the contract.
func (s *HealthSmartContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("HealthSmartContract Instantiated/Upgraded")
}

// --- Identity Registry Wrappers (Delegating to UserRegistry) ---
// The consent/access core consults the registry only for role gating; these
// wrappers keep the contract API in one place.

// RegisterPatient self-registers the calling identity as a patient. The
// hashId is an opaque digest of off-chain identity attributes; nothing
// personally identifying crosses this boundary.
func (s *HealthSmartContract) RegisterPatient(ctx contractapi.TransactionContextInterface, hashID string) (*model.UserInfo, error) {
	logger.Infof("Chaincode Call: RegisterPatient by '%s'", MustGetCallerFullID(ctx))
	return NewUserRegistry(ctx).RegisterPatient(hashID)
}

// RegisterRequester self-registers the calling identity with a requester
// role: doctor, researcher, insurance, or specialist.
func (s *HealthSmartContract) RegisterRequester(ctx contractapi.TransactionContextInterface, role, hashID string) (*model.UserInfo, error) {
	logger.Infof("Chaincode Call: RegisterRequester role '%s' by '%s'", role, MustGetCallerFullID(ctx))
	return NewUserRegistry(ctx).RegisterRequester(role, hashID)
}

// GetUser is the read-only role lookup consumed at the identity boundary.
// Unregistered identities return Registered=false rather than an error.
func (s *HealthSmartContract) GetUser(ctx contractapi.TransactionContextInterface, id string) (*model.UserInfo, error) {
	logger.Debugf("Chaincode Call: GetUser for '%s'", id)
	return NewUserRegistry(ctx).GetUser(id)
}

// GetMyIdentity returns the registration record of the calling identity.
func (s *HealthSmartContract) GetMyIdentity(ctx contractapi.TransactionContextInterface) (*model.UserInfo, error) {
	ur := NewUserRegistry(ctx)
	callerID, err := ur.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("GetMyIdentity: %w", err)
	}
	return ur.GetUser(callerID)
}
