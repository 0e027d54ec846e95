package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"healthledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var idLogger = flogging.MustGetLogger("healthledger.userregistry")

// Object types for composite keys, also usable as 'docType' or 'objectType' in CouchDB.
const (
	userObjectType      = "UserInfo"          // Stores UserInfo objects. Attribute for composite key: ID.
	userSeqObjectType   = "UserInternalIDSeq" // Single key holding the last assigned internal ID.
	maxHashIDInputLen   = 128
	internalIDSeqAttrib = "seq"
)

// validRequesterRoles is the set of roles a non-patient may self-register
// with. "patient" is deliberately excluded: patients go through
// RegisterPatient so the two registration paths stay distinct.
var validRequesterRoles = map[string]bool{
	model.RoleDoctor:     true,
	model.RoleResearcher: true,
	model.RoleInsurance:  true,
	model.RoleSpecialist: true,
}

// UserRegistry handles identity registration and read-only role lookups. It
// sits at the boundary of the consent/access core: the core consults it only
// to gate who may publish, grant, and request.
type UserRegistry struct {
	Ctx contractapi.TransactionContextInterface
}

// NewUserRegistry creates a new instance of UserRegistry.
func NewUserRegistry(ctx contractapi.TransactionContextInterface) *UserRegistry {
	return &UserRegistry{Ctx: ctx}
}

// --- Internal Helper Functions ---

func (ur *UserRegistry) getCurrentTxTimestamp() (time.Time, error) {
	ts, err := ur.Ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

func (ur *UserRegistry) createUserCompositeKey(fullID string) (string, error) {
	return ur.Ctx.GetStub().CreateCompositeKey(userObjectType, []string{fullID})
}

func (ur *UserRegistry) createSeqCompositeKey() (string, error) {
	return ur.Ctx.GetStub().CreateCompositeKey(userSeqObjectType, []string{internalIDSeqAttrib})
}

func (ur *UserRegistry) listOfRequesterRoles() []string {
	keys := make([]string, 0, len(validRequesterRoles))
	for k := range validRequesterRoles {
		keys = append(keys, k)
	}
	return keys
}

// nextInternalID increments and returns the registry-wide internal ID
// sequence. Read and write land in the same transaction write-set, so two
// concurrent registrations cannot observe the same value.
func (ur *UserRegistry) nextInternalID() (uint64, error) {
	seqKey, err := ur.createSeqCompositeKey()
	if err != nil {
		return 0, fmt.Errorf("failed to create internal ID sequence key: %w", err)
	}
	raw, err := ur.Ctx.GetStub().GetState(seqKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read internal ID sequence: %w", err)
	}
	var last uint64
	if raw != nil {
		last, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt internal ID sequence value '%s': %w", string(raw), err)
		}
	}
	next := last + 1
	if err := ur.Ctx.GetStub().PutState(seqKey, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, fmt.Errorf("failed to advance internal ID sequence: %w", err)
	}
	return next, nil
}

// GetCurrentIdentityFullID retrieves the full client identity of the current transactor.
func (ur *UserRegistry) GetCurrentIdentityFullID() (string, error) {
	clientIdentity := ur.Ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" {
		return "", errors.New("client identity ID from context is empty")
	}
	return id, nil
}

// --- Registration ---

// register is the shared registration path for patients and requesters.
func (ur *UserRegistry) register(role, hashID string) (*model.UserInfo, error) {
	callerID, err := ur.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("registration failed to resolve caller: %w", err)
	}

	hashID = strings.TrimSpace(hashID)
	if hashID == "" {
		return nil, errors.New("hashId cannot be empty")
	}
	if len(hashID) > maxHashIDInputLen {
		return nil, fmt.Errorf("hashId exceeds max length %d", maxHashIDInputLen)
	}

	userKey, err := ur.createUserCompositeKey(callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user composite key for '%s': %w", callerID, err)
	}
	existing, err := ur.Ctx.GetStub().GetState(userKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing registration for '%s': %w", callerID, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: identity '%s'", ErrAlreadyRegistered, callerID)
	}

	now, err := ur.getCurrentTxTimestamp()
	if err != nil {
		return nil, err
	}
	internalID, err := ur.nextInternalID()
	if err != nil {
		return nil, err
	}

	user := model.UserInfo{
		ObjectType:   userObjectType,
		ID:           callerID,
		InternalID:   internalID,
		Role:         role,
		HashID:       hashID,
		Registered:   true,
		RegisteredAt: now,
	}
	userBytes, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal UserInfo for '%s': %w", callerID, err)
	}
	if err := ur.Ctx.GetStub().PutState(userKey, userBytes); err != nil {
		return nil, fmt.Errorf("failed to save UserInfo for '%s': %w", callerID, err)
	}

	idLogger.Infof("Registered identity '%s' as %s (internal ID %d)", callerID, role, internalID)
	return &user, nil
}

// RegisterPatient self-registers the calling identity with the patient role.
func (ur *UserRegistry) RegisterPatient(hashID string) (*model.UserInfo, error) {
	return ur.register(model.RolePatient, hashID)
}

// RegisterRequester self-registers the calling identity with one of the
// requester roles (doctor, researcher, insurance, specialist).
func (ur *UserRegistry) RegisterRequester(role, hashID string) (*model.UserInfo, error) {
	roleLower := strings.ToLower(strings.TrimSpace(role))
	if !validRequesterRoles[roleLower] {
		return nil, fmt.Errorf("invalid requester role '%s'. Valid roles are: %v", role, ur.listOfRequesterRoles())
	}
	return ur.register(roleLower, hashID)
}

// --- Lookups ---

// GetUser returns the UserInfo stored for an identity. Unregistered
// identities yield a zero-value UserInfo with Registered=false, never an
// error, so role gates can treat "unknown" and "never registered" alike.
func (ur *UserRegistry) GetUser(fullID string) (*model.UserInfo, error) {
	if strings.TrimSpace(fullID) == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	userKey, err := ur.createUserCompositeKey(fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user composite key for '%s': %w", fullID, err)
	}
	userBytes, err := ur.Ctx.GetStub().GetState(userKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving UserInfo for '%s': %w", fullID, err)
	}
	if userBytes == nil {
		return &model.UserInfo{ID: fullID, Registered: false}, nil
	}
	var user model.UserInfo
	if err := json.Unmarshal(userBytes, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal UserInfo for '%s': %w", fullID, err)
	}
	return &user, nil
}

// HasRole reports whether the identity is registered with the given role.
func (ur *UserRegistry) HasRole(fullID, role string) (bool, error) {
	user, err := ur.GetUser(fullID)
	if err != nil {
		return false, fmt.Errorf("error resolving identity '%s' to check role: %w", fullID, err)
	}
	return user.Registered && user.Role == strings.ToLower(strings.TrimSpace(role)), nil
}

// RequireRole fails unless the calling identity is registered with the
// required role.
func (ur *UserRegistry) RequireRole(requiredRole string) error {
	callerID, err := ur.GetCurrentIdentityFullID()
	if err != nil {
		return fmt.Errorf("failed to get current user's ID for RequireRole: %w", err)
	}
	has, err := ur.HasRole(callerID, requiredRole)
	if err != nil {
		return fmt.Errorf("error checking role '%s' for current user '%s': %w", requiredRole, callerID, err)
	}
	if !has {
		return fmt.Errorf("%w: identity '%s' does not have required role '%s'", ErrNotAuthorized, callerID, requiredRole)
	}
	idLogger.Debugf("Role check passed for role '%s' for user '%s'.", requiredRole, callerID)
	return nil
}

// RequireRequester fails unless the calling identity is registered with any
// requester role. Patients are rejected: data access always goes through a
// distinct requester identity.
func (ur *UserRegistry) RequireRequester() (string, error) {
	callerID, err := ur.GetCurrentIdentityFullID()
	if err != nil {
		return "", fmt.Errorf("failed to get current user's ID for RequireRequester: %w", err)
	}
	user, err := ur.GetUser(callerID)
	if err != nil {
		return "", fmt.Errorf("error resolving requester '%s': %w", callerID, err)
	}
	if !user.Registered || !validRequesterRoles[user.Role] {
		return "", fmt.Errorf("%w: identity '%s' is not a registered requester", ErrNotAuthorized, callerID)
	}
	return callerID, nil
}

// MustGetCallerFullID is a utility to get the caller's ID, returning a placeholder on error.
// Useful for logging when a full error return isn't desired.
func MustGetCallerFullID(ctx contractapi.TransactionContextInterface) string {
	clientIdentity := ctx.GetClientIdentity()
	if clientIdentity == nil {
		idLogger.Error("MustGetCallerFullID: Client identity is nil from context. Returning placeholder.")
		return "ERROR_NIL_CLIENT_IDENTITY"
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		idLogger.Errorf("MustGetCallerFullID: Failed to get client identity ID: %v. Returning placeholder.", err)
		return "ERROR_GETTING_CALLER_ID"
	}
	if id == "" {
		idLogger.Error("MustGetCallerFullID: Client identity ID from context is empty. Returning placeholder.")
		return "ERROR_EMPTY_CALLER_ID"
	}
	return id
}
