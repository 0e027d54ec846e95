package contract

import (
	"crypto/x509"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	pb "github.com/hyperledger/fabric-protos-go/peer"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// In-memory stand-ins for the Fabric stub and client identity. shimtest's
// MockStub does not implement paginated partial-composite-key queries, which
// the audit log depends on, so the tests carry their own map-backed stub.

const compositeKeyNamespace = "\x00"

type mockStub struct {
	state       map[string][]byte
	txID        string
	txTimestamp *timestamppb.Timestamp
	events      map[string][]byte
}

func newMockStub() *mockStub {
	return &mockStub{
		state:  map[string][]byte{},
		txID:   "tx-0",
		events: map[string][]byte{},
	}
}

func (ms *mockStub) setTxTime(t time.Time) {
	ms.txTimestamp = timestamppb.New(t)
}

func (ms *mockStub) sortedKeys() []string {
	keys := make([]string, 0, len(ms.state))
	for k := range ms.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- State access ---

func (ms *mockStub) GetState(key string) ([]byte, error) {
	return ms.state[key], nil
}

func (ms *mockStub) PutState(key string, value []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	ms.state[key] = value
	return nil
}

func (ms *mockStub) DelState(key string) error {
	delete(ms.state, key)
	return nil
}

// --- Composite keys (same encoding as the real shim) ---

func (ms *mockStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	ck := compositeKeyNamespace + objectType + string(rune(0))
	for _, attr := range attributes {
		ck += attr + string(rune(0))
	}
	return ck, nil
}

func (ms *mockStub) SplitCompositeKey(compositeKey string) (string, []string, error) {
	if !strings.HasPrefix(compositeKey, compositeKeyNamespace) {
		return "", nil, fmt.Errorf("not a composite key: %s", compositeKey)
	}
	components := strings.Split(compositeKey[1:], string(rune(0)))
	// Trailing delimiter yields one empty component at the end.
	return components[0], components[1 : len(components)-1], nil
}

func (ms *mockStub) partialKeyMatches(objectType string, attributes []string) []string {
	prefix, _ := ms.CreateCompositeKey(objectType, attributes)
	// The full prefix ends with a delimiter; a partial key stops after the
	// last provided attribute's delimiter, so plain prefix matching works.
	matched := []string{}
	for _, k := range ms.sortedKeys() {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	return matched
}

func (ms *mockStub) GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	return ms.iteratorFor(ms.partialKeyMatches(objectType, keys)), nil
}

func (ms *mockStub) GetStateByPartialCompositeKeyWithPagination(objectType string, keys []string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	matched := ms.partialKeyMatches(objectType, keys)
	page := []string{}
	next := ""
	for _, k := range matched {
		if bookmark != "" && k < bookmark {
			continue
		}
		if int32(len(page)) == pageSize {
			next = k
			break
		}
		page = append(page, k)
	}
	meta := &pb.QueryResponseMetadata{
		FetchedRecordsCount: int32(len(page)),
		Bookmark:            next,
	}
	return ms.iteratorFor(page), meta, nil
}

func (ms *mockStub) iteratorFor(keys []string) *mockIterator {
	kvs := make([]*queryresult.KV, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, &queryresult.KV{Key: k, Value: ms.state[k]})
	}
	return &mockIterator{kvs: kvs}
}

func (ms *mockStub) GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	matched := []string{}
	for _, k := range ms.sortedKeys() {
		if (startKey == "" || k >= startKey) && (endKey == "" || k < endKey) {
			matched = append(matched, k)
		}
	}
	return ms.iteratorFor(matched), nil
}

func (ms *mockStub) GetStateByRangeWithPagination(startKey, endKey string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	return nil, nil, errors.New("GetStateByRangeWithPagination not implemented in mock")
}

// --- Transaction metadata ---

func (ms *mockStub) GetTxID() string {
	return ms.txID
}

func (ms *mockStub) GetChannelID() string {
	return "testchannel"
}

func (ms *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	if ms.txTimestamp == nil {
		return nil, errors.New("tx timestamp not set on mock stub")
	}
	return ms.txTimestamp, nil
}

func (ms *mockStub) SetEvent(name string, payload []byte) error {
	if name == "" {
		return errors.New("event name cannot be empty")
	}
	ms.events[name] = payload
	return nil
}

// --- Unused surface of shim.ChaincodeStubInterface ---

func (ms *mockStub) GetArgs() [][]byte                  { return nil }
func (ms *mockStub) GetStringArgs() []string            { return nil }
func (ms *mockStub) GetFunctionAndParameters() (string, []string) {
	return "", nil
}
func (ms *mockStub) GetArgsSlice() ([]byte, error) { return nil, nil }
func (ms *mockStub) InvokeChaincode(chaincodeName string, args [][]byte, channel string) pb.Response {
	return pb.Response{}
}
func (ms *mockStub) SetStateValidationParameter(key string, ep []byte) error { return nil }
func (ms *mockStub) GetStateValidationParameter(key string) ([]byte, error)  { return nil, nil }
func (ms *mockStub) GetQueryResult(query string) (shim.StateQueryIteratorInterface, error) {
	return nil, errors.New("rich queries not implemented in mock")
}
func (ms *mockStub) GetQueryResultWithPagination(query string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	return nil, nil, errors.New("rich queries not implemented in mock")
}
func (ms *mockStub) GetHistoryForKey(key string) (shim.HistoryQueryIteratorInterface, error) {
	return nil, errors.New("history queries not implemented in mock")
}
func (ms *mockStub) GetPrivateData(collection, key string) ([]byte, error)     { return nil, nil }
func (ms *mockStub) GetPrivateDataHash(collection, key string) ([]byte, error) { return nil, nil }
func (ms *mockStub) PutPrivateData(collection string, key string, value []byte) error {
	return nil
}
func (ms *mockStub) DelPrivateData(collection, key string) error   { return nil }
func (ms *mockStub) PurgePrivateData(collection, key string) error { return nil }
func (ms *mockStub) SetPrivateDataValidationParameter(collection, key string, ep []byte) error {
	return nil
}
func (ms *mockStub) GetPrivateDataValidationParameter(collection, key string) ([]byte, error) {
	return nil, nil
}
func (ms *mockStub) GetPrivateDataByRange(collection, startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	return nil, errors.New("private data not implemented in mock")
}
func (ms *mockStub) GetPrivateDataByPartialCompositeKey(collection, objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	return nil, errors.New("private data not implemented in mock")
}
func (ms *mockStub) GetPrivateDataQueryResult(collection, query string) (shim.StateQueryIteratorInterface, error) {
	return nil, errors.New("private data not implemented in mock")
}
func (ms *mockStub) GetCreator() ([]byte, error)              { return nil, nil }
func (ms *mockStub) GetTransient() (map[string][]byte, error) { return nil, nil }
func (ms *mockStub) GetBinding() ([]byte, error)              { return nil, nil }
func (ms *mockStub) GetDecorations() map[string][]byte        { return nil }
func (ms *mockStub) GetSignedProposal() (*pb.SignedProposal, error) {
	return nil, nil
}

var _ shim.ChaincodeStubInterface = (*mockStub)(nil)

// --- Iterator ---

type mockIterator struct {
	kvs    []*queryresult.KV
	pos    int
	closed bool
}

func (it *mockIterator) HasNext() bool {
	return !it.closed && it.pos < len(it.kvs)
}

func (it *mockIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, errors.New("no more items in iterator")
	}
	kv := it.kvs[it.pos]
	it.pos++
	return kv, nil
}

func (it *mockIterator) Close() error {
	it.closed = true
	return nil
}

var _ shim.StateQueryIteratorInterface = (*mockIterator)(nil)

// --- Client identity ---

type mockClientIdentity struct {
	id    string
	mspID string
}

func (mc *mockClientIdentity) GetID() (string, error)    { return mc.id, nil }
func (mc *mockClientIdentity) GetMSPID() (string, error) { return mc.mspID, nil }
func (mc *mockClientIdentity) GetAttributeValue(attrName string) (string, bool, error) {
	return "", false, nil
}
func (mc *mockClientIdentity) AssertAttributeValue(attrName, attrValue string) error {
	return errors.New("attribute not found")
}
func (mc *mockClientIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}

var _ cid.ClientIdentity = (*mockClientIdentity)(nil)

// --- Transaction context ---

type mockContext struct {
	stub     *mockStub
	identity *mockClientIdentity
}

func (mc *mockContext) GetStub() shim.ChaincodeStubInterface { return mc.stub }
func (mc *mockContext) GetClientIdentity() cid.ClientIdentity {
	return mc.identity
}

// newMockContext returns a context acting as callerID against a shared stub.
func newMockContext(stub *mockStub, callerID string) *mockContext {
	return &mockContext{
		stub:     stub,
		identity: &mockClientIdentity{id: callerID, mspID: "Org1MSP"},
	}
}
