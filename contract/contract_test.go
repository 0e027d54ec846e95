package contract

import (
	"strings"
	"testing"
	"time"

	"healthledger/model"

	"github.com/stretchr/testify/require"
)

// Shared fixtures for the contract tests. One mockStub plays the ledger for a
// whole scenario; per-caller contexts are layered on top of it.

const (
	patientID  = "x509::CN=alice,OU=client::CN=ca.org1.example.com"
	doctorID   = "x509::CN=drbob,OU=client::CN=ca.org1.example.com"
	otherDocID = "x509::CN=drcarol,OU=client::CN=ca.org2.example.com"
)

var testBaseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	t    *testing.T
	stub *mockStub
	cc   *HealthSmartContract
}

func newTestEnv(t *testing.T) *testEnv {
	stub := newMockStub()
	stub.setTxTime(testBaseTime)
	return &testEnv{t: t, stub: stub, cc: &HealthSmartContract{}}
}

func (te *testEnv) ctx(caller string) *mockContext {
	return newMockContext(te.stub, caller)
}

// nextTx advances the mock transaction ID so audit entries from separate
// invocations land under separate keys, as they would on a real ledger.
func (te *testEnv) nextTx(txID string) {
	te.stub.txID = txID
}

func (te *testEnv) registerPatient(id string) {
	te.t.Helper()
	user, err := te.cc.RegisterPatient(te.ctx(id), "hash-of-"+id)
	require.NoError(te.t, err)
	require.Equal(te.t, model.RolePatient, user.Role)
}

func (te *testEnv) registerRequester(id, role string) {
	te.t.Helper()
	user, err := te.cc.RegisterRequester(te.ctx(id), role, "hash-of-"+id)
	require.NoError(te.t, err)
	require.Equal(te.t, role, user.Role)
}

// auditEntryCount counts the primary audit records currently in state.
func (te *testEnv) auditEntryCount() int {
	prefix := compositeKeyNamespace + auditObjectType + string(rune(0))
	n := 0
	for k := range te.stub.state {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}
