/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package credexchange

import (
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	provider storage.Provider
}

func (p *mockProvider) StorageProvider() storage.Provider {
	return p.provider
}

func newRecorder(t *testing.T) *Recorder {
	t.Helper()

	recorder, err := NewRecorder(&mockProvider{provider: mem.NewProvider()})
	require.NoError(t, err)

	return recorder
}

func TestRecorder_SaveAndGet(t *testing.T) {
	recorder := newRecorder(t)

	record := &Record{
		ExchangeID:   "exchange-1",
		ConnectionID: "conn-1",
		ThreadID:     "thread-1",
		Role:         RoleIssuer,
		Initiator:    InitiatorExternal,
		State:        StateProposalReceived,
	}

	require.NoError(t, recorder.Save(record))
	require.False(t, record.CreatedAt.IsZero())
	require.False(t, record.UpdatedAt.IsZero())

	got, err := recorder.GetByID("exchange-1")
	require.NoError(t, err)
	require.Equal(t, "thread-1", got.ThreadID)
	require.Equal(t, RoleIssuer, got.Role)
	require.Equal(t, StateProposalReceived, got.State)

	createdAt := record.CreatedAt

	record.State = StateOfferSent
	require.NoError(t, recorder.Save(record))

	got, err = recorder.GetByID("exchange-1")
	require.NoError(t, err)
	require.Equal(t, StateOfferSent, got.State)
	require.Equal(t, createdAt.Unix(), got.CreatedAt.Unix())
}

func TestRecorder_SaveRequiresID(t *testing.T) {
	recorder := newRecorder(t)

	require.Error(t, recorder.Save(&Record{}))
}

func TestRecorder_GetByThreadID(t *testing.T) {
	recorder := newRecorder(t)

	require.NoError(t, recorder.Save(&Record{
		ExchangeID: "exchange-1",
		ThreadID:   "thread-1",
		Role:       RoleHolder,
		State:      StateProposalSent,
	}))

	got, err := recorder.GetByThreadID("thread-1")
	require.NoError(t, err)
	require.Equal(t, "exchange-1", got.ExchangeID)

	_, err = recorder.GetByThreadID("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecorder_Query(t *testing.T) {
	recorder := newRecorder(t)

	require.NoError(t, recorder.Save(&Record{
		ExchangeID:   "exchange-1",
		ConnectionID: "conn-1",
		ThreadID:     "thread-1",
		Role:         RoleIssuer,
		State:        StateOfferSent,
	}))
	require.NoError(t, recorder.Save(&Record{
		ExchangeID:   "exchange-2",
		ConnectionID: "conn-2",
		ThreadID:     "thread-2",
		Role:         RoleHolder,
		State:        StateOfferReceived,
	}))

	all, err := recorder.Query()
	require.NoError(t, err)
	require.Len(t, all, 2)

	issuers, err := recorder.Query("role:" + RoleIssuer)
	require.NoError(t, err)
	require.Len(t, issuers, 1)
	require.Equal(t, "exchange-1", issuers[0].ExchangeID)

	byConn, err := recorder.Query("connection_id:conn-2")
	require.NoError(t, err)
	require.Len(t, byConn, 1)
	require.Equal(t, "exchange-2", byConn[0].ExchangeID)
}

func TestRecorder_Delete(t *testing.T) {
	recorder := newRecorder(t)

	require.NoError(t, recorder.Save(&Record{
		ExchangeID: "exchange-1",
		ThreadID:   "thread-1",
		Role:       RoleHolder,
		State:      StateDone,
	}))

	require.NoError(t, recorder.Delete("exchange-1"))

	_, err := recorder.GetByID("exchange-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, recorder.Delete("exchange-1"), ErrNotFound)
}

func TestRecord_SnapshotsWriteOnce(t *testing.T) {
	record := &Record{ExchangeID: "exchange-1"}

	first := map[string]interface{}{"@id": "msg-1"}
	second := map[string]interface{}{"@id": "msg-2"}

	require.True(t, record.SetProposalDict(first))
	require.False(t, record.SetProposalDict(second))
	require.Equal(t, "msg-1", record.CredentialProposalDict["@id"])

	require.True(t, record.SetOfferDict(first))
	require.False(t, record.SetOfferDict(second))

	require.True(t, record.SetRequestDict(first))
	require.False(t, record.SetRequestDict(second))

	require.True(t, record.SetCredentialDict(first))
	require.False(t, record.SetCredentialDict(second))
}

func TestState_Terminal(t *testing.T) {
	require.True(t, StateDone.Terminal())
	require.True(t, StateAbandoned.Terminal())
	require.False(t, StateRequestReceived.Terminal())
	require.False(t, StateProposalSent.Terminal())
}
