package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	err := fmt.Errorf("apply: %w", NewTransient(TransientStorage, errors.New("conn reset")))
	require.True(t, IsTransient(err))
	require.False(t, IsTransient(&ReferentialNotFoundError{ExternalSubscriptionID: "sub_1"}))
	require.NoError(t, NewTransient(TransientStorage, nil))

	wrapped := NewTransient(TransientCollaboratorTimeout, context.DeadlineExceeded)
	require.ErrorIs(t, wrapped, context.DeadlineExceeded)
}

func TestMalformedEventError_Message(t *testing.T) {
	require.Contains(t, (&MalformedEventError{Envelope: true, Reason: "missing id"}).Error(), "envelope")
	require.Contains(t, (&MalformedEventError{EventID: "evt_1", Reason: "bad status"}).Error(), "evt_1")
}
