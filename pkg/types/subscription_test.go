package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseSubscriptionStatus_RoundTrip(t *testing.T) {
	for _, st := range SubscriptionStatuses {
		parsed, err := ParseSubscriptionStatus(st.ProcessorString())
		require.NoError(t, err)
		require.Equal(t, st, parsed)
		require.Equal(t, string(st), parsed.ProcessorString())
	}
}

func TestParseSubscriptionStatus_Normalizes(t *testing.T) {
	st, err := ParseSubscriptionStatus("  PAST_DUE ")
	require.NoError(t, err)
	require.Equal(t, SubscriptionStatusPastDue, st)

	st, err = ParseSubscriptionStatus("incomplete_expired")
	require.NoError(t, err)
	require.Equal(t, SubscriptionStatusCanceled, st)

	_, err = ParseSubscriptionStatus("frozen")
	require.Error(t, err)
}

func TestSubscriptionStatus_Entitled(t *testing.T) {
	require.True(t, SubscriptionStatusActive.Entitled())
	require.True(t, SubscriptionStatusTrialing.Entitled())
	require.False(t, SubscriptionStatusPastDue.Entitled())
	require.False(t, SubscriptionStatus("bogus").Valid())
}

func TestMinorToMajor(t *testing.T) {
	require.True(t, decimal.RequireFromString("29.00").Equal(MinorToMajor(2900, "usd")))
	require.True(t, decimal.RequireFromString("29.00").Equal(MinorToMajor(2900, "")))
	require.True(t, decimal.NewFromInt(500).Equal(MinorToMajor(500, "JPY")))
	require.Equal(t, "0.05", MinorToMajor(5, "eur").StringFixed(2))
}
