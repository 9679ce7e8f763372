package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDashedQuadBypassesDNS(t *testing.T) {
	ip, err := Resolve("10-20-30-40.condor.example.cern.ch")
	require.NoError(t, err)
	require.Equal(t, "10.20.30.40", ip)
}

func TestResolveDashedQuadSingleDigitGroups(t *testing.T) {
	ip, err := Resolve("1-2-3-4.example")
	require.NoError(t, err)
	require.Equal(t, "1.2.3.4", ip)
}

func TestResolveUnresolvableNameFails(t *testing.T) {
	_, err := Resolve("no-such-host.invalid.elastiq-test")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnresolvable))
}
