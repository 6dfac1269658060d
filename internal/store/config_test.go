package store

import (
	"testing"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/stretchr/testify/require"
)

func TestParsePrefixDefaultsPort(t *testing.T) {
	p, err := ParsePrefix("239.1.0.0")
	require.NoError(t, err)
	require.Equal(t, DefaultPort, p.Port)
}

func TestParsePrefixExplicitPort(t *testing.T) {
	p, err := ParsePrefix("239.1.0.0:9000")
	require.NoError(t, err)
	require.Equal(t, 9000, p.Port)
}

func TestParsePrefixRejectsNonMulticast(t *testing.T) {
	_, err := ParsePrefix("10.0.0.0")
	require.Error(t, err)
	require.Equal(t, ferr.InvalidArg, ferr.KindOf(err))
}

func TestParsePrefixRejectsGidBitOverlap(t *testing.T) {
	_, err := ParsePrefix("239.0.0.1")
	require.Error(t, err)
	require.Equal(t, ferr.InvalidArg, ferr.KindOf(err))
}

func TestParsePrefixRejectsBadPort(t *testing.T) {
	_, err := ParsePrefix("239.0.0.0:notaport")
	require.Error(t, err)
	require.Equal(t, ferr.InvalidArg, ferr.KindOf(err))
}

func TestGroupAddrEncodesGidIntoLowBits(t *testing.T) {
	p, err := ParsePrefix("239.0.0.0:4586")
	require.NoError(t, err)
	addr := p.GroupAddr(2047)
	require.Equal(t, "239.0.7.255", addr.IP.String())
	require.Equal(t, 4586, addr.Port)
}
