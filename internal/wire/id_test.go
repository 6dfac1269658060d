package wire

import (
	"testing"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsZeroGid(t *testing.T) {
	id := MakeID(0, 1)
	err := id.Validate()
	require.Error(t, err)
	require.Equal(t, ferr.InvalidId, ferr.KindOf(err))
}

func TestValidateRejectsZeroSid(t *testing.T) {
	id := MakeID(8, 0)
	err := id.Validate()
	require.Error(t, err)
	require.Equal(t, ferr.InvalidId, ferr.KindOf(err))
}

func TestValidateAcceptsInRangeID(t *testing.T) {
	id := MakeID(8, 8)
	require.NoError(t, id.Validate())
}
