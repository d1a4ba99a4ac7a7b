package jitapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitKind_String(t *testing.T) {
	for _, tc := range []struct {
		kind ExitKind
		exp  string
	}{
		{kind: ExitKindNormal, exp: "normal"},
		{kind: ExitKindSlow, exp: "slow"},
		{kind: ExitKindGuardFailure, exp: "guard_failure"},
		{kind: ExitKindCheckFailure, exp: "check_failure"},
		{kind: ExitKindPunt, exp: "punt"},
		{kind: ExitKindInvalid, exp: "invalid"},
		{kind: exitKindMax, exp: "invalid"},
	} {
		require.Equal(t, tc.exp, tc.kind.String())
		require.Equal(t, tc.exp != "invalid", tc.kind.Valid())
	}
}

func TestOffset(t *testing.T) {
	require.Equal(t, "bc12", Offset(12).String())
	require.Equal(t, "bc?", InvalidOffset.String())
	require.True(t, Offset(0).Valid())
	require.False(t, InvalidOffset.Valid())
}
