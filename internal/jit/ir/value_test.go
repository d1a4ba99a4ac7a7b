package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	v := Value(5).setType(TypeInt)
	require.True(t, v.Valid())
	require.Equal(t, ValueID(5), v.ID())
	require.Equal(t, TypeInt, v.Type())

	narrowed := v.setType(TypeStaticStr)
	require.Equal(t, TypeStaticStr, narrowed.Type())
	require.True(t, narrowed.Same(v))
	require.NotEqual(t, v, narrowed)

	require.False(t, ValueInvalid.Valid())
}

func TestValue_Format(t *testing.T) {
	b := NewBuilder()
	v := b.(*builder).allocateValue(TypeDbl)
	require.Equal(t, "v0", v.Format(b))
	require.Equal(t, "v0:Dbl", v.formatWithType(b))
	b.AnnotateValue(v, "fp")
	require.Equal(t, "fp", v.Format(b))
	require.Equal(t, "fp:Dbl", v.formatWithType(b))
}
