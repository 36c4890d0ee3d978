package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscriminantsAreStable(t *testing.T) {
	want := map[Code]int{
		CodeNoSuchWasmPublished:             1,
		CodeNoSuchVersion:                   2,
		CodeWasmNameAlreadyTaken:            3,
		CodeNoSuchContractDeployed:          4,
		CodeAlreadyDeployed:                 5,
		CodeUpgradeInvokeFailed:             6,
		CodeAdminOnly:                       7,
		CodeVersionMustBeGreaterThanCurrent: 8,
		CodeInvalidName:                     9,
		CodeInvalidVersion:                  10,
		CodeHashAlreadyPublished:            11,
		CodeInitInvokeFailed:                12,
	}
	for code, n := range want {
		assert.Equal(t, n, int(code), code.String())
		assert.True(t, code.IsLedger())
	}
	assert.False(t, CodeBadRequest.IsLedger())
	assert.False(t, CodeInternal.IsLedger())
}

func TestHasCodeThroughWrapping(t *testing.T) {
	base := New(CodeNoSuchVersion, "1.2.3 not published")
	wrapped := fmt.Errorf("fetch: %w", base)

	require.True(t, HasCode(wrapped, CodeNoSuchVersion))
	require.False(t, HasCode(wrapped, CodeNoSuchWasmPublished))

	code, ok := CodeOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeNoSuchVersion, code)

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("entry point missing")
	err := Wrap(cause, CodeUpgradeInvokeFailed, "upgrade")

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, CodeUpgradeInvokeFailed))
	assert.Contains(t, err.Error(), "upgrade_invoke_failed")
	assert.Nil(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestCodeFromString(t *testing.T) {
	for code := CodeNoSuchWasmPublished; code <= CodeInitInvokeFailed; code++ {
		got, ok := CodeFromString(code.String())
		require.True(t, ok)
		assert.Equal(t, code, got)
	}
	_, ok := CodeFromString("nope")
	assert.False(t, ok)
}
