package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapMatchesSentinel(t *testing.T) {
	cause := errors.New("mac verification failed")
	err := Wrap(ErrBadPassphrase, "load pkcs12", cause)

	require.ErrorIs(t, err, ErrBadPassphrase)
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrMalformedContainer)
	assert.Equal(t, "load pkcs12: BadPassphrase: mac verification failed", err.Error())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{Wrap(ErrInvalidPageIndex, "stamp", nil), KindInput},
		{Wrap(ErrReservedSlotOverflow, "sign", nil), KindStructural},
		{Wrap(ErrKeyMismatch, "sign", nil), KindCrypto},
		{Wrap(ErrExternalToolFailure, "qpdf", nil), KindExternalTool},
		{fmt.Errorf("outer: %w", Wrap(ErrUnparseablePDF, "parse", nil)), KindStructural},
		{errors.New("plain"), KindUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.kind, KindOf(tt.err), tt.err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("pipeline: %w", Wrapf(ErrNoPrivateKey, "load", "container holds %d certs", 2))
	assert.Equal(t, "NoPrivateKey", CodeOf(err))
	assert.Equal(t, "", CodeOf(errors.New("x")))
	assert.Equal(t, "InputError", KindInput.String())
}
