package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorBuilderAndFormat(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrTransientProvider, "ollama request failed").
		WithProvider("ollama").
		WithRetryable(true).
		WithCause(cause)

	assert.Equal(t, ErrTransientProvider, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "ollama", err.Provider)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "TRANSIENT_PROVIDER")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestErrorHelpersOnForeignErrors(t *testing.T) {
	plain := errors.New("plain")
	assert.False(t, IsRetryable(plain))
	assert.Equal(t, ErrorCode(""), GetErrorCode(plain))
}

func TestProviderTypeOpposite(t *testing.T) {
	assert.Equal(t, ProviderNIM, ProviderOllama.Opposite())
	assert.Equal(t, ProviderOllama, ProviderNIM.Opposite())
	assert.True(t, ProviderOllama.Valid())
	assert.False(t, ProviderType("cloud").Valid())
}

func TestTaskRequiredCapabilities(t *testing.T) {
	assert.Nil(t, (&Task{}).RequiredCapabilities())
	assert.Equal(t, []string{"coding"}, (&Task{Type: "coding"}).RequiredCapabilities())
}
