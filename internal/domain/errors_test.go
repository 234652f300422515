package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_WithCauseStillMatchesSentinel(t *testing.T) {
	cause := errors.New("unusable topic label")
	err := fmt.Errorf("classify: %w", ErrMalformedLLMOutput.WithCause(cause))

	assert.ErrorIs(t, err, ErrMalformedLLMOutput)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, ErrCodeUpstream, ErrorCode(err))
	assert.Nil(t, ErrMalformedLLMOutput.Err)
}

func TestDomainError_Message(t *testing.T) {
	assert.Equal(t, "[NOT_FOUND] cluster not found", ErrClusterNotFound.Error())
	assert.Equal(t, "[VALIDATION_ERROR] invalid cursor: bad base64",
		NewDomainErrorWithCause(ErrCodeValidation, "invalid cursor", errors.New("bad base64")).Error())
}

func TestErrorCode_NonDomain(t *testing.T) {
	assert.Equal(t, ErrCodeInternalError, ErrorCode(errors.New("boom")))
}
