package gateway

import (
	"fmt"
	"testing"

	"github.com/TheRockettek/Sandwich-Gateway/events"
	"github.com/stretchr/testify/assert"
)

func TestCloseErrorFatal(t *testing.T) {
	for _, code := range []int{events.CloseAuthenticationFailed, events.CloseInvalidIntents, events.CloseDisallowedIntents} {
		err := &CloseError{Code: code}
		assert.True(t, err.Fatal(), "code %d", code)
		assert.True(t, isFatal(err), "code %d", code)
		assert.False(t, isResumable(err), "code %d", code)
	}
}

func TestCloseErrorResumable(t *testing.T) {
	err := &CloseError{Code: 4008, Reason: "rate limited"}
	assert.False(t, err.Fatal())
	assert.False(t, isFatal(err))
	assert.True(t, isResumable(err))
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, isFatal(fmt.Errorf("%w: bad url", ErrParsingURL)))
	assert.True(t, isFatal(fmt.Errorf("%w: chan int", ErrSerializing)))
	assert.False(t, isFatal(ErrEventStreamEnded))

	assert.True(t, isResumable(ErrEventStreamEnded))
	assert.True(t, isResumable(errResume))
	assert.False(t, isResumable(errReconnect))
	assert.False(t, isResumable(ErrConnecting))
}
