package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	base := Connectivity("llm.chat", context.DeadlineExceeded)
	wrapped := fmt.Errorf("analyzing message 7: %w", base)

	assert.Equal(t, KindConnectivity, KindOf(wrapped))
	assert.True(t, IsConnectivity(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindIntegrity))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "urgency must be a number", Message(Validationf("llm.validate", "urgency must be a number")))
	assert.Equal(t, "endpoint unreachable: context deadline exceeded",
		Message(Connectivity("llm.chat", context.DeadlineExceeded)))
}

func TestErrorString(t *testing.T) {
	err := NotFoundf("store.GetMessage", "message %d not found", 12)
	assert.Equal(t, "not_found: store.GetMessage: message 12 not found", err.Error())
}
