package client

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookURL(t *testing.T) {
	id, token, err := ParseWebhookURL("https://discord.com/api/webhooks/123456789012345678/abc-def_ghi")
	require.NoError(t, err)
	assert.Equal(t, int64(123456789012345678), id)
	assert.Equal(t, "abc-def_ghi", token)
}

func TestParseWebhookURLExtraSegments(t *testing.T) {
	id, token, err := ParseWebhookURL("https://canary.discord.com/api/webhooks/42/tok/slack")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "tok", token)
}

func TestParseWebhookURLWithoutToken(t *testing.T) {
	id, token, err := ParseWebhookURL("https://discord.com/api/webhooks/42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Empty(t, token)
}

func TestParseWebhookURLInvalid(t *testing.T) {
	for _, raw := range []string{
		"https://discord.com/api/webhooks",
		"https://discord.com/api/channels/42",
		"https://discord.com/webhooks/42/tok",
		"https://discord.com/api/webhooks/notanid/tok",
	} {
		_, _, err := ParseWebhookURL(raw)
		assert.True(t, errors.Is(err, ErrSegmentMissing), "url %s", raw)
	}
}
