package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestGitHub_VerifySignature(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	header := http.Header{"X-Hub-Signature-256": []string{sign("s3cr3t", body)}}

	assert.True(t, GitHub{}.VerifySignature("s3cr3t", body, header))
	assert.False(t, GitHub{}.VerifySignature("wrong", body, header))

	empty := http.Header{}
	assert.False(t, GitHub{}.VerifySignature("s3cr3t", body, empty))
}

func TestGitHub_IsPushEvent(t *testing.T) {
	assert.True(t, GitHub{}.IsPushEvent(http.Header{"X-Github-Event": []string{"push"}}))
	assert.False(t, GitHub{}.IsPushEvent(http.Header{"X-Github-Event": []string{"pull_request"}}))
}

func TestGitHub_ParsePush(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main","after":"deadbeef","repository":{"full_name":"acme/widgets"}}`)
	header := http.Header{"X-Github-Delivery": []string{"delivery-123"}}

	push, err := GitHub{}.ParsePush(body, header)
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", push.Repo)
	assert.Equal(t, "main", push.Ref)
	assert.Equal(t, "deadbeef", push.After)
	assert.Equal(t, "delivery-123", push.DeliveryID)
}

func TestGitHub_ParsePush_Malformed(t *testing.T) {
	_, err := GitHub{}.ParsePush([]byte("not json"), http.Header{})
	assert.Error(t, err)
}
