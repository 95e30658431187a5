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

func signGitea(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestGitea_VerifySignature(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	header := http.Header{"X-Gitea-Signature": []string{signGitea("s3cr3t", body)}}

	assert.True(t, Gitea{}.VerifySignature("s3cr3t", body, header))
	assert.False(t, Gitea{}.VerifySignature("wrong", body, header))

	empty := http.Header{}
	assert.False(t, Gitea{}.VerifySignature("s3cr3t", body, empty))
}

func TestGitea_IsPushEvent(t *testing.T) {
	assert.True(t, Gitea{}.IsPushEvent(http.Header{"X-Gitea-Event": []string{"push"}}))
	assert.False(t, Gitea{}.IsPushEvent(http.Header{"X-Gitea-Event": []string{"issues"}}))
}

func TestGitea_ParsePush(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/develop","after":"cafef00d","repository":{"full_name":"acme/gadgets"}}`)
	header := http.Header{"X-Gitea-Delivery": []string{"delivery-456"}}

	push, err := Gitea{}.ParsePush(body, header)
	require.NoError(t, err)
	assert.Equal(t, "acme/gadgets", push.Repo)
	assert.Equal(t, "develop", push.Ref)
	assert.Equal(t, "cafef00d", push.After)
	assert.Equal(t, "delivery-456", push.DeliveryID)
}

func TestGitea_ParsePush_Malformed(t *testing.T) {
	_, err := Gitea{}.ParsePush([]byte("not json"), http.Header{})
	assert.Error(t, err)
}
