package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Gitea implements Provider for a self-hosted Gitea instance's push
// webhook (SPEC_FULL.md §4.1 expansion, grounded on
// original_source/crates/common/src/gitea_api.rs's repository.full_name
// field naming). Gitea sends the raw hex HMAC-SHA256 digest with no
// "sha256=" prefix.
type Gitea struct{}

func (Gitea) Name() string { return "gitea" }

func (Gitea) VerifySignature(secret string, body []byte, header http.Header) bool {
	sig := header.Get("X-Gitea-Signature")
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (Gitea) IsPushEvent(header http.Header) bool {
	return header.Get("X-Gitea-Event") == "push"
}

type giteaPushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (Gitea) ParsePush(body []byte, header http.Header) (Push, error) {
	var payload giteaPushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Push{}, errors.New("malformed gitea push payload")
	}
	return Push{
		Repo:       payload.Repository.FullName,
		Ref:        strings.TrimPrefix(payload.Ref, "refs/heads/"),
		After:      payload.After,
		DeliveryID: header.Get("X-Gitea-Delivery"),
	}, nil
}
