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

// GitHub implements Provider for GitHub's push webhook, matching the
// teacher's webhook_handler.go: X-Hub-Signature-256 is
// "sha256=" + hex(hmac_sha256(secret, body)), checked in constant time.
type GitHub struct{}

func (GitHub) Name() string { return "github" }

func (GitHub) VerifySignature(secret string, body []byte, header http.Header) bool {
	sig := header.Get("X-Hub-Signature-256")
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (GitHub) IsPushEvent(header http.Header) bool {
	return header.Get("X-GitHub-Event") == "push"
}

type githubPushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (GitHub) ParsePush(body []byte, header http.Header) (Push, error) {
	var payload githubPushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Push{}, errors.New("malformed github push payload")
	}
	return Push{
		Repo:       payload.Repository.FullName,
		Ref:        strings.TrimPrefix(payload.Ref, "refs/heads/"),
		After:      payload.After,
		DeliveryID: header.Get("X-GitHub-Delivery"),
	}, nil
}
