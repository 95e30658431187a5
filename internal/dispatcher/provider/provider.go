// Package provider decodes and authenticates Git-provider webhook
// deliveries (spec §4.1). Each provider exposes just enough surface to
// verify a signature and extract (repo, ref, after, delivery-id) from a
// push-equivalent event; anything else is an "unsupported event" no-op.
package provider

import "net/http"

// Push is the minimal push-event payload the dispatcher needs (spec §4.1
// step 3): repo.full_name, ref, after, and the provider's delivery id
// when it sends one. Repo and After are validated as required by the
// dispatcher before a Job is built from them (empty values mean the
// provider sent a push event shaped differently than expected).
type Push struct {
	Repo       string `validate:"required"`
	Ref        string
	After      string `validate:"required"`
	DeliveryID string
}

// Provider is implemented once per Git host. Providers never retry a
// rejected signature or a malformed payload (spec §7 class 1).
type Provider interface {
	Name() string

	// VerifySignature checks body against the signature carried in
	// header, using secret. A missing or malformed signature is always a
	// mismatch, never a panic.
	VerifySignature(secret string, body []byte, header http.Header) bool

	// IsPushEvent reports whether header names a push-equivalent event;
	// false means the caller should no-op with 204 (spec §4.1 step 3).
	IsPushEvent(header http.Header) bool

	// ParsePush decodes body into a Push. DeliveryID on the header takes
	// priority; ParsePush also reads it off the header since the header
	// name is provider-specific.
	ParsePush(body []byte, header http.Header) (Push, error)
}

// Registry resolves a provider name (the `<provider>` path segment in
// POST /webhooks/<provider>) to a Provider.
type Registry map[string]Provider

// NewRegistry returns the registry with every provider this build
// supports wired in (SPEC_FULL.md §4.1 expansion: github + gitea).
func NewRegistry() Registry {
	return Registry{
		"github": GitHub{},
		"gitea":  Gitea{},
	}
}

func (r Registry) Lookup(name string) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}
