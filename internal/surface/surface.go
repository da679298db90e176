// Package surface defines the boundary to the external messaging service.
// Everything vendor-specific stays behind Surface; callers only see pages,
// classified outcomes and the two error classes below.
package surface

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gosuda/parley/internal/domain"
)

var (
	// ErrUnauthorized means the surface rejected the session itself. It is the
	// only error that justifies deleting a stored blob.
	ErrUnauthorized = errors.New("surface: session rejected") //nolint:gochecknoglobals // sentinel error

	// ErrElementMissing means an element required by an operation did not
	// appear within the bounded wait. The session is still considered good.
	ErrElementMissing = errors.New("surface: required element missing") //nolint:gochecknoglobals // sentinel error
)

// Page is the state of the external surface after an interaction.
type Page struct {
	URL     string             `json:"url"`
	Body    string             `json:"body"`
	Session domain.SessionBlob `json:"session,omitempty"`
	// State is the surface-owned continuation for a pending challenge.
	State []byte `json:"state,omitempty"`
}

type OperationKind string

const (
	OpSendMessage OperationKind = "send_message"
	OpRenameGroup OperationKind = "rename_group"
	OpListThreads OperationKind = "list_threads"
)

// Operation is a single side-effecting (or listing) call.
type Operation struct {
	Kind   OperationKind `json:"kind"`
	Target string        `json:"target,omitempty"`
	Text   string        `json:"text,omitempty"`
}

// Reply carries the raw result of a successful operation.
type Reply struct {
	Output json.RawMessage `json:"output,omitempty"`
}

// Surface is implemented by the automation gateway client and by test fakes.
type Surface interface {
	Login(ctx context.Context, cred domain.Credential) (*Page, error)
	SubmitChallenge(ctx context.Context, state []byte, code string) (*Page, error)
	// Probe performs one cheap authenticated read.
	Probe(ctx context.Context, blob domain.SessionBlob) error
	Perform(ctx context.Context, blob domain.SessionBlob, op Operation) (*Reply, error)
}
