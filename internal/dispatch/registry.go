// Package dispatch implements the request dispatcher of spec.md §4.9: a
// category-to-subcategory routing table of handler coroutines, each bound
// at startup to the server-wide singletons (config, session manager,
// connection pool collaborators, caches, activity log) it needs, so every
// handler depends only on its request-scoped Request plus those bound
// singletons. Grounded on the teacher's internal/protocol/nfs dispatch
// tables (dispatch.go, adapter/nfs/dispatch_nfs.go): a package-level map
// keyed by procedure number, each entry naming a handler function and
// whether it requires authentication, built once rather than a long
// switch statement.
package dispatch

import (
	"context"
	"time"

	"github.com/keelfs/keeld/internal/activitylog"
	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/config"
	"github.com/keelfs/keeld/internal/fileops"
	"github.com/keelfs/keeld/internal/permission"
	"github.com/keelfs/keeld/internal/session"
	"github.com/keelfs/keeld/internal/storagecache"
	"github.com/keelfs/keeld/internal/tlscred"
	"github.com/keelfs/keeld/internal/wire"
)

// FileRegistrar is the subset of internal/store/filestore's SQL-facing API
// the dispatcher needs for CREATE/DELETE/size-tracking of the files table,
// kept local to avoid importing filestore (and, through it, pgx) directly
// — the same local-interface DI pattern internal/session and
// internal/permission use for their own store seams.
type FileRegistrar interface {
	RegisterFile(ctx context.Context, owner, filename string) error
	DeregisterFile(ctx context.Context, owner, filename string) error
	UpdateFileSize(ctx context.Context, owner, filename string, size int64) error

	// FileMetadata answers INFO/FILE_METADATA. Primitive return values
	// (rather than a shared struct type) keep filestore from having to
	// import this package just to satisfy the interface.
	FileMetadata(ctx context.Context, owner, filename string) (public bool, size int64, createdAt time.Time, err error)
}

// CredentialInspector is the subset of internal/tlscred's Manager the
// dispatcher needs for INFO/SSL_CREDENTIALS, kept local so a fake can
// stand in for tests without bootstrapping a real certificate.
type CredentialInspector interface {
	Fingerprint() (string, error)
	Ledger() ([]tlscred.LedgerEntry, error)
}

// Registry is the server-wide singleton bundle every handler is bound to.
// internal/server constructs one at startup and passes it to each
// connection's Dispatch call; Registry itself holds no per-connection
// state.
type Registry struct {
	Config     *config.Config
	Sessions   *session.Manager
	Files      *fileops.FileOps
	Registrar  FileRegistrar
	Perms       *permission.Engine
	Activity    *activitylog.Flusher
	Storage     *storagecache.Cache
	Creds       CredentialInspector
	HeaderWidth int
}

// New builds a Registry bound to the given singletons, per §4.9's "binds
// server-wide singletons into each subhandler from a registry at startup."
func New(cfg *config.Config, sessions *session.Manager, files *fileops.FileOps, registrar FileRegistrar, perms *permission.Engine, activity *activitylog.Flusher, storage *storagecache.Cache, creds CredentialInspector) *Registry {
	return &Registry{
		Config:      cfg,
		Sessions:    sessions,
		Files:       files,
		Registrar:   registrar,
		Perms:       perms,
		Activity:    activity,
		Storage:     storage,
		Creds:       creds,
		HeaderWidth: cfg.Network.HeaderWidth,
	}
}

// Request is the fully-parsed, category-specific view of one wire
// exchange: the dispatcher has already read and JSON-decoded the header,
// optional auth, and raw body bytes before calling Dispatch.
type Request struct {
	Header     *wire.Header
	Auth       *wire.Auth
	RawBody    []byte
	ClientAddr string
}

// Response is what internal/server marshals back onto the wire: a code,
// optional description, and an optional body value (one of wire's
// category-specific body types, or a dispatch-local struct for INFO/AUTH
// payloads).
type Response struct {
	Code        codes.Code
	Description string
	Body        any
	Partial     []byte

	// Filename is set by FILE_OP/PERMISSION handlers purely for activity
	// log enrichment; it is never marshaled onto the wire.
	Filename string
}

// handlerFunc is the signature every category/subcategory entry in the
// routing table implements (mirrors the teacher's nfsProcedureHandler:
// request-scoped inputs in, a structured result and an error out).
type handlerFunc func(ctx context.Context, reg *Registry, req *Request) (*Response, error)

// entry pairs a handler with whether it requires an authenticated
// session, mirroring the teacher's nfsProcedure{Name, Handler, NeedsAuth}.
type entry struct {
	Name      string
	Handler   handlerFunc
	NeedsAuth bool
}
