package wire

import "regexp"

// FilenamePattern constrains subject_file values.
var FilenamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\- /]{0,254}$`)

// CursorBit is the bitfield accompanying file operations. It is
// authoritative over the boolean conveniences (CursorKeepalive,
// EndOperation) on FileBody when both are present.
type CursorBit uint32

const (
	// CursorKeepalive keeps the per-(path,identity) handle cached after
	// this request.
	CursorKeepalive CursorBit = 1 << iota
	// PostOperationCursorKeepalive retains the handle even on the
	// operation-closing request.
	PostOperationCursorKeepalive
	// PurgeCursor closes and evicts the cached handle unconditionally.
	PurgeCursor
)

func (c CursorBit) Has(bit CursorBit) bool { return c&bit == bit }

// FileBody carries the fields used by FILE_OP requests (CREATE, READ,
// WRITE, OVERWRITE, APPEND, DELETE).
type FileBody struct {
	SubjectFile      string    `json:"subject_file"`
	SubjectFileOwner string    `json:"subject_file_owner"`
	CursorPosition   *int64    `json:"cursor_position,omitempty"`
	ChunkSize        *int      `json:"chunk_size,omitempty"`
	WriteData        HexBytes  `json:"write_data,omitempty"`
	CursorKeepalive  bool      `json:"cursor_keepalive"`
	EndOperation     bool      `json:"end_operation"`
	CursorBitfield   CursorBit `json:"cursor_bitfield"`
}

// EffectiveKeepalive resolves CursorKeepalive against CursorBitfield,
// preferring the bitfield per the spec's stated precedence.
func (b *FileBody) EffectiveKeepalive() bool {
	if b.CursorBitfield != 0 {
		return b.CursorBitfield.Has(CursorKeepalive)
	}
	return b.CursorKeepalive
}

// EffectivePurge resolves whether the handle should be evicted unconditionally.
func (b *FileBody) EffectivePurge() bool {
	return b.CursorBitfield.Has(PurgeCursor)
}

// EffectivePostKeepalive resolves the closing-chunk retain/close decision.
func (b *FileBody) EffectivePostKeepalive() bool {
	if b.CursorBitfield != 0 {
		return b.CursorBitfield.Has(PostOperationCursorKeepalive)
	}
	return false
}

// MaxEffectDuration is the upper bound on PermissionBody.EffectDuration,
// roughly 31 days in seconds.
const MaxEffectDuration = 31 * 24 * 3600

// PermissionBody carries the fields used by PERMISSION requests (GRANT,
// REVOKE, HIDE, PUBLICISE, TRANSFER).
type PermissionBody struct {
	SubjectFile      string `json:"subject_file"`
	SubjectFileOwner string `json:"subject_file_owner"`
	SubjectUser      string `json:"subject_user,omitempty"`
	EffectDuration   *int64 `json:"effect_duration,omitempty"`
}

// InfoBody carries a subcategory-dependent resource identifier for INFO
// queries (permission, file metadata, user metadata, storage usage, SSL
// credentials).
type InfoBody struct {
	ResourceOwner string `json:"resource_owner,omitempty"`
	ResourceName  string `json:"resource_name,omitempty"`
	ResourceUser  string `json:"resource_user,omitempty"`
}

// AuthBody carries AUTH-category fields that don't fit the Auth
// component's password-XOR-token shape. CHANGE_PASSWORD and DELETE both
// authenticate with a bearer token in Auth; CHANGE_PASSWORD supplies its
// replacement password in NewPassword, DELETE supplies the current
// password to re-verify in Password.
type AuthBody struct {
	Password    string `json:"password,omitempty"`
	NewPassword string `json:"new_password,omitempty"`
}
