package dispatch

import "github.com/keelfs/keeld/internal/wire"

// authTable, fileTable, permTable, and infoTable are the per-category
// subcategory maps of §4.9's routing table. They are package-level and
// built once at init time, following the teacher's
// NfsDispatchTable/MountDispatchTable convention (dispatch.go, §"Procedure
// Dispatch Tables").
var (
	authTable map[wire.Subcategory]*entry
	fileTable map[wire.Subcategory]*entry
	permTable map[wire.Subcategory]*entry
	infoTable map[wire.Subcategory]*entry
)

func init() {
	initAuthTable()
	initFileTable()
	initPermTable()
	initInfoTable()
}

func initAuthTable() {
	authTable = map[wire.Subcategory]*entry{
		wire.SubAuthRegister:       {Name: "REGISTER", Handler: handleRegister, NeedsAuth: false},
		wire.SubAuthLogin:          {Name: "LOGIN", Handler: handleLogin, NeedsAuth: false},
		wire.SubAuthRefresh:        {Name: "REFRESH", Handler: handleRefresh, NeedsAuth: false},
		wire.SubAuthChangePassword: {Name: "CHANGE_PASSWORD", Handler: handleChangePassword, NeedsAuth: true},
		wire.SubAuthDelete:         {Name: "DELETE", Handler: handleDeleteUser, NeedsAuth: true},
		wire.SubAuthLogout:         {Name: "LOGOUT", Handler: handleLogout, NeedsAuth: true},
	}
}

func initFileTable() {
	fileTable = map[wire.Subcategory]*entry{
		wire.SubFileCreate:    {Name: "CREATE", Handler: handleFileCreate, NeedsAuth: true},
		wire.SubFileRead:      {Name: "READ", Handler: handleFileRead, NeedsAuth: true},
		wire.SubFileWrite:     {Name: "WRITE", Handler: handleFileWrite, NeedsAuth: true},
		wire.SubFileOverwrite: {Name: "OVERWRITE", Handler: handleFileOverwrite, NeedsAuth: true},
		wire.SubFileAppend:    {Name: "APPEND", Handler: handleFileAppend, NeedsAuth: true},
		wire.SubFileDelete:    {Name: "DELETE", Handler: handleFileDelete, NeedsAuth: true},
	}
}

func initPermTable() {
	permTable = map[wire.Subcategory]*entry{
		wire.SubPermGrant:      {Name: "GRANT", Handler: handleGrant, NeedsAuth: true},
		wire.SubPermRevoke:     {Name: "REVOKE", Handler: handleRevoke, NeedsAuth: true},
		wire.SubPermHide:       {Name: "HIDE", Handler: handleHide, NeedsAuth: true},
		wire.SubPermPublicise:  {Name: "PUBLICISE", Handler: handlePublicise, NeedsAuth: true},
		wire.SubPermTransfer:   {Name: "TRANSFER", Handler: handleTransfer, NeedsAuth: true},
	}
}

func initInfoTable() {
	infoTable = map[wire.Subcategory]*entry{
		wire.SubInfoHeartbeatEcho:  {Name: "HEARTBEAT_ECHO", Handler: handleInfoHeartbeatEcho, NeedsAuth: false},
		wire.SubInfoPermission:    {Name: "PERMISSION", Handler: handleInfoPermission, NeedsAuth: true},
		wire.SubInfoFileMetadata:  {Name: "FILE_METADATA", Handler: handleInfoFileMetadata, NeedsAuth: true},
		wire.SubInfoUserMetadata:  {Name: "USER_METADATA", Handler: handleInfoUserMetadata, NeedsAuth: true},
		wire.SubInfoStorageUsage:  {Name: "STORAGE_USAGE", Handler: handleInfoStorageUsage, NeedsAuth: true},
		wire.SubInfoSSLCredentials: {Name: "SSL_CREDENTIALS", Handler: handleInfoSSLCredentials, NeedsAuth: false},
	}
}

// roleMask isolates the role bits a PERMISSION/GRANT subcategory ORs in
// alongside SubPermGrant.
const roleMask = wire.RoleReader | wire.RoleEditor | wire.RoleManager | wire.RoleOwner

// lookupEntry resolves category/subcategory to a routing table entry,
// masking off the modifier bits each category defines (INFO's verbose
// bit, PERMISSION/GRANT's role bits) before the map lookup.
func lookupEntry(category wire.Category, subcategory wire.Subcategory) (*entry, bool) {
	switch category {
	case wire.CategoryAuth:
		e, ok := authTable[subcategory]
		return e, ok
	case wire.CategoryFileOp:
		e, ok := fileTable[subcategory]
		return e, ok
	case wire.CategoryPermission:
		e, ok := permTable[subcategory&^roleMask]
		return e, ok
	case wire.CategoryInfo:
		e, ok := infoTable[subcategory&^wire.SubInfoVerbose]
		return e, ok
	default:
		return nil, false
	}
}
