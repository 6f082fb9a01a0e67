// Package codes defines the response code taxonomy shared by the server's
// dispatcher and the reference client.
//
// Every response header carries one Code. Codes are grouped by their leading
// digit: 1 is success, 0 is an intermediary (partial) result, 2 is a client
// error, 3 is a server error. The grouping lets callers make coarse
// decisions (retry? close the connection? surface to the user?) without
// switching on every mnemonic.
package codes

import "strings"

// Code is a short tagged response code of the form "<class>:<mnemonic>".
type Code string

// Class identifies the leading digit of a Code.
type Class int

const (
	ClassUnknown Class = iota
	ClassSuccess
	ClassIntermediary
	ClassClientError
	ClassServerError
)

// Success codes.
const (
	UserNew          Code = "1:unew"
	Authenticated    Code = "1:auth"
	Refreshed        Code = "1:ref"
	SessionClosed    Code = "1:bye"
	UserDeleted      Code = "1:udel"
	PasswordChanged  Code = "1:pw"
	FileCreated      Code = "1:fnew"
	Amended          Code = "1:amnd"
	ReadOK           Code = "1:read"
	FileDeleted      Code = "1:fdel"
	Publicised       Code = "1:pub"
	Hidden           Code = "1:hide"
	OwnershipShifted Code = "1:sft"
	Granted          Code = "1:gnt"
	Revoked          Code = "1:rvk"
	Heartbeat        Code = "1:hb"
	InfoResult       Code = "1:info"
)

// Intermediary codes.
const (
	PartialAmend Code = "0:a"
	PartialRead  Code = "0:r"
	Wait         Code = "0:wait"
	Retry        Code = "0:retry"
)

// Client error codes.
const (
	Malformed               Code = "2:malf"
	NotJSON                 Code = "2:njs"
	SlowStreamRate          Code = "2:rlex"
	UnsupportedOperation    Code = "2:unsp"
	OperationalConflict     Code = "2:opcf"
	OperationContested      Code = "2:opct"
	InvalidHeaderSemantic   Code = "2:ihs"
	InvalidHeaderValues     Code = "2:ihv"
	UserAuthenticationError Code = "2:auth"
	InvalidAuthSemantic     Code = "2:ias"
	InvalidAuthData         Code = "2:iad"
	ExpiredAuthToken        Code = "2:exp"
	DuplicateLogin          Code = "2:dup"
	Stopped                 Code = "2:stp"
	Banned                  Code = "2:ban"
	InvalidBodySemantic     Code = "2:ibs"
	InvalidBodyValues       Code = "2:ibv"
	FileNotFound            Code = "2:nf"
	FileConflict            Code = "2:fcnt"
	Conflict                Code = "2:cnf"
	FileJustDeleted         Code = "2:df"
	InsufficientPermissions Code = "2:perm"
	ClientErrorUnknown      Code = "2:?"
)

// FileContested is the client error raised when a file lock cannot be
// acquired within file_contention_timeout. It shares its mnemonic with
// FileConflict in the distilled wire vocabulary ("2:fcnt") but is kept as a
// distinct Go identifier because the two arise from unrelated causes
// (lock contention vs. create-on-existing).
const FileContested = FileConflict

// Server error codes.
const (
	ServerErrorGeneric Code = "3:*"
	ServerErrorUnknown Code = "3:?"
	ServerTimeout      Code = "3:t"
	ServerShutdown     Code = "3:s"
	DatabaseFailure    Code = "3:db"
	OutOfMemory        Code = "3:mem"
	OutOfDisk          Code = "3:disk"
)

// Class returns the class of the code based on its leading digit.
func (c Code) Class() Class {
	switch {
	case strings.HasPrefix(string(c), "1:"):
		return ClassSuccess
	case strings.HasPrefix(string(c), "0:"):
		return ClassIntermediary
	case strings.HasPrefix(string(c), "2:"):
		return ClassClientError
	case strings.HasPrefix(string(c), "3:"):
		return ClassServerError
	default:
		return ClassUnknown
	}
}

func (c Code) IsSuccess() bool      { return c.Class() == ClassSuccess }
func (c Code) IsIntermediary() bool { return c.Class() == ClassIntermediary }
func (c Code) IsClientError() bool  { return c.Class() == ClassClientError }
func (c Code) IsServerError() bool  { return c.Class() == ClassServerError }

// Error implements the error interface so a Code can be returned directly
// where a plain error is expected (e.g. from store helpers) before being
// wrapped in a ProtocolError by the dispatcher.
func (c Code) Error() string {
	return string(c)
}
