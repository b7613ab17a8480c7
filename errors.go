package condoor

import "github.com/alexpitcher/condoor/internal/cerrors"

// The typed exception set (spec.md section 6: "One class Connection plus
// the FSM, action, and typed exception set"). These are plain aliases, not
// wrappers, so errors.As against condoor.ConnectionError works identically
// whether the error was raised here or in internal/protocol, internal/
// hoporch, internal/platform, or internal/discovery — none of which import
// this package, avoiding the import cycle a concrete re-implementation
// here would create.
type (
	GeneralError                  = cerrors.GeneralError
	InvalidHopInfoError           = cerrors.InvalidHopInfoError
	ConnectionError               = cerrors.ConnectionError
	ConnectionAuthenticationError = cerrors.ConnectionAuthenticationError
	ConnectionTimeoutError        = cerrors.ConnectionTimeoutError
	CommandError                  = cerrors.CommandError
	CommandSyntaxError            = cerrors.CommandSyntaxError
	CommandTimeoutError           = cerrors.CommandTimeoutError
)
