// Package exitcodes contains the constants representing possible portalshell exit error codes.
package exitcodes

// ExitCode is just a type representing a process exit code for portalshell
type ExitCode uint8

// list of exit codes used by portalshell
const (
	InvalidConfig     ExitCode = 104
	ExternalAbort     ExitCode = 105
	CannotStartServer ExitCode = 106
	GoPanic           ExitCode = 111
)
