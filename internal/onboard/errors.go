package onboard

import "fmt"

// ConnectionError reports that the management session to a device could not
// be established: unreachable host, rejected credentials, or no command
// prompt within the connect timeout.
type ConnectionError struct {
	Device string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Device, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ApplyError reports that staging the command set into the device's
// candidate configuration failed. The running configuration is untouched.
type ApplyError struct {
	Device string
	Line   string
	Err    error
}

func (e *ApplyError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("staging configuration on %s failed at %q: %v", e.Device, e.Line, e.Err)
	}
	return fmt.Sprintf("staging configuration on %s failed: %v", e.Device, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// CommitError reports a failed commit. StateUnknown is set when the
// connection dropped mid-commit: the device may or may not be running the
// new configuration and needs manual verification.
type CommitError struct {
	Device       string
	StateUnknown bool
	Err          error
}

func (e *CommitError) Error() string {
	if e.StateUnknown {
		return fmt.Sprintf("commit on %s failed, device state unknown (verify manually): %v", e.Device, e.Err)
	}
	return fmt.Sprintf("commit on %s failed: %v", e.Device, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
