package task

import (
	"os"
	"time"
)

// flagPollInterval is how often Wait probes for the flag file.
const flagPollInterval = 20 * time.Millisecond

// Flag is a binary, process-shareable signal backed by a file. The parent
// and the worker coordinate purely through the file's presence, so either
// side may be a foreign process.
type Flag struct {
	path string
}

func newFlag(path string) *Flag { return &Flag{path: path} }

// Path returns the backing file path, suitable for handing to a worker via
// its environment.
func (f *Flag) Path() string { return f.path }

// Set raises the flag by creating the backing file.
func (f *Flag) Set() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	return file.Close()
}

// Clear lowers the flag. Removing an absent file is not an error.
func (f *Flag) Clear() {
	_ = os.Remove(f.path)
}

// IsSet reports whether the flag is currently raised.
func (f *Flag) IsSet() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Wait polls until the flag is raised or timeout elapses. It returns true
// when the flag was observed set.
func (f *Flag) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if f.IsSet() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(flagPollInterval)
	}
}
