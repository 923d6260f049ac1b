//go:build !windows

package reactor

import "errors"

// OpenDevice is only available on Windows; on other platforms it always
// returns an error. Tests there use in-memory devices instead (FakeDevice
// for the Reactor, the root package's MockDevice for the Runtime).
func OpenDevice(path string) (Device, error) {
	return nil, errors.New("reactor: OpenDevice requires a windows build")
}
