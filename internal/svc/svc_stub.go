//go:build !windows

package svc

import "errors"

var errWindowsOnly = errors.New("svc: service control is only available on windows")

// Install is only available on Windows.
func Install(binPath string) error { return errWindowsOnly }

// Uninstall is only available on Windows.
func Uninstall() error { return errWindowsOnly }

// RunAsService is only available on Windows.
func RunAsService(run RunFunc) error { return errWindowsOnly }

// IsWindowsService always reports false off Windows.
func IsWindowsService() bool { return false }
