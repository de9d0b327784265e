//go:build !windows
// +build !windows

package output

// enableANSI reports ANSI support. Unix terminals handle escape sequences
// without any mode switching.
func enableANSI() bool {
	return true
}
