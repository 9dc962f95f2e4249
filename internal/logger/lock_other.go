//go:build !unix

package logger

// lockFile is a no-op where flock is unavailable; the in-process mutex
// still serializes writers within one process.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
