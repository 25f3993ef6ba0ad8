//go:build !unix

package lock

import "os"

// probe is a no-op; on Windows the read-write open already fails while
// another process holds the file.
func probe(*os.File) error { return nil }
