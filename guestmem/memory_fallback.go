//go:build !unix && !windows

package guestmem

// mapAnon falls back to heap memory when the platform has no page protection.
// Protect then only validates its arguments.
func mapAnon(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func protect([]byte, bool) error { return nil }

func unmap([]byte) error { return nil }
