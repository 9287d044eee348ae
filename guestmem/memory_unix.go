//go:build unix

package guestmem

import (
	"golang.org/x/sys/unix"

	"github.com/joshuapare/gpucoherency/internal/pagebits"
)

func mapAnon(size int) ([]byte, error) {
	if host := uint64(unix.Getpagesize()); host > pagebits.PageSize || pagebits.PageSize%host != 0 {
		return nil, ErrPageSize
	}
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func protect(b []byte, writable bool) error {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mprotect(b, prot)
}

func unmap(b []byte) error {
	return unix.Munmap(b)
}
