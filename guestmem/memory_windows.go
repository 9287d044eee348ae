//go:build windows

package guestmem

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/joshuapare/gpucoherency/internal/pagebits"
)

func mapAnon(size int) ([]byte, error) {
	if host := uint64(windows.Getpagesize()); host > pagebits.PageSize || pagebits.PageSize%host != 0 {
		return nil, ErrPageSize
	}
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func protect(b []byte, writable bool) error {
	prot := uint32(windows.PAGE_READONLY)
	if writable {
		prot = windows.PAGE_READWRITE
	}
	var old uint32
	return windows.VirtualProtect(uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)), prot, &old)
}

func unmap(b []byte) error {
	return windows.VirtualFree(uintptr(unsafe.Pointer(&b[0])), 0, windows.MEM_RELEASE)
}
