//go:build windows

package service

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// DiskUsage reports the size of the volume holding dir and the space
// available to the caller on it.
func DiskUsage(dir string) (total, free int64, err error) {
	ptr, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, 0, err
	}

	var avail, size, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &avail, &size, &totalFree); err != nil {
		return 0, 0, fmt.Errorf("GetDiskFreeSpaceEx %s: %w", dir, err)
	}
	return int64(size), int64(avail), nil
}
