//go:build !windows

package service

import (
	"fmt"
	"syscall"
)

// DiskUsage reports the size of the filesystem holding dir and the space
// available to unprivileged users on it.
func DiskUsage(dir string) (total, free int64, err error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(dir, &fs); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", dir, err)
	}
	return int64(fs.Blocks) * int64(fs.Bsize), int64(fs.Bavail) * int64(fs.Bsize), nil
}
