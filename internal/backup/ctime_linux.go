//go:build linux

package backup

import (
	"os"
	"syscall"
	"time"
)

// changeTime returns the inode change time, falling back to the modification time.
func changeTime(info os.FileInfo) time.Time {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
}
