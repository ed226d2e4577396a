//go:build darwin

package tool

import (
	"os"
	"syscall"
)

func statTimes(info os.FileInfo) (created, accessed *int64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, nil
	}
	c, _ := st.Birthtimespec.Unix()
	a, _ := st.Atimespec.Unix()
	return &c, &a
}
