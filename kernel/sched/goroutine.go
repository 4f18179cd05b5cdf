package sched

import (
	"bytes"
	"runtime"
	"strconv"
)

// getGoroutineID extracts the calling goroutine's id by parsing the header
// line of runtime.Stack, exactly as the reference reactor's
// getGoroutineID does (Go exposes no public API for this; the format
// "goroutine 123 [running]:" has been stable for many releases). Used only
// by assertBatonHolder to record the baton holder's id; nothing in the
// scheduler's correctness depends on it.
func getGoroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	i := bytes.IndexByte(buf, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
