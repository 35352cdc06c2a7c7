package definition

import "time"

func nowUnix() int64 {
	return time.Now().Unix()
}

func monotonicNanos() int64 {
	return time.Now().UnixNano()
}
