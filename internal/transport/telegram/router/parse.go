package router

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var ridSeq atomic.Uint64

// newReqID returns a short id: base36 millis + "-" + base36 sequence.
func newReqID() string {
	n := ridSeq.Add(1)
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + strconv.FormatUint(n, 36)
}

// splitCommand parses "/start@bot pack_a" into ("start", ["pack_a"]).
// ok is false for text that is not a command.
func splitCommand(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	name = strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)
	if name == "" {
		return "", nil, false
	}
	return name, fields[1:], true
}

// shardFor maps an identity onto one of n shards.
func shardFor(id int64, n int) int {
	if n <= 1 {
		return 0
	}
	// fibonacci hashing spreads sequential ids
	h := uint64(id) * 0x9E3779B97F4A7C15
	return int(h % uint64(n))
}
