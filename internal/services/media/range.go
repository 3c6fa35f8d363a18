package media

import (
	"errors"
	"strconv"
	"strings"
)

var ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")

// ByteRange is an inclusive byte window.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ParseRange interprets a single-range "bytes=" header against an object of
// size bytes. partial=false means serve the whole object: no header, a
// malformed header, or several ranges. A well-formed range starting at or past
// the end yields ErrRangeNotSatisfiable.
func ParseRange(header string, size int64) (rng ByteRange, partial bool, err error) {
	rh := strings.TrimSpace(header)
	if rh == "" || !strings.HasPrefix(rh, "bytes=") {
		return ByteRange{}, false, nil
	}
	set := strings.TrimSpace(strings.TrimPrefix(rh, "bytes="))
	if set == "" || strings.Contains(set, ",") {
		return ByteRange{}, false, nil
	}
	first, last, ok := strings.Cut(set, "-")
	if !ok {
		return ByteRange{}, false, nil
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		n, perr := strconv.ParseInt(last, 10, 64)
		if perr != nil || n <= 0 {
			return ByteRange{}, false, nil
		}
		if size <= 0 {
			return ByteRange{}, false, ErrRangeNotSatisfiable
		}
		if n > size {
			n = size
		}
		return ByteRange{Start: size - n, End: size - 1}, true, nil
	}

	start, perr := strconv.ParseInt(first, 10, 64)
	if perr != nil || start < 0 {
		return ByteRange{}, false, nil
	}
	end := size - 1
	if last != "" {
		end, perr = strconv.ParseInt(last, 10, 64)
		if perr != nil || end < start {
			return ByteRange{}, false, nil
		}
	}
	if start >= size {
		return ByteRange{}, false, ErrRangeNotSatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return ByteRange{Start: start, End: end}, true, nil
}
