package http

import "bytes"

// Request heads end with \r\n\r\n; a bare \n\n from sloppy clients is
// accepted too. Bodies are never read: every request gets the same
// response, so framing stops at the head terminator.

// ScanOverlap is how many trailing bytes a partial scan must revisit, since
// a terminator can straddle two reads.
const ScanOverlap = 3

// HeadEnd scans data for the head terminator starting at from, so bytes
// covered by an earlier call are not rescanned. It returns the index one
// past the terminator, or -1 while the head is incomplete.
//
// Resume a partial scan with from = NextScanOffset(len(data)) after more
// bytes arrive.
func HeadEnd(data []byte, from int) int {
	if from < 0 {
		from = 0
	}

	i := from
	for {
		j := bytes.IndexByte(data[i:], '\n')
		if j < 0 {
			return -1
		}
		i += j

		if i >= 1 && data[i-1] == '\n' {
			return i + 1
		}
		if i >= 3 && data[i-1] == '\r' && data[i-2] == '\n' && data[i-3] == '\r' {
			return i + 1
		}

		i++
	}
}

// NextScanOffset returns where the next HeadEnd call should resume after an
// incomplete scan of n buffered bytes.
func NextScanOffset(n int) int {
	if n < ScanOverlap {
		return 0
	}
	return n - ScanOverlap
}

var (
	protoHTTP10   = []byte("HTTP/1.0")
	connectionKey = []byte("connection")
	tokenClose    = []byte("close")
	tokenKeep     = []byte("keep-alive")
)

// KeepAlive reports whether the connection stays open after responding to
// the given head. HTTP/1.1 (and anything unrecognized) defaults to
// keep-alive, HTTP/1.0 to close; the first recognized Connection directive
// overrides the default.
func KeepAlive(head []byte) bool {
	line, rest := cutLine(head)
	alive := !bytes.HasSuffix(line, protoHTTP10)

	for len(rest) > 0 {
		line, rest = cutLine(rest)
		if len(line) == 0 {
			break
		}

		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		if !foldEqual(trimOWS(line[:colon]), connectionKey) {
			continue
		}

		// Connection lists comma-separated options; close and keep-alive
		// are the only ones that matter here.
		val := line[colon+1:]
		for len(val) > 0 {
			var opt []byte
			if c := bytes.IndexByte(val, ','); c >= 0 {
				opt, val = val[:c], val[c+1:]
			} else {
				opt, val = val, nil
			}

			opt = trimOWS(opt)
			if foldEqual(opt, tokenClose) {
				return false
			}
			if foldEqual(opt, tokenKeep) {
				return true
			}
		}
	}

	return alive
}

// cutLine splits data at the first newline, dropping the line break from
// the returned line.
func cutLine(data []byte) (line, rest []byte) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return data, nil
	}

	line = data[:i]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	return line, data[i+1:]
}

// trimOWS drops optional whitespace around a header token.
func trimOWS(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}

// foldEqual compares ASCII bytes case-insensitively without allocating.
func foldEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}

	return true
}
