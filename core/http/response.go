package http

import "strconv"

// BuildResponse renders a complete 200 response for body. The whole wire
// image is built once at startup and written verbatim per request, so the
// hot path never touches headers.
func BuildResponse(body []byte, keepAlive bool) []byte {
	connection := "close"
	if keepAlive {
		connection = "keep-alive"
	}

	resp := make([]byte, 0, 128+len(body))
	resp = append(resp, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: "...)
	resp = strconv.AppendInt(resp, int64(len(body)), 10)
	resp = append(resp, "\r\nConnection: "...)
	resp = append(resp, connection...)
	resp = append(resp, "\r\n\r\n"...)
	resp = append(resp, body...)

	return resp
}
