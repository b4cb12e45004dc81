package helpers

import (
	"bufio"
	"bytes"
	"net/http"
)

// MockHTTP is http.RoundTripper for tests.
// Fun takes precedence, then Err, then raw Header+Body response.
type MockHTTP struct {
	Fun    func(*http.Request) (*http.Response, error)
	Header []byte
	Body   []byte
	Err    error
}

var _ http.RoundTripper = &MockHTTP{}

func (m *MockHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	if m.Fun != nil {
		return m.Fun(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return MockResponse(req, m.Header, m.Body)
}

// MockResponse parses raw header (default 200 OK) and body into response for req.
func MockResponse(req *http.Request, header, body []byte) (*http.Response, error) {
	if header == nil {
		header = []byte("HTTP/1.0 200 OK\r\nContent-Type: application/json\r\n\r\n")
	}
	rb := make([]byte, 0, len(header)+len(body))
	rb = append(rb, header...)
	rb = append(rb, body...)
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(rb)), req)
}
