package entity

// Identity is the client-facing appearance of a request.
type Identity struct {
	UserAgent string
	ProxyURL  string
}
