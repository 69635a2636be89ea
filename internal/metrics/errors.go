package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// Status labels for failures that carried no protocol status of their own.
const (
	StatusDeadlineExceeded = "Context deadline exceeded"
	StatusCanceled         = "Context canceled"
	StatusTimeout          = "Timeout"
	StatusConnRefused      = "Connection refused"
	StatusConnReset        = "Connection reset"
	StatusConnClosed       = "Connection closed"
	StatusDNS              = "DNS error"
	StatusTLS              = "TLS error"
	StatusNetwork          = "Network error"
	StatusRequestURL       = "Request URL error"
	StatusError            = "Error"
)

// ErrorStatus returns the status label of a transport-level failure. The
// most specific class found anywhere in err's chain wins; unclassified
// errors are labelled "Error".
func ErrorStatus(err error) string {
	if err == nil {
		return ""
	}
	var (
		dnsErr  *net.DNSError
		opErr   *net.OpError
		urlErr  *url.Error
		netErr  net.Error
		recErr  tls.RecordHeaderError
		authErr x509.UnknownAuthorityError
		hostErr x509.HostnameError
		certErr x509.CertificateInvalidError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return StatusDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return StatusCanceled
	case errors.Is(err, syscall.ECONNREFUSED):
		return StatusConnRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return StatusConnReset
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return StatusConnClosed
	case errors.As(err, &dnsErr):
		return StatusDNS
	case errors.As(err, &recErr), errors.As(err, &authErr), errors.As(err, &hostErr), errors.As(err, &certErr):
		return StatusTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		return StatusTimeout
	case errors.As(err, &opErr):
		return StatusNetwork
	case errors.As(err, &urlErr):
		return StatusRequestURL
	}
	return StatusError
}
