package notifier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// mailClient is the subset of *smtp.Client used for one delivery attempt.
type mailClient interface {
	Extension(ext string) (bool, string)
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// dialFunc opens an SMTP session to host using profile p.
type dialFunc func(ctx context.Context, host string, p Profile, timeout time.Duration) (mailClient, error)

// dialSMTP connects with the transport security of p. The timeout bounds the
// TCP connect and, as a deadline, the whole session.
func dialSMTP(ctx context.Context, host string, p Profile, timeout time.Duration) (mailClient, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	addr := net.JoinHostPort(host, strconv.Itoa(p.Port))

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting deadline: %w", err)
	}

	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}

	if p.Security == SecurityImplicit {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake with %s: %w", addr, err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP greeting from %s: %w", addr, err)
	}

	if p.Security == SecurityStartTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS with %s: %w", addr, err)
		}
	}

	return client, nil
}

// chooseAuth picks the mechanism for the AUTH extension parameter advertised
// by the server. PLAIN is preferred, then LOGIN, then CRAM-MD5. When nothing
// usable is advertised PLAIN is tried anyway.
func chooseAuth(advertised, user, password, host string) smtp.Auth {
	mechs := make(map[string]bool)
	for _, m := range strings.Fields(advertised) {
		mechs[strings.ToUpper(m)] = true
	}
	switch {
	case mechs["PLAIN"]:
		return smtp.PlainAuth("", user, password, host)
	case mechs["LOGIN"]:
		return &loginAuth{username: user, password: password, host: host}
	case mechs["CRAM-MD5"]:
		return smtp.CRAMMD5Auth(user, password)
	default:
		return smtp.PlainAuth("", user, password, host)
	}
}

// loginAuth implements the LOGIN mechanism, which some providers offer
// without PLAIN. Like smtp.PlainAuth it only sends credentials over TLS or
// to localhost.
type loginAuth struct {
	username string
	password string
	host     string
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS && !isLocalhost(server.Name) {
		return "", nil, errors.New("unencrypted connection")
	}
	if server.Name != a.host {
		return "", nil, errors.New("wrong host name")
	}
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(string(fromServer))) {
	case "username:", "username":
		return []byte(a.username), nil
	case "password:", "password":
		return []byte(a.password), nil
	default:
		return nil, fmt.Errorf("unexpected LOGIN challenge %q", fromServer)
	}
}

func isLocalhost(name string) bool {
	return name == "localhost" || name == "127.0.0.1" || name == "::1"
}
