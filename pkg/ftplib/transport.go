package ftplib

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// Transport is the FTP contract workers and the directory walker rely on.
// Everything below it (connect, login, optional TLS upgrade, SIZE,
// offset-based RETR, streamed binary receive, LIST, close) is the external
// collaborator the spec names but does not itself define; github.com/
// jlaffaye/ftp is the concrete implementation, the same library the
// original codebase's FTP adapter used.
type Transport interface {
	Connect(ctx context.Context) error
	Login(user, pass string) error
	Size(remotePath string) (int64, error)
	RetrFrom(remotePath string, offset int64) (io.ReadCloser, error)
	List(remotePath string) ([]string, error)
	Close() error
}

// FTPTransport implements Transport over github.com/jlaffaye/ftp.
type FTPTransport struct {
	addr   string
	useTLS bool
	conn   *ftp.ServerConn
}

// NewFTPTransport returns a Transport for host:port. useTLS selects AUTH TLS
// (ftps-style) on both the control and data channel.
func NewFTPTransport(host string, port int, useTLS bool) *FTPTransport {
	return &FTPTransport{addr: fmt.Sprintf("%s:%d", host, port), useTLS: useTLS}
}

// Connect dials the control connection and, if useTLS was requested,
// upgrades it via AUTH TLS. A server that rejects AUTH TLS surfaces
// ErrTLSNotSupported as a permanent error, per the spec's S6 scenario.
func (t *FTPTransport) Connect(ctx context.Context) error {
	dialOpts := []ftp.DialOption{
		ftp.DialWithTimeout(RecvTimeout),
		ftp.DialWithContext(ctx),
	}
	if t.useTLS {
		host := t.addr
		if h, _, err := net.SplitHostPort(t.addr); err == nil {
			host = h
		}
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		}))
	}

	conn, err := ftp.Dial(t.addr, dialOpts...)
	if err != nil {
		if t.useTLS && looksLikeTLSRejection(err) {
			return NewPermanentError("connect", ErrTLSNotSupported)
		}
		return classifyFTPError("connect", err)
	}
	t.conn = conn
	return nil
}

// Login authenticates the control connection. Failure is always permanent:
// there is no value in reallocating a segment after a bad password.
func (t *FTPTransport) Login(user, pass string) error {
	if err := t.conn.Login(user, pass); err != nil {
		return NewPermanentError("login", err)
	}
	return nil
}

// Size issues SIZE in binary transfer mode.
func (t *FTPTransport) Size(remotePath string) (int64, error) {
	if err := t.conn.Type(ftp.TransferTypeBinary); err != nil {
		return 0, NewPermanentError("type", err)
	}
	size, err := t.conn.FileSize(remotePath)
	if err != nil {
		return 0, classifyFTPError("size", err)
	}
	return size, nil
}

// RetrFrom issues REST <offset> then RETR, returning a stream whose Read
// calls each enforce RecvTimeout, matching the worker's per-read timeout
// requirement.
func (t *FTPTransport) RetrFrom(remotePath string, offset int64) (io.ReadCloser, error) {
	resp, err := t.conn.RetrFrom(remotePath, uint64(offset))
	if err != nil {
		return nil, classifyFTPError("retr", err)
	}
	return &timeoutReadCloser{rc: resp, timeout: RecvTimeout}, nil
}

// List returns the names of a directory's entries, or ErrNotADirectory if
// remotePath names a plain file — the directory walker's cue to stop
// recursing and download it instead.
func (t *FTPTransport) List(remotePath string) ([]string, error) {
	escaped := strings.ReplaceAll(remotePath, "[", "\\[")
	if err := t.conn.ChangeDir(escaped); err != nil {
		return nil, ErrNotADirectory
	}
	entries, err := t.conn.NameList(".")
	if err != nil {
		return nil, classifyFTPError("list", err)
	}
	return entries, nil
}

// Close quits the control connection. Safe to call on a connection that
// never successfully connected.
func (t *FTPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Quit()
}

// timeoutReadCloser wraps an io.ReadCloser so each Read call fails with a
// transient TransportError after timeout rather than blocking forever,
// since jlaffaye/ftp's data-connection Response does not expose a
// per-read deadline itself.
type timeoutReadCloser struct {
	rc      io.ReadCloser
	timeout time.Duration
}

type readResult struct {
	n   int
	err error
}

func (t *timeoutReadCloser) Read(p []byte) (int, error) {
	ch := make(chan readResult, 1)
	go func() {
		n, err := t.rc.Read(p)
		ch <- readResult{n, err}
	}()
	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.timeout):
		return 0, NewTransientError("recv", fmt.Errorf("no data after %s", t.timeout))
	}
}

func (t *timeoutReadCloser) Close() error {
	return t.rc.Close()
}

// classifyFTPError classifies FTP errors into transient or permanent: RFC
// 959 4xx codes are transient (retry by reallocating the segment), 5xx are
// permanent; bare network errors are treated as transient.
func classifyFTPError(op string, err error) *TransportError {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			return NewTransientError(op, err)
		}
		return NewPermanentError(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError(op, err)
	}
	return NewPermanentError(op, err)
}

// looksLikeTLSRejection matches the spec's rule for distinguishing a
// TLS-unsupported server from any other connect failure: a permanent error
// whose text contains "TLS".
func looksLikeTLSRejection(err error) bool {
	return !classifyFTPError("connect", err).IsTransient() && strings.Contains(err.Error(), "TLS")
}
