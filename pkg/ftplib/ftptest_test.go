package ftplib

import (
	"crypto/tls"
	"fmt"
	"net"
	"testing"
	"time"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/spf13/afero"
)

// testFTPDriver implements ftpserver.MainDriver over an in-memory
// afero.Fs, grounded on the teacher's protocol_ftp_test.go mock server.
type testFTPDriver struct {
	fs       afero.Fs
	listener net.Listener
}

func (d *testFTPDriver) GetSettings() (*ftpserver.Settings, error) {
	return &ftpserver.Settings{Listener: d.listener, IdleTimeout: 30}, nil
}

func (d *testFTPDriver) ClientConnected(_ ftpserver.ClientContext) (string, error) {
	return "test FTP server", nil
}

func (d *testFTPDriver) ClientDisconnected(_ ftpserver.ClientContext) {}

func (d *testFTPDriver) AuthUser(_ ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	if user == "anonymous" && pass == "password" {
		return afero.NewBasePathFs(d.fs, "/"), nil
	}
	return nil, fmt.Errorf("invalid credentials")
}

func (d *testFTPDriver) GetTLSConfig() (*tls.Config, error) {
	return nil, nil
}

// startMockFTPServer starts an in-memory FTP server pre-populated by seed,
// and returns its host/port and a cleanup func.
func startMockFTPServer(t *testing.T, seed func(fs afero.Fs)) (host string, port int, cleanup func()) {
	t.Helper()

	fs := afero.NewMemMapFs()
	if seed != nil {
		seed(fs)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	driver := &testFTPDriver{fs: fs, listener: listener}
	server := ftpserver.NewFtpServer(driver)

	go func() {
		_ = server.ListenAndServe()
	}()
	time.Sleep(50 * time.Millisecond)

	addr := listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, func() { server.Stop() }
}
