// Package sshconn opens the remote session a deploy runs over: an SSH
// connection to the target host and an SFTP client on top of it.
package sshconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pkg/sftp"
	"go.uber.org/multierr"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"k8s.io/klog/v2"

	"site-deploy/conf"
	"site-deploy/syncerr"
)

// defaultIdentities are tried, in order, when neither a key file nor a
// password is configured.
var defaultIdentities = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// Session is an authenticated SSH connection with an SFTP client.
type Session struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

// SFTP returns the session's SFTP client.
func (s *Session) SFTP() *sftp.Client {
	return s.sftp
}

// Close closes the SFTP client and then the SSH connection.
func (s *Session) Close() error {
	var err error
	if s.sftp != nil {
		err = multierr.Append(err, s.sftp.Close())
	}
	if s.ssh != nil {
		err = multierr.Append(err, ignoreClosed(s.ssh.Close()))
	}
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Dial connects to target as target.Username and starts the SFTP subsystem.
// Failures are classified as syncerr ConnectionError or AuthError.
func Dial(ctx context.Context, target conf.Target, auth conf.Auth, timeout time.Duration) (*Session, error) {
	methods, cleanup, err := authMethods(auth)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	hostKeys, err := hostKeyCallback(auth)
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            target.Username,
		Auth:            methods,
		Timeout:         timeout,
		HostKeyCallback: hostKeys,
	}

	addr := target.Addr()
	klog.V(2).Infof("dialing %s as %s", addr, target.Username)

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, syncerr.Connection("dial "+addr, err)
	}
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, classifyHandshake(addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	sshClient := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, syncerr.Connection("start sftp subsystem on "+addr, err)
	}

	klog.V(2).Infof("connected to %s", addr)
	return &Session{ssh: sshClient, sftp: sftpClient}, nil
}

// classifyHandshake splits handshake failures into rejected credentials or
// host keys and everything else.
func classifyHandshake(addr string, err error) error {
	var keyErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	switch {
	case errors.As(err, &keyErr), errors.As(err, &revoked), strings.Contains(err.Error(), "knownhosts:"):
		return syncerr.Auth("verify host key of "+addr, err)
	case strings.Contains(err.Error(), "unable to authenticate"):
		return syncerr.Auth("authenticate to "+addr, err)
	default:
		return syncerr.Connection("handshake with "+addr, err)
	}
}

// authMethods builds the SSH auth methods for auth. The returned cleanup
// releases the agent connection once the handshake is done.
func authMethods(auth conf.Auth) ([]ssh.AuthMethod, func(), error) {
	var (
		methods []ssh.AuthMethod
		signers []ssh.Signer
		closers []func() error
	)
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if auth.PrivateKeyFile != "" {
		signer, err := loadSigner(auth.PrivateKeyFile)
		if err != nil {
			return nil, cleanup, syncerr.Auth("load private key "+auth.PrivateKeyFile, err)
		}
		signers = append(signers, signer)
	}

	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if auth.Agent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				klog.V(2).Infof("ssh-agent unavailable at %s: %v", sock, err)
			} else {
				closers = append(closers, conn.Close)
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}

	if auth.PrivateKeyFile == "" && auth.Passwd == "" {
		var defaults []ssh.Signer
		for _, name := range defaultIdentities {
			p := filepath.Join(xdg.Home, ".ssh", name)
			signer, err := loadSigner(p)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					klog.V(2).Infof("skipping identity %s: %v", p, err)
				}
				continue
			}
			defaults = append(defaults, signer)
		}
		if len(defaults) > 0 {
			methods = append(methods, ssh.PublicKeys(defaults...))
		}
	}

	if auth.Passwd != "" {
		methods = append(methods, ssh.Password(auth.Passwd))
	}

	if len(methods) == 0 {
		return nil, cleanup, syncerr.Auth("select auth method", errors.New("no private key, agent or password available"))
	}
	return methods, cleanup, nil
}

func loadSigner(keyFile string) (ssh.Signer, error) {
	privateKeyBytes, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", keyFile, err)
	}
	return signer, nil
}

func hostKeyCallback(auth conf.Auth) (ssh.HostKeyCallback, error) {
	if auth.InsecureIgnoreHostKey {
		klog.Warning("host key verification is disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(auth.KnownHostsFile)
	if err != nil {
		return nil, syncerr.Auth("load known hosts "+auth.KnownHostsFile, err)
	}
	return callback, nil
}
