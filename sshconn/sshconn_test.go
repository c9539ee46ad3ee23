package sshconn

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"site-deploy/conf"
	"site-deploy/internal/sshtest"
	"site-deploy/syncerr"
)

const testTimeout = 5 * time.Second

func TestDialPassword(t *testing.T) {
	server := sshtest.Start(t, "deploy", "secret")

	session, err := Dial(context.Background(), server.Target("/srv/www"), server.Auth(), testTimeout)
	require.NoError(t, err)
	defer session.Close()

	client := session.SFTP()
	require.NoError(t, client.MkdirAll("/srv/www"))
	info, err := client.Stat("/srv/www")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDialKnownHosts(t *testing.T) {
	server := sshtest.Start(t, "deploy", "secret")

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(knownHosts, []byte(server.KnownHostsLine()+"\n"), 0o600))

	auth := conf.Auth{Passwd: "secret", KnownHostsFile: knownHosts}
	session, err := Dial(context.Background(), server.Target("/srv/www"), auth, testTimeout)
	require.NoError(t, err)
	assert.NoError(t, session.Close())
}

func TestDialHostKeyMismatch(t *testing.T) {
	server := sshtest.Start(t, "deploy", "secret")

	otherKey, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherPub, err := ssh.NewPublicKey(otherKey)
	require.NoError(t, err)

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{server.Addr}, otherPub)
	require.NoError(t, os.WriteFile(knownHosts, []byte(line+"\n"), 0o600))

	auth := conf.Auth{Passwd: "secret", KnownHostsFile: knownHosts}
	_, err = Dial(context.Background(), server.Target("/srv/www"), auth, testTimeout)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerr.ErrAuth), "got %v", err)
}

func TestDialWrongPassword(t *testing.T) {
	server := sshtest.Start(t, "deploy", "secret")

	auth := conf.Auth{Passwd: "wrong", InsecureIgnoreHostKey: true}
	_, err := Dial(context.Background(), server.Target("/srv/www"), auth, testTimeout)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindAuth, syncerr.KindOf(err), "got %v", err)
}

func TestDialUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().(*net.TCPAddr)
	require.NoError(t, listener.Close())

	target := conf.Target{Username: "deploy", Host: "127.0.0.1", Port: addr.Port, Path: "/srv/www"}
	auth := conf.Auth{Passwd: "secret", InsecureIgnoreHostKey: true}

	_, err = Dial(context.Background(), target, auth, testTimeout)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerr.ErrConnection), "got %v", err)
}

func TestDialCancelled(t *testing.T) {
	server := sshtest.Start(t, "deploy", "secret")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, server.Target("/srv/www"), server.Auth(), testTimeout)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindConnection, syncerr.KindOf(err))
}

func TestAuthMethods(t *testing.T) {
	dir := t.TempDir()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	keyFile := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(block), 0o600))

	t.Run("key and password", func(t *testing.T) {
		methods, cleanup, err := authMethods(conf.Auth{PrivateKeyFile: keyFile, Passwd: "secret"})
		require.NoError(t, err)
		defer cleanup()
		assert.Len(t, methods, 2)
	})

	t.Run("unreadable key", func(t *testing.T) {
		_, cleanup, err := authMethods(conf.Auth{PrivateKeyFile: filepath.Join(dir, "missing")})
		defer cleanup()
		require.Error(t, err)
		assert.Equal(t, syncerr.KindAuth, syncerr.KindOf(err))
	})

	t.Run("garbage key", func(t *testing.T) {
		garbage := filepath.Join(dir, "garbage")
		require.NoError(t, os.WriteFile(garbage, []byte("not a key"), 0o600))
		_, cleanup, err := authMethods(conf.Auth{PrivateKeyFile: garbage})
		defer cleanup()
		require.Error(t, err)
		assert.Equal(t, syncerr.KindAuth, syncerr.KindOf(err))
	})

	t.Run("password only", func(t *testing.T) {
		methods, cleanup, err := authMethods(conf.Auth{Passwd: "secret"})
		require.NoError(t, err)
		defer cleanup()
		assert.Len(t, methods, 1)
	})
}

func TestHostKeyCallbackMissingFile(t *testing.T) {
	_, err := hostKeyCallback(conf.Auth{KnownHostsFile: filepath.Join(t.TempDir(), "known_hosts")})
	require.Error(t, err)
	assert.Equal(t, syncerr.KindAuth, syncerr.KindOf(err))
}
