package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/socketbroker/socketbroker/message"
)

type testKind byte

const (
	testKindEcho testKind = 1
	testKindPing testKind = 2
)

func freeTestPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// rawTLSServer starts a bare tls.Listener requiring client certs, so client
// package tests don't depend on the server package.
func rawTLSServer(t *testing.T, ca *testCA, dir string, port int) net.Listener {
	t.Helper()
	certFile, keyFile := ca.issueLeaf(t, dir, "server", []string{"127.0.0.1"})
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(ca.cert)

	ln, err := tls.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port), &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	})
	require.NoError(t, err)
	return ln
}

func newTestClient(t *testing.T, opts Options[testKind]) (*ClientEndpoint[testKind], *testCA, string, int) {
	t.Helper()
	dir := t.TempDir()
	ca := newTestCA(t)
	caFile := ca.writeFile(t, dir)
	certFile, keyFile := ca.issueLeaf(t, dir, "client", nil)
	port := freeTestPort(t)

	opts.Host = "127.0.0.1"
	opts.Port = uint16(port)
	opts.CertFile = certFile
	opts.KeyFile = keyFile
	opts.CAFile = caFile

	endpoint, err := New[testKind](opts)
	require.NoError(t, err)
	return endpoint, ca, dir, port
}

func TestClientConnectsAndSends(t *testing.T) {
	received := make(chan message.Message[testKind], 1)
	endpoint, ca, dir, port := newTestClient(t, Options[testKind]{
		OnMessageReceived: func(msg message.Message[testKind]) { received <- msg },
	})

	ln := rawTLSServer(t, ca, dir, port)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		in, err := message.Decode[testKind](conn)
		if err != nil {
			return
		}
		_ = message.Encode[testKind](conn, in)
	}()

	endpoint.Connect(ctx)
	endpoint.HandleMessages(ctx)
	defer endpoint.Disconnect()

	deadline := time.Now().Add(2 * time.Second)
	for !endpoint.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	out := message.New[testKind](testKindEcho)
	require.NoError(t, message.Push(&out, uint32(11)))
	endpoint.Send(out)

	select {
	case msg := <-received:
		var v uint32
		require.NoError(t, message.Pop(&msg, &v))
		require.Equal(t, uint32(11), v)
	case <-ctx.Done():
		t.Fatal("client never received the echoed message")
	}
}

func TestHeartbeatSendsPulseFrames(t *testing.T) {
	endpoint, ca, dir, port := newTestClient(t, Options[testKind]{
		Heartbeat:         true,
		HeartbeatID:       testKindPing,
		HeartbeatInterval: 50 * time.Millisecond,
	})

	ln := rawTLSServer(t, ca, dir, port)
	defer ln.Close()

	pulses := make(chan message.Message[testKind], 4)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msg, err := message.Decode[testKind](conn)
			if err != nil {
				return
			}
			pulses <- msg
		}
	}()

	endpoint.Connect(ctx)
	defer endpoint.Disconnect()

	select {
	case msg := <-pulses:
		require.Equal(t, testKindPing, msg.Header.ID)
	case <-ctx.Done():
		t.Fatal("no heartbeat pulse observed")
	}
}

func TestSendWithoutConnectionIsDropped(t *testing.T) {
	endpoint, _, _, _ := newTestClient(t, Options[testKind]{})
	require.False(t, endpoint.IsConnected())
	endpoint.Send(message.New[testKind](testKindEcho)) // must not panic
}
