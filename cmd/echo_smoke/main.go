// Command echo_smoke wires a ServerEndpoint and a ClientEndpoint together
// in-process, over an ephemeral self-signed CA, and exercises a round trip:
// connect, send, echo, observe. It exists to exercise the library end to
// end the way cmd/protocol_test and cmd/simple_pool_test exercise transport
// end to end, not as a unit test.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/socketbroker/socketbroker/client"
	"github.com/socketbroker/socketbroker/logging"
	"github.com/socketbroker/socketbroker/message"
	"github.com/socketbroker/socketbroker/server"
)

type MessageKind byte

const KindEcho MessageKind = 1

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "echo_smoke:", err)
		os.Exit(1)
	}
	fmt.Println("echo_smoke: ok")
}

func run() error {
	tmp, err := os.MkdirTemp("", "echo_smoke")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	ca, caKey, err := issueCA()
	if err != nil {
		return fmt.Errorf("issue CA: %w", err)
	}
	caFile, err := writePEM(tmp, "ca.crt", ca.Raw)
	if err != nil {
		return err
	}

	serverCertFile, serverKeyFile, err := issueLeaf(tmp, "server", ca, caKey, []string{"127.0.0.1"})
	if err != nil {
		return fmt.Errorf("issue server leaf: %w", err)
	}
	clientCertFile, clientKeyFile, err := issueLeaf(tmp, "client", ca, caKey, nil)
	if err != nil {
		return fmt.Errorf("issue client leaf: %w", err)
	}

	port, err := freePort()
	if err != nil {
		return err
	}

	logger := logging.NewModuleLogger("echo_smoke")

	echoed := make(chan message.Message[MessageKind], 1)

	srv, err := server.New[MessageKind](server.Options[MessageKind]{
		Port:            uint16(port),
		CertFile:        serverCertFile,
		KeyFile:         serverKeyFile,
		CAFile:          caFile,
		OnClientConnect: func(string) bool { return true },
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("construct server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer srv.Stop()

	go func() {
		for ctx.Err() == nil {
			srv.IncomingMessages().Wait(ctx)
			if ctx.Err() != nil {
				return
			}
			for {
				owned, ok := srv.IncomingMessages().PopFront()
				if !ok {
					break
				}
				if owned.Sender != nil {
					owned.Sender.Send(owned.Message)
				}
			}
		}
	}()

	endpoint, err := client.New[MessageKind](client.Options[MessageKind]{
		Host:     "127.0.0.1",
		Port:     uint16(port),
		CertFile: clientCertFile,
		KeyFile:  clientKeyFile,
		CAFile:   caFile,
		Logger:   logger,
		OnMessageReceived: func(msg message.Message[MessageKind]) {
			echoed <- msg
		},
	})
	if err != nil {
		return fmt.Errorf("construct client: %w", err)
	}
	endpoint.Connect(ctx)
	endpoint.HandleMessages(ctx)
	defer endpoint.Disconnect()

	deadline := time.Now().Add(5 * time.Second)
	for !endpoint.IsConnected() {
		if time.Now().After(deadline) {
			return fmt.Errorf("client never connected")
		}
		time.Sleep(20 * time.Millisecond)
	}

	out := message.New[MessageKind](KindEcho)
	if err := message.Push(&out, uint32(42)); err != nil {
		return fmt.Errorf("push payload: %w", err)
	}
	endpoint.Send(out)

	select {
	case back := <-echoed:
		var v uint32
		if err := message.Pop(&back, &v); err != nil {
			return fmt.Errorf("pop payload: %w", err)
		}
		if v != 42 {
			return fmt.Errorf("echo mismatch: got %d want 42", v)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for echo")
	}
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

func issueCA() (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "echo_smoke CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

func issueLeaf(dir, name string, ca *x509.Certificate, caKey *ecdsa.PrivateKey, ips []string) (certFile, keyFile string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", err
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	for _, ip := range ips {
		tmpl.IPAddresses = append(tmpl.IPAddresses, net.ParseIP(ip))
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
	if err != nil {
		return "", "", err
	}
	certFile, err = writePEM(dir, name+".crt", der)
	if err != nil {
		return "", "", err
	}
	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", "", err
	}
	keyFile, err = writePEMBlock(dir, name+".key", "EC PRIVATE KEY", keyBytes)
	if err != nil {
		return "", "", err
	}
	return certFile, keyFile, nil
}

func writePEM(dir, filename string, der []byte) (string, error) {
	return writePEMBlock(dir, filename, "CERTIFICATE", der)
}

func writePEMBlock(dir, filename, blockType string, der []byte) (string, error) {
	path := dir + "/" + filename
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return "", err
	}
	return path, nil
}
