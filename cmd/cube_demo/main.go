// Command cube_demo runs a standalone cube.Device, the library's sample
// heartbeat-emitting client. Mirrors original_source's Cube example
// main(): connect, then drain received messages forever. Certificate/key/CA
// paths stay command-line flags — provisioning and config loading are
// external concerns per spec.md §1.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/socketbroker/socketbroker/examples/cube"
	"github.com/socketbroker/socketbroker/logging"
	"github.com/socketbroker/socketbroker/message"
	"github.com/socketbroker/socketbroker/tlsconfig"
)

// MessageKind is the demo's identifier type; a real application defines its
// own, per spec.md §1's "concrete message-identifier enumeration ... is an
// external collaborator" boundary. ServerPing (0) must match whatever the
// broker this device talks to uses for its heartbeat bounce.
type MessageKind byte

const serverPing MessageKind = 0

func main() {
	host := flag.String("host", "127.0.0.1", "broker host")
	port := flag.Uint("port", 9443, "broker port")
	certFile := flag.String("cert", "", "client certificate PEM path")
	keyFile := flag.String("key", "", "client private key PEM path")
	caFile := flag.String("ca", "", "CA bundle PEM path")
	flag.Parse()

	if *certFile == "" || *keyFile == "" || *caFile == "" {
		fmt.Fprintln(os.Stderr, "cube_demo: -cert, -key, and -ca are required")
		os.Exit(2)
	}

	device, err := cube.New[MessageKind](cube.Options[MessageKind]{
		Host: *host,
		Port: uint16(*port),
		Paths: tlsconfig.Paths{
			CertFile: *certFile,
			KeyFile:  *keyFile,
			CAFile:   *caFile,
		},
		HeartbeatID: serverPing,
		Logger:      logging.NewModuleLogger("cube_demo"),
		OnMessage: func(msg message.Message[MessageKind]) {
			fmt.Printf("cube_demo: received identifier %v (%d body bytes)\n", msg.Header.ID, msg.Header.BodyLength)
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "cube_demo:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device.Connect(ctx)
	fmt.Println("cube_demo: connecting...")

	<-ctx.Done()
	fmt.Println("cube_demo: shutting down")
	device.Disconnect()
}
