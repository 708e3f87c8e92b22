// Command relay_demo runs a standalone relay.Hub, the library's sample
// broker that re-broadcasts every message to every admitted peer except its
// sender. Mirrors original_source's ServerRelay main(): construct, Start,
// loop forever. Certificate/key/CA paths and the whitelist are supplied on
// the command line — provisioning and config loading stay external
// concerns per spec.md §1.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/socketbroker/socketbroker/examples/relay"
	"github.com/socketbroker/socketbroker/logging"
	"github.com/socketbroker/socketbroker/tlsconfig"
)

// MessageKind is the demo's identifier type; a real application defines its
// own, per spec.md §1's "concrete message-identifier enumeration ... is an
// external collaborator" boundary.
type MessageKind byte

func main() {
	port := flag.Uint("port", 9443, "TCP port to listen on")
	certFile := flag.String("cert", "", "server certificate PEM path")
	keyFile := flag.String("key", "", "server private key PEM path")
	caFile := flag.String("ca", "", "CA bundle PEM path")
	allow := flag.String("allow", "127.0.0.1", "comma-separated list of admitted remote IPs")
	flag.Parse()

	if *certFile == "" || *keyFile == "" || *caFile == "" {
		fmt.Fprintln(os.Stderr, "relay_demo: -cert, -key, and -ca are required")
		os.Exit(2)
	}

	hub, err := relay.New[MessageKind](relay.Options[MessageKind]{
		Port: uint16(*port),
		Paths: tlsconfig.Paths{
			CertFile: *certFile,
			KeyFile:  *keyFile,
			CAFile:   *caFile,
		},
		Allow:  strings.Split(*allow, ","),
		Logger: logging.NewModuleLogger("relay_demo"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "relay_demo:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := hub.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "relay_demo:", err)
		os.Exit(1)
	}
	fmt.Printf("relay_demo: listening on :%d\n", *port)

	<-ctx.Done()
	fmt.Println("relay_demo: shutting down")
	if err := hub.Stop(); err != nil {
		fmt.Fprintln(os.Stderr, "relay_demo: stop:", err)
	}
}
