package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cyberinferno/go-echoserver/echoclient"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6000", "echo server address")
	message := flag.String("message", "ping", "message to send; empty sends nothing and half-closes")
	timeout := flag.Duration("timeout", 5*time.Second, "overall exchange timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := echoclient.New(echoclient.DefaultConfig(*addr))
	reply, err := client.Exchange(ctx, []byte(*message))
	if err != nil {
		fmt.Fprintf(os.Stderr, "echoprobe: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", reply.Data)
	if reply.ClosedByPeer {
		fmt.Fprintf(os.Stderr, "echoprobe: %d bytes in %s, closed by server\n", len(reply.Data), reply.Elapsed)
	}
	if string(reply.Data) != *message {
		os.Exit(2)
	}
}
