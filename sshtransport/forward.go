package sshtransport

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/beauremus/pacsys/pacsyserr"
)

// Tunnel is a local TCP listener shuttling every accepted connection
// to one fixed remote address through the SSH client.
type Tunnel struct {
	listener net.Listener
	done     chan struct{}
}

// LocalAddr is the address the tunnel is listening on.
func (t *Tunnel) LocalAddr() net.Addr { return t.listener.Addr() }

// Close stops accepting new connections. In-flight shuttles drain on
// their own once their underlying connections close.
func (t *Tunnel) Close() error {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	return t.listener.Close()
}

// Forward opens a local listener on localAddr (e.g. "127.0.0.1:0" for
// an ephemeral port) and forwards every accepted connection to
// remoteHost:remotePort through the SSH tunnel.
func (c *Client) Forward(ctx context.Context, localAddr, remoteHost string, remotePort int) (*Tunnel, error) {
	client, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", localAddr)
	if err != nil {
		return nil, &pacsyserr.SSHError{Message: "failed to listen locally", Cause: err}
	}

	tunnel := &Tunnel{listener: listener, done: make(chan struct{})}
	remoteAddr := fmt.Sprintf("%s:%d", remoteHost, remotePort)

	go func() {
		for {
			local, err := listener.Accept()
			if err != nil {
				return
			}
			go shuttle(client, local, remoteAddr)
		}
	}()

	return tunnel, nil
}

func shuttle(client interface {
	Dial(network, addr string) (net.Conn, error)
}, local net.Conn, remoteAddr string) {
	defer local.Close()

	remote, err := client.Dial("tcp", remoteAddr)
	if err != nil {
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() { io.Copy(remote, local); done <- struct{}{} }()
	go func() { io.Copy(local, remote); done <- struct{}{} }()
	<-done
}
