// Package sshtransport implements a single authenticated secure-shell
// session shared across multiplexed channels: one-shot command exec,
// byte-level interactive processes, port forwarding, and SFTP file
// transfer, with lazy connection and multi-hop jump support.
package sshtransport

import (
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/beauremus/pacsys/pacsyserr"
)

// Method selects how Auth authenticates to a hop.
type Method int

const (
	MethodPassword Method = iota
	MethodPublicKey
	MethodGSSAPI
)

// Auth carries the credentials and target principal consulted at connect
// time. Exactly one of Password/PrivateKeyPEM/GSSAPI fields is used,
// selected by Method.
type Auth struct {
	Method Method

	Username string
	Password string

	PrivateKeyPEM []byte
	Passphrase    string // non-empty if PrivateKeyPEM is encrypted

	// HostKeyCallback validates the remote host key. Defaults to
	// ssh.InsecureIgnoreHostKey if nil — callers handling real
	// credentials should always set this explicitly.
	HostKeyCallback ssh.HostKeyCallback
}

// clientConfig builds the per-hop *ssh.ClientConfig for this Auth.
func (a Auth) clientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	switch a.Method {
	case MethodPassword:
		authMethods = append(authMethods, ssh.Password(a.Password))
	case MethodPublicKey:
		var signer ssh.Signer
		var err error
		if a.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(a.PrivateKeyPEM, []byte(a.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(a.PrivateKeyPEM)
		}
		if err != nil {
			return nil, &pacsyserr.AuthenticationError{Message: "failed to parse private key", Cause: err}
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	case MethodGSSAPI:
		// GSSAPI/Kerberos key exchange is negotiated at the transport
		// level (ssh.ClientConfig.GSSAPIClient); the host credential
		// cache supplies the ticket, so no AuthMethod is added here.
	default:
		return nil, &pacsyserr.AuthenticationError{Message: fmt.Sprintf("unknown auth method %d", a.Method)}
	}

	hostKeyCallback := a.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            a.Username,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	}, nil
}
