package identity

import (
	"context"

	"github.com/charmbracelet/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// SSHSession is the part of an SSH session the provider reads.
type SSHSession interface {
	User() string
	PublicKey() ssh.PublicKey
}

// SSHProvider identifies a remote player by their public key, so the same
// key keeps the same profile across connections. Keyless sessions fall
// back to the user name.
type SSHProvider struct {
	sess SSHSession
}

// NewSSHProvider creates a provider for one session.
func NewSSHProvider(sess SSHSession) SSHProvider {
	return SSHProvider{sess: sess}
}

// Current returns the key fingerprint identity.
func (p SSHProvider) Current(context.Context) (Identity, error) {
	user := p.sess.User()
	if key := p.sess.PublicKey(); key != nil {
		return Identity{ID: "ssh:" + gossh.FingerprintSHA256(key), DisplayName: nameOr(user)}, nil
	}
	if user == "" {
		return Identity{}, ErrNoIdentity
	}
	return Identity{ID: "ssh-user:" + user, DisplayName: user}, nil
}

func nameOr(user string) string {
	if user == "" {
		return "Player"
	}
	return user
}
