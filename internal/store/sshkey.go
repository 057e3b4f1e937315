package store

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// SSHKeyPath returns the private key file of an instance.
func (s *Store) SSHKeyPath(vmid string) string {
	return filepath.Join(s.InstanceDir(vmid), "ssh-key")
}

// SSHPubKeyPath returns the public key file of an instance.
func (s *Store) SSHPubKeyPath(vmid string) string {
	return filepath.Join(s.InstanceDir(vmid), "ssh-key.pub")
}

// PrepareSSHKey generates a fresh ed25519 key pair for one instance and
// returns the authorized_keys line, which gets injected into the guest
// through an smbios credential.
func (s *Store) PrepareSSHKey(vmid string) ([]byte, error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}

	pemBlock, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(s.SSHKeyPath(vmid), pem.EncodeToMemory(pemBlock), 0600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("convert public key: %w", err)
	}
	line := ssh.MarshalAuthorizedKey(sshPub)
	// MarshalAuthorizedKey ends with a newline; splice the comment in.
	line = append(line[:len(line)-1], []byte(" qemu-compose-"+vmid+"\n")...)

	if err := os.WriteFile(s.SSHPubKeyPath(vmid), line, 0644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}
	return line, nil
}
