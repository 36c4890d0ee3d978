package main

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"wasmregistry/pkg/signer"
)

func newKeygenCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a signing key and print its account address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, addr, err := signer.GenerateKey()
			if err != nil {
				return err
			}
			if out != "" {
				if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
					return fmt.Errorf("create key directory: %w", err)
				}
				if err := os.WriteFile(out, []byte(signer.EncodeKey(key)+"\n"), 0o600); err != nil {
					return fmt.Errorf("write key: %w", err)
				}
			}
			result := map[string]string{"address": addr.String()}
			if out == "" {
				result["key"] = signer.EncodeKey(key)
			} else {
				result["path"] = out
			}
			return a.print(result)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the key to this file instead of printing it")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the CLI configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the current settings to the config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfgFile
			if path == "" {
				path = defaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			buf, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := os.WriteFile(path, buf, 0o600); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			return a.print(map[string]string{"path": path})
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return yaml.NewEncoder(a.out).Encode(a.cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

// readKey loads a signing key: either the hex seed written by keygen or an
// unencrypted OpenSSH ed25519 private key.
func readKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("-----BEGIN")) {
		return signer.DecodeKey(strings.TrimSpace(string(raw)))
	}

	parsed, err := ssh.ParseRawPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}
	switch k := parsed.(type) {
	case ed25519.PrivateKey:
		return k, nil
	case *ed25519.PrivateKey:
		return *k, nil
	default:
		return nil, fmt.Errorf("ssh key is %T, want ed25519", parsed)
	}
}
