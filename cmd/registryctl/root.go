package main

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"wasmregistry/internal/registry/models"
	"wasmregistry/pkg/client"
	"wasmregistry/pkg/signer"
)

// Config is the CLI configuration, read from YAML and REGISTRYCTL_* env.
type Config struct {
	Server   string        `mapstructure:"server" yaml:"server"`
	Keys     []string      `mapstructure:"keys" yaml:"keys,omitempty"`
	Audience string        `mapstructure:"audience" yaml:"audience,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

func defaultConfig() Config {
	return Config{
		Server:   "http://localhost:8080",
		Audience: signer.DefaultAudience,
		Timeout:  30 * time.Second,
	}
}

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     Config
	out     io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:           "registryctl",
		Short:         "Publish, deploy and upgrade artifacts on a wasm registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: ~/.config/registryctl/config.yaml)")
	pf.String("server", "", "registry server URL")
	pf.StringSlice("key", nil, "signing key file; repeat to co-sign")
	_ = a.v.BindPFlag("server", pf.Lookup("server"))
	_ = a.v.BindPFlag("keys", pf.Lookup("key"))

	root.AddCommand(
		newKeygenCmd(a),
		newConfigCmd(a),
		newWasmCmd(a),
		newContractCmd(a),
		newAdminCmd(a),
		newEventsCmd(a),
	)
	return root
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".registryctl", "config.yaml")
	}
	return filepath.Join(home, ".config", "registryctl", "config.yaml")
}

func (a *app) loadConfig() error {
	def := defaultConfig()
	a.v.SetDefault("server", def.Server)
	a.v.SetDefault("audience", def.Audience)
	a.v.SetDefault("timeout", def.Timeout)
	a.v.SetEnvPrefix("REGISTRYCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	path := a.cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	a.v.SetConfigFile(path)
	a.v.SetConfigType("yaml")
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return a.v.Unmarshal(&a.cfg)
}

func (a *app) signingKeys() ([]ed25519.PrivateKey, error) {
	keys := make([]ed25519.PrivateKey, 0, len(a.cfg.Keys))
	for _, path := range a.cfg.Keys {
		key, err := readKey(path)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", path, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (a *app) client() (*client.Client, error) {
	keys, err := a.signingKeys()
	if err != nil {
		return nil, err
	}
	return client.New(a.cfg.Server,
		client.WithSigners(keys...),
		client.WithAudience(a.cfg.Audience),
		client.WithHTTPClient(&http.Client{Timeout: a.cfg.Timeout}),
	)
}

// principal resolves an address flag, defaulting to the first signing key.
func (a *app) principal(flag, raw string) (models.Address, error) {
	if raw != "" {
		addr, err := models.ParseAddress(raw)
		if err != nil {
			return "", fmt.Errorf("--%s: %w", flag, err)
		}
		return addr, nil
	}
	keys, err := a.signingKeys()
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("--%s is required when no --key is configured", flag)
	}
	return signer.AddressOf(keys[0]), nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// optional returns a pointer to the flag value when it was set.
func optional(cmd *cobra.Command, flag string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	v, _ := cmd.Flags().GetString(flag)
	return &v
}
