package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wasmregistry/internal/registry/models"
)

func newWasmCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wasm",
		Short: "Publish and query artifacts",
	}
	cmd.AddCommand(
		newPublishCmd(a),
		newPublishHashCmd(a),
		newFetchHashCmd(a),
		newDownloadCmd(a),
		&cobra.Command{
			Use:   "version NAME",
			Short: "Print the current version of NAME",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				v, err := c.CurrentVersion(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(map[string]string{"name": args[0], "version": v})
			},
		},
		&cobra.Command{
			Use:   "versions NAME",
			Short: "List every published version of NAME",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				vs, err := c.Versions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(vs)
			},
		},
	)
	return cmd
}

func newFetchHashCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash NAME",
		Short: "Print the hash of NAME at --version, or at its current version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			h, err := c.FetchHash(cmd.Context(), args[0], optional(cmd, "version"))
			if err != nil {
				return err
			}
			return a.print(map[string]string{"name": args[0], "hash": h.String()})
		},
	}
	cmd.Flags().String("version", "", "exact version (default: current)")
	return cmd
}

func newDownloadCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download NAME",
		Short: "Write the artifact bytes of NAME at --version, or at its current version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			wasm, err := c.FetchWasm(cmd.Context(), args[0], optional(cmd, "version"))
			if err != nil {
				return err
			}
			if out == "" {
				_, err = a.out.Write(wasm)
				return err
			}
			if err := os.WriteFile(out, wasm, 0o644); err != nil {
				return fmt.Errorf("write artifact: %w", err)
			}
			return a.print(map[string]string{
				"name": args[0], "file": out, "hash": models.HashOf(wasm).String(),
			})
		},
	}
	cmd.Flags().String("version", "", "exact version (default: current)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func newPublishCmd(a *app) *cobra.Command {
	var file, version, author string
	cmd := &cobra.Command{
		Use:   "publish NAME",
		Short: "Upload an artifact and publish it under NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read artifact: %w", err)
			}
			authorAddr, err := a.principal("author", author)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.Publish(cmd.Context(), args[0], authorAddr, blob, version); err != nil {
				return err
			}
			return a.print(map[string]string{
				"name": args[0], "version": version, "hash": models.HashOf(blob).String(),
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "artifact file")
	cmd.Flags().StringVar(&version, "version", "", "semantic version")
	cmd.Flags().StringVar(&author, "author", "", "author address (default: first --key)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func newPublishHashCmd(a *app) *cobra.Command {
	var hash, version, author string
	cmd := &cobra.Command{
		Use:   "publish-hash NAME",
		Short: "Publish an already uploaded artifact by hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := models.ParseHash(hash)
			if err != nil {
				return fmt.Errorf("--hash: %w", err)
			}
			authorAddr, err := a.principal("author", author)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.PublishHash(cmd.Context(), args[0], authorAddr, h, version); err != nil {
				return err
			}
			return a.print(map[string]string{"name": args[0], "version": version, "hash": h.String()})
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "hex artifact hash")
	cmd.Flags().StringVar(&version, "version", "", "semantic version")
	cmd.Flags().StringVar(&author, "author", "", "author address (default: first --key)")
	_ = cmd.MarkFlagRequired("hash")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}
