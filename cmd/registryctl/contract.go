package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wasmregistry/internal/registry/models"
	"wasmregistry/pkg/client"
	api "wasmregistry/pkg/registryapi"
)

func newContractCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Deploy, claim and upgrade named instances",
	}
	cmd.AddCommand(
		newDeployCmd(a),
		newDeployUnnamedCmd(a),
		newClaimCmd(a, "claim", "Bind NAME to an existing instance"),
		newClaimCmd(a, "register", "Bind NAME to an existing instance (legacy name of claim)"),
		newLookupCmd(a, "id", "Print the instance address registered under NAME"),
		newLookupCmd(a, "owner", "Print the owner of NAME"),
		newDevDeployCmd(a),
		newUpgradeCmd(a),
	)
	return cmd
}

// initFlags adds --init and --init-arg, returning a reader for the
// constructor arguments. Nil means the constructor is not called.
func initFlags(cmd *cobra.Command) func() []any {
	var call bool
	var args []string
	cmd.Flags().BoolVar(&call, "init", false, "call the constructor with no arguments")
	cmd.Flags().StringArrayVar(&args, "init-arg", nil, "constructor argument; repeat for more")
	return func() []any {
		if len(args) == 0 && !call {
			return nil
		}
		out := make([]any, 0, len(args))
		for _, arg := range args {
			out = append(out, arg)
		}
		return out
	}
}

func saltFlag(cmd *cobra.Command) func() (*models.Hash, error) {
	var raw string
	cmd.Flags().StringVar(&raw, "salt", "", "hex deploy salt")
	return func() (*models.Hash, error) {
		if raw == "" {
			return nil, nil
		}
		h, err := models.ParseHash(raw)
		if err != nil {
			return nil, fmt.Errorf("--salt: %w", err)
		}
		return &h, nil
	}
}

func (a *app) printDeploy(name string, addr models.Address, err error) error {
	var deployErr *client.DeployError
	if errors.As(err, &deployErr) {
		_ = a.print(map[string]string{"name": name, "contract_id": deployErr.ContractID.String()})
		return err
	}
	if err != nil {
		return err
	}
	return a.print(map[string]string{"name": name, "contract_id": addr.String()})
}

func newDeployCmd(a *app) *cobra.Command {
	var owner, deployer string
	cmd := &cobra.Command{
		Use:   "deploy WASM_NAME CONTRACT_NAME",
		Short: "Deploy a published artifact and claim CONTRACT_NAME for it",
		Args:  cobra.ExactArgs(2),
	}
	initArgs := initFlags(cmd)
	salt := saltFlag(cmd)
	cmd.Flags().String("version", "", "artifact version (default: current)")
	cmd.Flags().StringVar(&owner, "owner", "", "owner address (default: first --key)")
	cmd.Flags().StringVar(&deployer, "deployer", "", "deployer address (default: the registry)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ownerAddr, err := a.principal("owner", owner)
		if err != nil {
			return err
		}
		s, err := salt()
		if err != nil {
			return err
		}
		req := api.DeployRequest{
			WasmName:     args[0],
			Version:      optional(cmd, "version"),
			ContractName: args[1],
			Owner:        ownerAddr.String(),
			Salt:         s,
			InitArgs:     initArgs(),
		}
		if deployer != "" {
			req.Deployer = &deployer
		}
		c, err := a.client()
		if err != nil {
			return err
		}
		addr, err := c.Deploy(cmd.Context(), req)
		return a.printDeploy(args[1], addr, err)
	}
	return cmd
}

func newDeployUnnamedCmd(a *app) *cobra.Command {
	var deployer string
	cmd := &cobra.Command{
		Use:   "deploy-unnamed WASM_NAME",
		Short: "Deploy a published artifact without claiming a name",
		Args:  cobra.ExactArgs(1),
	}
	initArgs := initFlags(cmd)
	salt := saltFlag(cmd)
	cmd.Flags().String("version", "", "artifact version (default: current)")
	cmd.Flags().StringVar(&deployer, "deployer", "", "deployer address (default: first --key)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		deployerAddr, err := a.principal("deployer", deployer)
		if err != nil {
			return err
		}
		s, err := salt()
		if err != nil {
			return err
		}
		c, err := a.client()
		if err != nil {
			return err
		}
		addr, err := c.DeployWithoutClaiming(cmd.Context(), api.UnnamedDeployRequest{
			WasmName: args[0],
			Version:  optional(cmd, "version"),
			Deployer: deployerAddr.String(),
			Salt:     s,
			InitArgs: initArgs(),
		})
		return a.printDeploy("", addr, err)
	}
	return cmd
}

func newClaimCmd(a *app, use, short string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   use + " NAME CONTRACT_ID",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := models.ParseAddress(args[1])
			if err != nil {
				return err
			}
			ownerAddr, err := a.principal("owner", owner)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			claim := c.ClaimContractID
			if use == "register" {
				claim = c.RegisterContract
			}
			if err := claim(cmd.Context(), args[0], addr, ownerAddr); err != nil {
				return err
			}
			return a.print(map[string]string{"name": args[0], "contract_id": addr.String(), "owner": ownerAddr.String()})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner address (default: first --key)")
	return cmd
}

func newLookupCmd(a *app, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if use == "owner" {
				owner, err := c.FetchContractOwner(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(map[string]string{"name": args[0], "owner": owner.String()})
			}
			addr, err := c.FetchContractID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(map[string]string{"name": args[0], "contract_id": addr.String()})
		},
	}
}

func newDevDeployCmd(a *app) *cobra.Command {
	var file, owner string
	cmd := &cobra.Command{
		Use:   "dev-deploy NAME",
		Short: "Upload an artifact and deploy it as NAME, or upgrade NAME in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read artifact: %w", err)
			}
			req := api.DevDeployRequest{Wasm: blob, UpgradeFn: optional(cmd, "upgrade-fn")}
			if owner != "" {
				req.Owner = &owner
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			addr, err := c.DevDeploy(cmd.Context(), args[0], req)
			return a.printDeploy(args[0], addr, err)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "artifact file")
	cmd.Flags().StringVar(&owner, "owner", "", "owner for a first deploy")
	cmd.Flags().String("upgrade-fn", "", "upgrade entry point (default: upgrade)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newUpgradeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade CONTRACT_NAME WASM_NAME",
		Short: "Upgrade the instance under CONTRACT_NAME to a published artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			addr, err := c.UpgradeContract(cmd.Context(), args[0], api.UpgradeRequest{
				WasmName:  args[1],
				Version:   optional(cmd, "version"),
				UpgradeFn: optional(cmd, "upgrade-fn"),
			})
			if err != nil {
				return err
			}
			return a.print(map[string]string{"name": args[0], "contract_id": addr.String()})
		},
	}
	cmd.Flags().String("version", "", "artifact version (default: current)")
	cmd.Flags().String("upgrade-fn", "", "upgrade entry point (default: upgrade)")
	return cmd
}
