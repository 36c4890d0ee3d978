package main

import (
	"github.com/spf13/cobra"

	"wasmregistry/internal/registry/models"
)

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Inspect and change registry roles",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "roles",
			Short: "Print the admin and manager",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				roles, err := c.Roles(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(roles)
			},
		},
		&cobra.Command{
			Use:   "set-manager ADDRESS",
			Short: "Appoint a manager; the admin must sign",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				manager, err := models.ParseAddress(args[0])
				if err != nil {
					return err
				}
				c, err := a.client()
				if err != nil {
					return err
				}
				if err := c.SetManager(cmd.Context(), manager); err != nil {
					return err
				}
				return a.print(map[string]string{"manager": manager.String()})
			},
		},
		&cobra.Command{
			Use:   "remove-manager",
			Short: "Remove the manager; the admin must sign",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				if err := c.RemoveManager(cmd.Context()); err != nil {
					return err
				}
				return a.print(map[string]any{"manager": nil})
			},
		},
	)
	return cmd
}

func newEventsCmd(a *app) *cobra.Command {
	var topic string
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent registry events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Events(cmd.Context(), topic, limit)
			if err != nil {
				return err
			}
			return a.print(resp.Events)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "register, deploy or publish")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events (default: server default)")
	return cmd
}
