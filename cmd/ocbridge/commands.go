package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/nsvirk/ocbridge/internal/workbook"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Make sure today's Kite credential is cached and written to the workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cred, err := a.sessions.EnsureCredential(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", cred.UserID)
			return nil
		},
	}
}

func newDropdownsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dropdowns",
		Short: "Print the symbols and expiries offered by the workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd, a.dropdowns.Resolve(cmd.Context()))
		},
	}
}

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var req models.FetchRequest
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one option chain fetch and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.bridge.Initialize(cmd.Context())
			if err != nil {
				return err
			}
			if req.OptionExpiry == "" && len(res.Options.OptionExpiry) > 0 {
				req.OptionExpiry = res.Options.OptionExpiry[0]
			}
			if req.FutureExpiry == "" && len(res.Options.FutureExpiry) > 0 {
				req.FutureExpiry = res.Options.FutureExpiry[0]
			}
			snap, err := a.bridge.Fetch(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}
	cmd.Flags().StringVar(&req.Symbol, "symbol", "NIFTY", "underlying symbol")
	cmd.Flags().StringVar(&req.OptionExpiry, "option-expiry", "", "option expiry DD-MM-YYYY, defaults to the nearest")
	cmd.Flags().StringVar(&req.FutureExpiry, "future-expiry", "", "future expiry DD-MM-YYYY, defaults to the nearest")
	cmd.Flags().IntVar(&req.ChainLength, "chain-length", 20, "number of strikes to read (5-50)")
	return cmd
}

func newDiagnoseCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Describe the workbook as the bridge sees it, as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			wb, err := a.opener.Open(ctx)
			if err != nil {
				return err
			}
			defer wb.Close()

			rep := workbook.Diagnose(wb, a.layout)
			if err := a.layout.Check(wb); err != nil {
				rep.Problems = append(rep.Problems, err.Error())
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(rep)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up attaching to the workbook after this long")
	return cmd
}

func (o *rootOptions) newApp() (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, o.dryRun)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
