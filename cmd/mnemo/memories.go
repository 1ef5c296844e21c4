// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/mnemo/internal/search"
	"github.com/sigil-dev/mnemo/internal/vector"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <id> <text...>",
		Short: "Embed and index one memory",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runIndex,
	}
	cmd.Flags().String("layer", "", "memory layer")
	cmd.Flags().String("category", "", "category")
	cmd.Flags().String("agent", "", "agent id")
	cmd.Flags().StringToString("meta", nil, "extra metadata key=value pairs")
	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	meta := map[string]any{}
	extra, _ := cmd.Flags().GetStringToString("meta")
	for k, v := range extra {
		meta[k] = v
	}
	for flag, key := range map[string]string{"layer": vector.MetaLayer, "category": vector.MetaCategory, "agent": vector.MetaAgentID} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			meta[key] = v
		}
	}

	app, err := Wire(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	id := args[0]
	if err := app.Search.Index(cmd.Context(), id, strings.Join(args[1:], " "), meta); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed %s\n", id)
	return err
}

func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <id...>",
		Short: "Remove memories from the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			app, err := Wire(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if err := app.Search.Forget(cmd.Context(), args); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "forgot %d id(s)\n", len(args))
			return err
		},
	}
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			app, err := Wire(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			st, err := app.Search.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderStats(st))
			return err
		},
	}
	cmd.Flags().Bool("json", false, "print JSON")
	return cmd
}

func renderStats(st *search.Stats) string {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(_, col int) lipgloss.Style {
			if col == 0 {
				return headerStyle
			}
			return cellStyle
		}).
		Row("records", strconv.FormatInt(st.Count, 10)).
		Row("backend", st.Backend).
		Row("provider", st.Provider).
		Row("model", st.Model).
		Row("dimensions", strconv.Itoa(st.Dimensions)).
		Render()
}
