// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/mnemo/internal/search"
	"github.com/sigil-dev/mnemo/internal/vector"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed memories",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	cmd.Flags().StringSlice("layer", nil, "restrict to memory layer (repeatable)")
	cmd.Flags().StringSlice("category", nil, "restrict to category (repeatable)")
	cmd.Flags().String("agent", "", "restrict to agent id")
	cmd.Flags().Int("limit", 0, "maximum results (default from search.default_limit)")
	cmd.Flags().Bool("debug", false, "include execution details")
	cmd.Flags().Bool("json", false, "print the raw JSON response")
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	req := search.Request{Query: strings.Join(args, " ")}
	req.Layers, _ = cmd.Flags().GetStringSlice("layer")
	req.Categories, _ = cmd.Flags().GetStringSlice("category")
	req.AgentID, _ = cmd.Flags().GetString("agent")
	req.Debug, _ = cmd.Flags().GetBool("debug")
	if cmd.Flags().Changed("limit") {
		limit, _ := cmd.Flags().GetInt("limit")
		req.Limit = &limit
	}

	app, err := Wire(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	resp, err := app.Search.Search(cmd.Context(), req)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), resp)
	}
	return renderResults(cmd.OutOrStdout(), resp)
}

func renderResults(w io.Writer, resp *search.Response) error {
	if len(resp.Results) == 0 {
		_, err := fmt.Fprintln(w, dimStyle.Render("no results"))
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "ID", "DISTANCE", "LAYER", "CATEGORY", "AGENT").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for i, r := range resp.Results {
		t.Row(
			strconv.Itoa(i+1),
			r.ID,
			strconv.FormatFloat(r.Distance, 'f', 4, 64),
			vector.MetadataString(r.Metadata[vector.MetaLayer]),
			vector.MetadataString(r.Metadata[vector.MetaCategory]),
			vector.MetadataString(r.Metadata[vector.MetaAgentID]),
		)
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}

	if d := resp.Debug; d != nil {
		_, err := fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf(
			"backend=%s provider=%s model=%s dims=%d limit=%d candidates=%d post_filter=%t embed=%dms search=%dms",
			d.Backend, d.Provider, d.Model, d.Dimensions, d.Limit, d.Candidates, d.CategoryPostFilter, d.EmbedMS, d.SearchMS,
		)))
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
