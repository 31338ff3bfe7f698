package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ent0n29/switchboard/internal/agent"
	"github.com/ent0n29/switchboard/internal/dialogue"
	"github.com/ent0n29/switchboard/internal/policy"
	"github.com/ent0n29/switchboard/internal/session"
)

func agentsCmd(st *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the loaded agent definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := agent.Load(st.cfg.AgentsDir, st.logger)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tINTENTS\tFIELDS\tHISTORY")
			for _, def := range defs {
				intents := make([]string, 0, len(def.Intents))
				for label := range def.Intents {
					intents = append(intents, label)
				}
				sort.Strings(intents)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
					def.ID, def.Name, strings.Join(intents, ","), strings.Join(def.Fields, ","), def.Capacity())
			}
			return tw.Flush()
		},
	}
}

func classifyCmd(st *runtimeState) *cobra.Command {
	var (
		agentID string
		reply   bool
	)
	cmd := &cobra.Command{
		Use:   "classify [message]",
		Short: "Classify a message with one agent's rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := agent.Load(st.cfg.AgentsDir, st.logger)
			if err != nil {
				return err
			}
			var def *agent.Definition
			for i := range defs {
				if defs[i].ID == agentID {
					def = &defs[i]
				}
			}
			if def == nil {
				return fmt.Errorf("unknown agent %q", agentID)
			}
			dcfg, err := agent.Build(*def)
			if err != nil {
				return err
			}
			engine, err := dialogue.New(dcfg, session.NewBoundedHistory(def.Capacity()),
				dialogue.WithRedactor(policy.Redactor{Enabled: st.cfg.RedactPII}.Redact),
				dialogue.WithLogger(st.logger))
			if err != nil {
				return err
			}

			message := strings.Join(args, " ")
			if !reply {
				fmt.Fprintln(cmd.OutOrStdout(), engine.Classify(message))
				return nil
			}
			out, err := engine.Chat(cmd.Context(), "cli", message)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"intent":  out.Intent,
				"payload": out.Payload,
				"facets":  out.Facets,
				"record":  out.Record,
			})
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id")
	cmd.Flags().BoolVar(&reply, "reply", false, "print the full assembled reply as JSON")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}
