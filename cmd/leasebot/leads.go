package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/hurttlocker/leasebot/internal/config"
	"github.com/hurttlocker/leasebot/internal/lead"
	"github.com/hurttlocker/leasebot/internal/store"
)

func runLeads(args []string) error {
	fs := flag.NewFlagSet("leads", flag.ContinueOnError)
	statusFlag := fs.String("status", "", "Only leads in this status")
	limit := fs.Int("limit", 50, "Maximum rows")
	jsonOut := fs.Bool("json", false, "JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := store.ListOpts{Limit: *limit}
	if *statusFlag != "" {
		st, err := lead.ParseStatus(*statusFlag)
		if err != nil {
			return err
		}
		opts.Status = st
	}

	s, err := openLocalStore()
	if err != nil {
		return err
	}
	defer s.Close()

	leads, err := s.ListLeads(context.Background(), opts)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(leads)
	}
	if len(leads) == 0 {
		fmt.Println("No leads.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tNAME\tBEDS\tBUDGET\tMOVE-IN\tUPDATED")
	for _, l := range leads {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.Status, dash(l.Name), optInt(l.Bedrooms, ""), optInt(l.Budget, "$"),
			dash(l.MoveInDate), l.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runMessages(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: leasebot messages <lead-id>")
	}
	s, err := openLocalStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	l, err := s.GetLead(ctx, args[0])
	if errors.Is(err, store.ErrLeadNotFound) {
		return fmt.Errorf("lead %s not found", args[0])
	}
	if err != nil {
		return err
	}
	msgs, err := s.ListMessages(ctx, l.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Lead %s (%s, session %s)\n\n", l.ID, l.Status, l.SessionID)
	for _, m := range msgs {
		fmt.Printf("[%s] %s:\n%s\n\n", m.Timestamp.Local().Format("15:04:05"), strings.ToUpper(string(m.Role)), m.Content)
	}
	return nil
}

func runStats(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: leasebot stats")
	}
	s, err := openLocalStore()
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Leads:       %d\n", st.LeadCount)
	fmt.Printf("Messages:    %d\n", st.MessageCount)
	fmt.Printf("Properties:  %d\n", st.PropertyCount)
	fmt.Printf("DB size:     %d bytes\n", st.DBSizeBytes)
	return nil
}

func runConfig(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: leasebot config")
	}
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:    globalConfigPath,
		EnvFile:       globalEnvFile,
		CLIDBPath:     globalDBPath,
		CLIBackendURL: globalBackendURL,
		CLIStore:      globalStore,
		CLILogLevel:   globalLogLevel,
	})
	if err != nil {
		return err
	}
	if err := writeJSON(cfg.Redacted()); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func openLocalStore() (*store.SQLiteStore, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	return openStore(cfg)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func optInt(v *int, prefix string) string {
	if v == nil {
		return "-"
	}
	return prefix + strconv.Itoa(*v)
}
