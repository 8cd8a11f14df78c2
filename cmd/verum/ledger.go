package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"verum/internal/ledger"
	"verum/internal/security"
)

func cmdLedger(c *cli, args []string) error {
	fs := c.newFlagSet("ledger", "ledger <list -case label | find <hash> | get <id> | stats | verify> [-json]")
	caseLabel := fs.String("case", "", "case label to list")
	asJSON := fs.Bool("json", false, "print JSON")
	positional, err := parse(fs, args)
	if err != nil {
		return err
	}
	if len(positional) < 1 {
		fs.Usage()
		return errUsage
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Ledger.Enabled {
		return fmt.Errorf("ledger is disabled in configuration")
	}
	l, err := openLedger(c, cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	audit, err := openAudit(cfg)
	if err != nil {
		return err
	}
	defer audit.Close()

	var out any
	switch action := positional[0]; action {
	case "list":
		if *caseLabel == "" {
			fs.Usage()
			return errUsage
		}
		if err := security.ValidateLabel(*caseLabel); err != nil {
			return err
		}
		records, err := l.ListByCase(c.ctx, *caseLabel)
		if err != nil {
			return err
		}
		out = records
	case "find":
		if len(positional) != 2 {
			fs.Usage()
			return errUsage
		}
		if err := security.ValidateHexString(positional[1], 128); err != nil {
			return fmt.Errorf("content hash: %w", err)
		}
		records, err := l.FindByContentHash(c.ctx, positional[1])
		if err != nil {
			return err
		}
		out = records
	case "get":
		if len(positional) != 2 {
			fs.Usage()
			return errUsage
		}
		rec, err := l.Get(c.ctx, positional[1])
		if err != nil {
			return err
		}
		out = []ledger.Record{*rec}
	case "stats":
		st, err := l.Stats(c.ctx)
		if err != nil {
			return err
		}
		out = st
	case "verify":
		v, err := l.Verify(c.ctx)
		_ = audit.LogLedger(c.ctx, "verify", "", err)
		if err != nil {
			return err
		}
		out = v
	default:
		fmt.Fprintf(c.stderr, "Unknown ledger action: %s\n", action)
		fs.Usage()
		return errUsage
	}

	if *asJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printLedger(c, out)
	return nil
}

func printLedger(c *cli, out any) {
	switch v := out.(type) {
	case []ledger.Record:
		if len(v) == 0 {
			fmt.Fprintln(c.stdout, "No records.")
			return
		}
		tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tID\tCASE\tRECORDED\tCONTENT")
		for _, r := range v {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s...\n",
				r.Seq, r.ID, r.CaseLabel, r.RecordedAt.Format("2006-01-02 15:04:05"), r.ContentHash[:16])
		}
		tw.Flush()
	case *ledger.Stats:
		fmt.Fprintf(c.stdout, "Records:    %d\n", v.Records)
		fmt.Fprintf(c.stdout, "Cases:      %d\n", v.Cases)
		fmt.Fprintf(c.stdout, "Chain hash: %s\n", v.ChainHash)
		fmt.Fprintf(c.stdout, "Integrity:  %s\n", intact(v.IntegrityOK))
	case *ledger.Verification:
		fmt.Fprintf(c.stdout, "Ledger verified: %d records intact\n", v.Records)
	}
}
