package main

import (
	"errors"
	"fmt"
	"os"

	"verum/internal/config"
	"verum/internal/ledger"
	"verum/internal/logging"
	"verum/internal/seal"
	"verum/internal/security"
)

// errVerificationFailed reports content that no longer matches its seal.
var errVerificationFailed = errors.New("verification failed")

func cmdSeal(c *cli, args []string) error {
	fs := c.newFlagSet("seal", "seal <file> [-case label] [-meta key=value ...] [-o seal.json]")
	caseLabel := fs.String("case", "", "case label")
	manufacturer := fs.String("manufacturer", "", "capture device manufacturer")
	model := fs.String("model", "", "capture device model")
	osVersion := fs.String("os-version", "", "capture device OS version")
	output := fs.String("o", "", "seal output path (default: <file>.seal.json)")
	noLedger := fs.Bool("no-ledger", false, "do not record the seal in the ledger")
	meta := kvFlag{}
	fs.Var(meta, "meta", "metadata key=value (repeatable)")
	paths, err := parse(fs, args)
	if err != nil {
		return err
	}
	if len(paths) != 1 {
		fs.Usage()
		return errUsage
	}
	for _, v := range []string{*caseLabel, *manufacturer, *model, *osVersion} {
		if err := security.ValidateLabel(v); err != nil {
			return err
		}
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(paths[0])
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}

	audit, err := openAudit(cfg)
	if err != nil {
		return err
	}
	defer audit.Close()

	s, err := seal.New(seal.WithAlgorithmVersion(cfg.Seal.AlgorithmVersion)).Seal(content, seal.Metadata{
		CaseLabel: *caseLabel,
		Device:    seal.Device{Manufacturer: *manufacturer, Model: *model, OSVersion: *osVersion},
		KV:        meta,
	})
	_ = audit.LogSeal(c.ctx, *caseLabel, seal.ContentHash(content), err)
	if err != nil {
		return err
	}

	out := *output
	if out == "" {
		out = paths[0] + ".seal.json"
	}
	data, err := seal.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write seal: %w", err)
	}

	if cfg.Ledger.Enabled && !*noLedger {
		l, err := openLedger(c, cfg)
		if err != nil {
			return err
		}
		defer l.Close()
		rec, err := l.Append(c.ctx, s)
		_ = audit.LogLedger(c.ctx, "append", recordID(rec), err)
		if err != nil {
			return fmt.Errorf("seal written to %s but not recorded: %w", out, err)
		}
		fmt.Fprintf(c.stdout, "Ledger record: %s (#%d)\n", rec.ID, rec.Seq)
	}

	fmt.Fprintf(c.stdout, "Seal written to %s\n\n", out)
	fmt.Fprint(c.stdout, seal.Footer(s))
	return nil
}

func recordID(rec *ledger.Record) string {
	if rec == nil {
		return ""
	}
	return rec.ID
}

func cmdVerify(c *cli, args []string) error {
	fs := c.newFlagSet("verify", "verify <file> <seal.json> [-meta key=value ...]")
	meta := kvFlag{}
	fs.Var(meta, "meta", "current metadata key=value (repeatable; default: the sealed set)")
	paths, err := parse(fs, args)
	if err != nil {
		return err
	}
	if len(paths) != 2 {
		fs.Usage()
		return errUsage
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(paths[0])
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}
	s, err := readSeal(paths[1])
	if err != nil {
		return err
	}

	kv := map[string]string(meta)
	if len(kv) == 0 {
		kv = s.MetadataKV
	}
	r := seal.Verify(s, content, kv)

	audit, err := openAudit(cfg)
	if err != nil {
		return err
	}
	defer audit.Close()
	_ = audit.LogVerification(c.ctx, s.CaseLabel, s.ContentHash, r.ContentIntact, r.MetadataIntact, r.SignatureIntact)

	fmt.Fprintf(c.stdout, "Content:   %s\n", intact(r.ContentIntact))
	fmt.Fprintf(c.stdout, "Metadata:  %s\n", intact(r.MetadataIntact))
	fmt.Fprintf(c.stdout, "Signature: %s\n", intact(r.SignatureIntact))
	fmt.Fprintln(c.stdout)
	fmt.Fprintln(c.stdout, r.Message)
	if !r.OverallValid {
		return errVerificationFailed
	}
	return nil
}

func intact(ok bool) string {
	if ok {
		return "intact"
	}
	return "MODIFIED"
}

func cmdFooter(c *cli, args []string) error {
	fs := c.newFlagSet("footer", "footer <seal.json>")
	paths, err := parse(fs, args)
	if err != nil {
		return err
	}
	if len(paths) != 1 {
		fs.Usage()
		return errUsage
	}
	s, err := readSeal(paths[0])
	if err != nil {
		return err
	}
	fmt.Fprint(c.stdout, seal.Footer(s))
	return nil
}

func readSeal(path string) (*seal.Seal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seal: %w", err)
	}
	defer f.Close()
	return seal.Read(f)
}

// openLedger opens the configured ledger, creating its key on first use.
// A ledger that fails verification is still returned for reading.
func openLedger(c *cli, cfg *config.Config) (*ledger.Ledger, error) {
	key, created, err := security.LoadOrCreateKey(cfg.Ledger.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("ledger key: %w", err)
	}
	defer security.Wipe(key)
	if created {
		fmt.Fprintf(c.stderr, "Generated ledger key at %s\n", cfg.Ledger.KeyPath)
	}

	l, err := ledger.Open(c.ctx, cfg.Ledger.Path, key)
	if errors.Is(err, ledger.ErrIntegrity) {
		fmt.Fprintf(c.stderr, "Warning: %v\n", err)
		return l, nil
	}
	return l, err
}

// openAudit opens the custody log, or returns a nil logger that discards
// events when none is configured.
func openAudit(cfg *config.Config) (*logging.AuditLogger, error) {
	ac := cfg.Logging.AuditConfig("verum")
	if ac == nil {
		return nil, nil
	}
	return logging.NewAuditLogger(ac)
}
