// Command cmpdump decodes a DER (or BER) encoded PKIMessage and prints a
// summary of its header, body and protection.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cmp "github.com/mdean75/cmp-lib"
	pkiasn1 "github.com/mdean75/cmp-lib/internal/asn1"
	"github.com/mdean75/cmp-lib/internal/config"
)

type flags struct {
	ber        bool
	policyFile string
	policy     string
	maxDepth   int
	format     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "cmpdump [FILE]",
		Short:         "Decode and summarize a CMP PKIMessage",
		Long:          "cmpdump decodes one PKIMessage from FILE (or standard input when FILE is \"-\" or missing), validates it against a policy and prints a summary.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return run(cmd, f, path)
		},
	}
	cmd.Flags().BoolVar(&f.ber, "ber", false, "accept BER input and normalize it to DER")
	cmd.Flags().StringVar(&f.policyFile, "config", "", "TOML or YAML file with policy and limits")
	cmd.Flags().StringVar(&f.policy, "policy", "", "built-in policy: default, lightweight or none")
	cmd.Flags().IntVar(&f.maxDepth, "max-depth", -1, "maximum nesting depth (-1 keeps the configured value)")
	cmd.Flags().StringVar(&f.format, "format", "text", "output format: text or yaml")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log decoder rejections at debug level")
	cmd.AddCommand(newOIDCmd())
	return cmd
}

func newOIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "oid NAME|DOTTED...",
		Short: "Translate between OID names and dotted form",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, arg := range args {
				oid, err := pkiasn1.ParseOID(arg)
				if err != nil {
					return err
				}
				name, ok := pkiasn1.Name(oid)
				if !ok {
					name = "(unregistered)"
				}
				fmt.Fprintf(out, "%s\t%s\n", oid, name)
			}
			return nil
		},
	}
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "cmpdump").Logger()
}

func run(cmd *cobra.Command, f flags, path string) error {
	logger := newLogger(cmd.ErrOrStderr(), f.verbose)

	var write func(io.Writer, summary) error
	switch f.format {
	case "text":
		write = writeText
	case "yaml":
		write = writeYAML
	default:
		err := fmt.Errorf("unknown output format %q", f.format)
		logger.Error().Err(err).Msg("invalid flags")
		return err
	}

	cfg := config.Default()
	if f.policyFile != "" {
		var err error
		if cfg, err = config.Load(f.policyFile); err != nil {
			logger.Error().Err(err).Msg("cannot load configuration")
			return err
		}
	}
	if f.policy != "" {
		p, err := cmp.PolicyByName(f.policy)
		if err != nil {
			logger.Error().Err(err).Msg("unknown policy")
			return err
		}
		cfg.Policy = p
	}
	if f.maxDepth >= 0 {
		cfg.MaxNestingDepth = f.maxDepth
	}
	cfg.BERInput = cfg.BERInput || f.ber

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			logger.Error().Err(err).Msg("cannot open input")
			return err
		}
		defer file.Close()
		in = file
	}

	opts := append(cfg.Options(), cmp.WithLogger(logger))
	m, err := cmp.ParseMessage(in, opts...)
	if err != nil {
		ev := logger.Error().Err(err).Str("policy", cfg.Policy.Name)
		if code, ok := cmp.CodeOf(err); ok {
			ev = ev.Stringer("code", code)
		}
		ev.Msg("message rejected")
		return err
	}

	return write(cmd.OutOrStdout(), describe(m))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
