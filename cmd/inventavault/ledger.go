package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/inventavault/internal/ledger"
	"github.com/joelkehle/inventavault/internal/patent"
)

func newLedgerCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the local recording ledger",
	}
	cmd.AddCommand(newLedgerVerifyCommand(root))
	return cmd
}

func newLedgerVerifyCommand(root *rootOptions) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "verify [document-hash]",
		Short: "Check the hash chain, or look up one recorded document hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if dbPath == "" {
				dbPath = cfg.LedgerPath
			}
			l, err := ledger.Open(dbPath)
			if err != nil {
				return err
			}
			defer l.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				entry, err := l.Verify(cmd.Context(), args[0])
				if errors.Is(err, ledger.ErrNotFound) {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "block #%d tx %s recorded %s\n%s\n",
					entry.BlockNumber, entry.TransactionHash, entry.RecordedAt.Format("2006-01-02 15:04:05 MST"),
					patent.ExplorerURL(entry.TransactionHash))
				return nil
			}

			if err := l.VerifyChain(cmd.Context()); err != nil {
				logger.Error("ledger_chain_broken", zap.String("db", dbPath), zap.Error(err))
				return fmt.Errorf("ledger chain broken: %w", err)
			}
			fmt.Fprintf(out, "ledger chain intact (%s)\n", dbPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "ledger database; defaults to INVENTAVAULT_LEDGER_PATH")
	return cmd
}
