package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lksh/markboard/internal/application/query"
	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/infrastructure/export"
	"github.com/lksh/markboard/internal/interface/http/handlers"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Fetch the standings and write the ranked CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		a, err := newLiveApp(cfg, log)
		if err != nil {
			return err
		}

		rows, err := query.NewGetRankedTableHandler(a.provider).Handle(cmd.Context())
		if err != nil {
			return err
		}

		if out == "-" {
			return export.WriteCSV(cmd.OutOrStdout(), rows)
		}
		if err := export.WriteCSVFile(out, rows); err != nil {
			return err
		}

		log.Info("results exported", "path", out, "students", len(rows))
		return nil
	},
}

var jsonCmd = &cobra.Command{
	Use:   "json",
	Short: "Print the bulk results JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newLiveApp(cfg, log)
		if err != nil {
			return err
		}

		results, err := query.NewGetResultsHandler(a.provider).Handle(cmd.Context())
		if err != nil {
			return err
		}
		return export.EncodeResults(cmd.OutOrStdout(), results)
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <ejid>",
	Short: "Print the personal result of one student",
	Long:  "Print the personal result of one student. An unknown ID prints {\"error\": \"ID не найден\"} and exits 0.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ejid, err := shared.ParseEJID(args[0])
		if err != nil {
			return err
		}

		a, err := newLiveApp(cfg, log)
		if err != nil {
			return err
		}

		dto, err := query.NewGetPersonalResultHandler(a.provider).Handle(cmd.Context(), query.GetPersonalResultQuery{EJID: ejid})
		if err != nil {
			return err
		}
		return export.EncodePersonal(cmd.OutOrStdout(), dto.Payload())
	},
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key <key>",
	Short: "Print the bcrypt hash to put into ADMIN_API_KEY_HASH",
	Args:  cobra.ExactArgs(1),
	// Does not need configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := handlers.HashAdminKey(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
		return err
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", export.DefaultCSVFile, `Output file ("-" for stdout)`)
}
