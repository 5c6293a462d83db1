package cmd

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config [key=value...]",
	Short: "Print the effective configuration",
	Long: `Prints the configuration as YAML after the config file, the SANITY_* environment variables and
the profile script were applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := prepare(cmd, args)
		if err != nil {
			return err
		}
		defer s.close()

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		err = enc.Encode(s.cfg)
		if err != nil {
			return eris.Wrap(err, "failed to encode the configuration")
		}
		return enc.Close()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
