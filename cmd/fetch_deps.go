package cmd

import (
	"github.com/spf13/cobra"

	"github.com/DethRaid/SanityEngine/pkg"
	"github.com/DethRaid/SanityEngine/pkg/deps"
	"github.com/DethRaid/SanityEngine/pkg/profile"
	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

var fetchDepsCmd = &cobra.Command{
	Use:   "fetch-deps [VAR=value...]",
	Short: "Download the external tools listed in deps.yml",
	Long: `Downloads, verifies and extracts the archives listed in deps.yml (dxc, vcpkg, ...).
Archives which were already extracted are skipped unless their URL or checksum changed.
VAR=value arguments add variables used by the if/ifNot conditions and URL placeholders.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, err := profile.ParseOptions(args)
		if err != nil {
			return err
		}

		depsFile, err := cmd.Flags().GetString("file")
		if err != nil {
			return err
		}

		stampsFile, err := cmd.Flags().GetString("stamps")
		if err != nil {
			return err
		}

		s, err := prepare(cmd, nil)
		if err != nil {
			return err
		}
		defer s.close()

		depsFile = s.cfg.Abs(depsFile)
		stampsFile = s.cfg.Abs(stampsFile)

		depCfg, err := deps.LoadConfig(depsFile)
		if err != nil {
			return err
		}

		stamps, err := deps.LoadStamps(stampsFile)
		if err != nil {
			return err
		}

		pkg.PrintTask("Fetching dependencies")
		fetcher := &deps.Fetcher{
			Root:     s.cfg.WorkDir,
			Stamps:   stamps,
			Vars:     vars,
			Progress: true,
		}
		fetched, fetchErr := fetcher.Fetch(s.ctx, depCfg)

		// save the stamps for everything that succeeded, even if a later dependency failed
		err = deps.SaveStamps(stampsFile, fetcher.Stamps)
		if err != nil {
			sblog.Log(s.ctx).Error().Err(err).Msg("Failed to save the stamps")
		}

		if fetchErr != nil {
			return fetchErr
		}

		if len(fetched) == 0 {
			pkg.PrintSubtask("Everything is up to date")
		}
		return err
	},
}

func init() {
	fetchDepsCmd.Flags().StringP("file", "f", "deps.yml", "dependency list, relative to the working directory")
	fetchDepsCmd.Flags().String("stamps", "deps.stamps", "file recording the extracted archives")

	rootCmd.AddCommand(fetchDepsCmd)
}
