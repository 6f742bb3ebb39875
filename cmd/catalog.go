package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediarecon/internal"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Build and compare fingerprint catalogs",
}

var catalogBuildCmd = &cobra.Command{
	Use:   "build [media folder] [catalog.json]",
	Short: "Fingerprint every image under a folder",
	Long: `Walk the media folder, skip the trash folder, edited copies and non-images,
and write a catalog with five perceptual hashes per image. The run aborts if
the folder contains file extensions outside the configured allow-list.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, out := args[0], args[1]
		if err := requireDir(root); err != nil {
			return err
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		catalog, err := internal.NewBuilder(rt.conf, rt.logger).Build(cmd.Context(), root)
		if err != nil {
			rt.logger.Error("Catalog build failed", zap.String("root", root), zap.Error(err))
			return err
		}
		if err := internal.WriteCatalog(out, catalog); err != nil {
			return err
		}
		rt.logger.Info("Media information saved", zap.String("file", out), zap.Int("records", catalog.Len()))
		return nil
	},
}

var catalogMissingCmd = &cobra.Command{
	Use:   "missing [source.json] [destination.json] [missing.json]",
	Short: "List media present in the source catalog but absent from the destination",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		src, err := internal.ReadCatalog(args[0])
		if err != nil {
			return err
		}
		dst, err := internal.ReadCatalog(args[1])
		if err != nil {
			return err
		}

		report, err := internal.NewMatcher(rt.conf.DivergenceThreshold, rt.logger).Match(src, dst)
		if err != nil {
			return err
		}
		if err := internal.WriteReport(args[2], report); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "missing: %d  matching: %d  divergent: %d\n",
			report.Count(internal.VerdictMissing),
			report.Count(internal.VerdictMatching),
			report.Count(internal.VerdictDivergent))
		rt.logger.Info("Missing media information saved", zap.String("file", args[2]))
		return nil
	},
}

var catalogCensusCmd = &cobra.Command{
	Use:   "census [media folder]",
	Short: "Count files by extension and flag unexpected ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := internal.LoadConfig(configFlag)
		if err != nil {
			return err
		}
		census, err := internal.CheckExtensions(args[0], conf)
		if census != nil {
			census.Display(cmd.OutOrStdout(), conf)
		}
		return err
	},
}

func init() {
	catalogCmd.AddCommand(catalogBuildCmd, catalogMissingCmd, catalogCensusCmd)
	rootCmd.AddCommand(catalogCmd)
}
