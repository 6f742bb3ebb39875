package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediarecon/internal"
)

var (
	filenameFallbackFlag bool
	sourceFlag           string
	typeFlag             string
)

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "Resolve and write capture timestamps",
}

// dateTools wires the exiftool and ffmpeg adapters for a run.
type dateTools struct {
	exif   *internal.ExifAdapter
	ffmpeg *internal.FFmpeg
}

func newDateTools(rt *runtime) *dateTools {
	return &dateTools{
		exif:   internal.NewExifAdapter(rt.conf.ExifToolPath, rt.logger),
		ffmpeg: internal.NewFFmpeg(rt.conf.FFmpegPath, rt.conf.FFprobePath, rt.logger),
	}
}

func (t *dateTools) Close() error {
	return t.exif.Close()
}

func newDateRun(rt *runtime, tools *dateTools, command, input string) (*internal.DateRun, error) {
	session, err := internal.NewRunSession(rt.conf.ManifestDir, command, input)
	if err != nil {
		return nil, err
	}
	return internal.NewDateRun(rt.conf, tools.exif, tools.ffmpeg, tools.ffmpeg, session, rt.logger), nil
}

func finishRun(cmd *cobra.Command, rt *runtime, run *internal.DateRun, runErr error) error {
	stats := run.Finish()
	run.Session.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "updated: %d  unchanged: %d  conflicts: %d  unresolved: %d  errors: %d\n",
		stats.Updated, stats.Unchanged, stats.Conflicts, stats.Unresolved, stats.Errors)
	fmt.Fprintf(cmd.OutOrStdout(), "manifest: %s\n", run.Session.SessionDir)
	if run.Stats.Total > 0 {
		fmt.Fprint(cmd.ErrOrStderr(), run.Stats.GenerateReport())
	}
	if runErr != nil {
		rt.logger.Error("Run aborted", zap.Error(runErr))
	}
	return runErr
}

var datesCopyCmd = &cobra.Command{
	Use:   "copy [catalog.json] [output folder]",
	Short: "Copy cataloged media and set the capture time from sidecar metadata",
	Long: `Copy every entry of a catalog or missing-media report into the output folder,
preserving file times. Copies without an embedded capture time receive the
time from the supplemental metadata document next to the original.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		entries, err := internal.ReadPathIndex(args[0])
		if err != nil {
			return err
		}

		tools := newDateTools(rt)
		defer tools.Close()

		run, err := newDateRun(rt, tools, "dates copy", args[0])
		if err != nil {
			return err
		}
		runErr := run.CopyWithMetadata(cmd.Context(), entries, args[1], filenameFallbackFlag)
		return finishRun(cmd, rt, run, runErr)
	},
}

var datesCheckCmd = &cobra.Command{
	Use:   "check [media folder]",
	Short: "Report images without an embedded capture time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDir(args[0]); err != nil {
			return err
		}
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		tools := newDateTools(rt)
		defer tools.Close()

		run := internal.NewDateRun(rt.conf, tools.exif, tools.ffmpeg, tools.ffmpeg, nil, rt.logger)
		missing, err := run.CheckMissing(cmd.Context(), args[0])
		fmt.Fprintf(cmd.OutOrStdout(), "%d images without capture time\n", len(missing))
		return err
	},
}

var datesFixCmd = &cobra.Command{
	Use:   "fix [folder]",
	Short: "Set capture times from WhatsApp or Telegram file names",
	Long: `Scan the files directly inside the folder. Names following the selected
convention give the capture time; files that already carry a time are only
compared and flagged when the two disagree.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern, err := internal.LookupPattern(internal.MessagingSource(sourceFlag), internal.MediaKind(typeFlag))
		if err != nil {
			return err
		}
		if err := requireDir(args[0]); err != nil {
			return err
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		tools := newDateTools(rt)
		defer tools.Close()

		run, err := newDateRun(rt, tools, "dates fix", args[0])
		if err != nil {
			return err
		}
		runErr := run.FixFromFilenames(cmd.Context(), args[0], pattern)
		return finishRun(cmd, rt, run, runErr)
	},
}

func init() {
	datesCopyCmd.Flags().BoolVar(&filenameFallbackFlag, "filename-fallback", false, "Use WhatsApp/Telegram file names when no sidecar exists")
	datesFixCmd.Flags().StringVarP(&sourceFlag, "source", "s", string(internal.SourceWhatsApp), "Source of the media: whatsapp, telegram")
	datesFixCmd.Flags().StringVarP(&typeFlag, "type", "t", string(internal.KindImage), "Type of the media: image, video")

	datesCmd.AddCommand(datesCopyCmd, datesCheckCmd, datesFixCmd)
	rootCmd.AddCommand(datesCmd)
}
