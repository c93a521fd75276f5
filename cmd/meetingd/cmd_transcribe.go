package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meeting-minutes-service/internal/llm/bedrock"
	"meeting-minutes-service/internal/service/filetranscribe"
	"meeting-minutes-service/internal/service/transcript"
)

var (
	transcribeBucket   string
	transcribeLanguage string
	transcribeSpeakers string
	transcribeForce    bool
)

func init() {
	f := transcribeCmd.Flags()
	f.StringVar(&transcribeBucket, "bucket", "", "S3 bucket for media and job output (default $MEDIA_BUCKET)")
	f.StringVar(&transcribeLanguage, "language", "", "language code, or auto to identify it (default $TRANSCRIBE_LANGUAGE)")
	f.StringVar(&transcribeSpeakers, "speakers", "", "comma-separated names for spk_0, spk_1, ...")
	f.BoolVar(&transcribeForce, "force", false, "re-upload the media and start a new job")
	rootCmd.AddCommand(transcribeCmd)
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe-file <path>",
	Short: "Transcribe a recorded meeting with Amazon Transcribe",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if transcribeBucket != "" {
		cfg.AWS.MediaBucket = transcribeBucket
	}
	if transcribeLanguage != "" {
		cfg.AWS.TranscribeLanguage = transcribeLanguage
	}

	ctx := cmd.Context()
	awsCfg, err := bedrock.LoadConfig(ctx, cfg.AWS.Region, nil)
	if err != nil {
		return err
	}

	svc := filetranscribe.NewFromConfig(awsCfg, fileOptions(cfg.AWS, transcribeForce))
	res, err := svc.TranscribeFile(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.LanguageCode != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "language=%s duration=%s\n", res.LanguageCode, transcript.FormatTime(res.Duration))
	}
	fmt.Fprintln(out, transcript.FormatPlain(res.Fragments, transcript.ParseSpeakers(transcribeSpeakers)))
	return nil
}
