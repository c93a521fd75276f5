package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"meeting-minutes-service/internal/service/stream"
)

var decodeTraces bool

func init() {
	decodeCmd.Flags().BoolVar(&decodeTraces, "traces", false, "print trace output to stderr")
	rootCmd.AddCommand(decodeCmd)
}

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode a recorded agent response stream to text",
	Long:  "Reads newline-delimited stream events from file, or stdin when omitted, and prints the decoded text.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	err := stream.DecodeAll(in, func(o stream.Output) {
		fmt.Fprint(out, o.Text)
		if decodeTraces && o.Trace != "" {
			fmt.Fprint(errOut, o.Trace)
		}
		if o.Metadata != nil && o.Metadata.Usage != nil {
			fmt.Fprintf(errOut, "\n[usage] input=%d output=%d\n", o.Metadata.Usage.InputTokens, o.Metadata.Usage.OutputTokens)
		}
	})
	fmt.Fprintln(out)
	return err
}
