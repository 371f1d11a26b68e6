package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loqalabs/quoteplay/internal/runtime"
	"github.com/loqalabs/quoteplay/internal/speech"
)

var sayCmd = &cobra.Command{
	Use:   "say [text...]",
	Short: "Speak a quote",
	Long: `Say joins its arguments into one quote, synthesizes it with the first
voice model that succeeds and plays the result. With no arguments the quote
is read from standard input.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuote(cmd, args, (*speech.Service).Say)
	},
}

var saveCmd = &cobra.Command{
	Use:   "save [text...]",
	Short: "Speak a quote and archive it as a numbered sample",
	Long: `Save works like say, then converts the audio to mono 22050 Hz 16-bit PCM,
stores it as <n>.wav in the archive directory and appends the quote to the
transcript.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuote(cmd, args, (*speech.Service).Save)
	},
}

func init() {
	rootCmd.AddCommand(sayCmd, saveCmd)
}

type quoteFunc func(*speech.Service, context.Context, string) speech.Response

func runQuote(cmd *cobra.Command, args []string, fn quoteFunc) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		var err error
		if text, err = promptText(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	rt := runtime.New(cfg, logger)
	defer rt.Close()
	if err := rt.Open(cmd.Context()); err != nil {
		return err
	}

	resp := fn(rt.Speech(), cmd.Context(), text)
	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	if resp.IsError {
		return errReported
	}
	return nil
}

func promptText(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter a quote: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read quote: %w", err)
	}
	return strings.TrimSpace(line), nil
}
