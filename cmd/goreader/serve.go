package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	lookupSentence string
	lookupJSON     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored books and the dictionary over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <word>",
	Short: "Look a word up in the dictionary, generating the entry when missing",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)

	lookupCmd.Flags().StringVarP(&lookupSentence, "sentence", "s", "", "sentence the word appeared in")
	lookupCmd.Flags().BoolVar(&lookupJSON, "json", false, "print the entry as JSON")
	rootCmd.AddCommand(lookupCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx)
}

func runLookup(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Dictionary().Lookup(ctx, args[0], lookupSentence)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if lookupJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	e := res.Entry
	cmd.Printf("%s", e.Word)
	if e.Pronunciation != "" {
		cmd.Printf(" [%s]", e.Pronunciation)
	}
	if e.POS != "" {
		cmd.Printf(" (%s)", e.POS)
	}
	cmd.Printf("\n  %s\n", e.MeaningJa)
	if res.Generated {
		cmd.Println("  (new entry)")
	}
	return nil
}
