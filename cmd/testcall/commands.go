package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/testcall/internal/app"
	"github.com/MrWong99/testcall/internal/booking"
	"github.com/MrWong99/testcall/internal/config"
)

// ── call ─────────────────────────────────────────────────────────────────────

func (c *cli) buildCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call",
		Short: "Run the interactive call harness",
		Long: `Run the interactive call harness. The receptionist greets you and then
listens. Type a command and press Enter:

  <Enter>  send what you said
  l        listen again after a notice
  s        start a new call
  e        end the call
  a        accept the extracted booking
  d        dismiss the ended call or booking
  q        quit

Edits to the configuration file apply from the next call on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runCall(cmd.Context())
		},
	}
}

// ── voices ───────────────────────────────────────────────────────────────────

func (c *cli) buildVoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices of the configured TTS provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			p, err := reg.CreateTTS(cfg.Providers.TTS)
			if err != nil {
				return fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
			}
			voices, err := p.ListVoices(cmd.Context())
			if err != nil {
				return fmt.Errorf("list voices: %w", err)
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPROVIDER")
			for _, v := range voices {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Name, v.Provider)
			}
			return tw.Flush()
		},
	}
}

// ── bookings ─────────────────────────────────────────────────────────────────

func (c *cli) buildBookingsCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "List accepted bookings, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			store, err := booking.Open(cmd.Context(), cfg.Bookings)
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.out)
				for _, b := range list {
					if err := enc.Encode(b); err != nil {
						return err
					}
				}
				return nil
			}
			if len(list) == 0 {
				fmt.Fprintln(c.out, "no bookings yet")
				return nil
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tCLIENT\tSERVICE\tWHEN\tURGENCY\tCONFIDENCE")
			for _, b := range list {
				conf := "-"
				if v, ok := b.Job.ConfidenceValue(); ok {
					conf = fmt.Sprintf("%.2f", v)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					b.CreatedAt.Local().Format(time.DateTime),
					b.Job.ClientName, b.Job.ServiceType,
					joinNonEmpty(b.Job.ScheduledDate, b.Job.ScheduledTime),
					b.Job.Urgency, conf)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum bookings to list (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON document per booking")
	return cmd
}

// ── check ────────────────────────────────────────────────────────────────────

func (c *cli) buildCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and try every provider and the booking store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			printStartupSummary(c.out, cfg)

			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			if _, err := app.BuildProviders(cfg, reg, nil); err != nil {
				return err
			}

			store, err := booking.Open(cmd.Context(), cfg.Bookings)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("booking store: %w", err)
			}

			fmt.Fprintln(c.out, "configuration OK")
			return nil
		},
	}
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}
