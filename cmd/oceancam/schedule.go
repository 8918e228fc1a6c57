/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/oceancam/internal/schedule"
)

var icalOutput string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect schedule files",
}

var scheduleValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a schedule file without installing it",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScheduleValidate,
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Print the slots of a schedule",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScheduleShow,
}

var scheduleICalCmd = &cobra.Command{
	Use:   "ical [file]",
	Short: "Export a schedule as an iCalendar file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScheduleICal,
}

func init() {
	scheduleICalCmd.Flags().StringVarP(&icalOutput, "output", "o", "", "Write to this file instead of stdout")
	scheduleCmd.AddCommand(scheduleValidateCmd, scheduleShowCmd, scheduleICalCmd)
	rootCmd.AddCommand(scheduleCmd)
}

// loadSchedule reads the named file, or the configured schedule when args
// is empty, into a fresh store.
func loadSchedule(args []string) (*schedule.Store, string, error) {
	if err := loadConfig(); err != nil {
		return nil, "", err
	}
	path := cfg.Paths.SchedulePath
	if len(args) == 1 {
		path = args[0]
	}
	descs, err := schedule.ReadFile(path)
	if err != nil {
		return nil, path, err
	}
	store := schedule.NewStore(cfg.Timezone())
	if err := store.Load(descs); err != nil {
		return nil, path, err
	}
	return store, path, nil
}

func runScheduleValidate(cmd *cobra.Command, args []string) error {
	store, path, err := loadSchedule(args)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d slots OK\n", path, store.Len())
	return nil
}

func runScheduleShow(cmd *cobra.Command, args []string) error {
	store, path, err := loadSchedule(args)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	now := time.Now().In(cfg.Timezone())
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTART\tSTOP\tMODE\tINTERVAL\tLIGHT\tSTATUS")
	for i, slot := range store.Slots() {
		status := "pending"
		switch {
		case slot.Contains(now):
			status = "active"
		case !slot.Stop.After(now):
			status = "past"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%ds\t%d\t%s\n",
			i,
			slot.Start.Format(time.DateTime),
			slot.Stop.Format(time.DateTime),
			slot.Mode,
			slot.PhotoInterval,
			slot.LightDutyCycle,
			status,
		)
	}
	return w.Flush()
}

func runScheduleICal(cmd *cobra.Command, args []string) error {
	store, path, err := loadSchedule(args)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	result := schedule.ExportToICal(cfg.Camera.Name, store.Slots(), time.Now())
	if icalOutput == "" {
		_, err := cmd.OutOrStdout().Write(result.Data)
		return err
	}
	if err := os.WriteFile(icalOutput, result.Data, 0o644); err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", icalOutput)
	return nil
}
