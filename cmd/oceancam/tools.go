/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/oceancam/internal/auth"
	"github.com/friendsincode/oceancam/internal/capture"
	"github.com/friendsincode/oceancam/internal/clock"
	"github.com/friendsincode/oceancam/internal/events"
	"github.com/friendsincode/oceancam/internal/media"
	"github.com/friendsincode/oceancam/internal/storage"
	"github.com/friendsincode/oceancam/internal/upload"
	"github.com/friendsincode/oceancam/internal/version"
)

var (
	tokenOperator string
	tokenScopes   []string
	tokenTTL      time.Duration
	versionCheck  bool
)

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "Take one sensor reading and print it with its annotation",
	RunE:  runSensors,
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Archive and upload the media directory now",
	RunE:  runUpload,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator token for the HTTP API",
	RunE:  runToken,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE:  runVersion,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "", "Operator name recorded in the token")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", auth.AllScopes, "Scopes to grant")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("operator")

	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check GitHub for a newer release")

	rootCmd.AddCommand(sensorsCmd, uploadCmd, tokenCmd, versionCmd)
}

func runSensors(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	hw, err := buildHardware(cfg, clock.Real{}, logger)
	if err != nil {
		return err
	}

	reading := hw.reader.ReadAll(cmd.Context())
	out := struct {
		Reading    any    `json:"reading"`
		Annotation string `json:"annotation"`
	}{reading, capture.Annotation(cfg.Camera.Name, reading)}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runUpload(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx := cmd.Context()

	uploader, err := storage.New(ctx, storageConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("upload backend: %w", err)
	}
	root := media.NewRoot(cfg.Paths.MediaDir, cfg.Paths.RequireMount, cfg.Paths.MinFreeMB*1024*1024, logger)
	orch := upload.New(upload.Config{
		CameraName: cfg.Camera.Name,
		MediaDir:   cfg.Paths.MediaDir,
		ArchiveDir: cfg.ArchiveDir(),
	}, root, uploader, clock.Real{}, events.Nop{}, logger)

	res := orch.UploadOnce(ctx)
	if res.Err != nil && !errors.Is(res.Err, storage.ErrDisabled) {
		return res.Err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "archive:  %s (%d files, %d bytes)\n", res.Archive.Path, res.Archive.Files, res.Archive.Bytes)
	fmt.Fprintf(out, "sha256:   %s\n", res.Archive.SHA256)
	if res.Uploaded {
		fmt.Fprintf(out, "uploaded: %s\n", res.Location)
	} else {
		fmt.Fprintln(out, "uploaded: no (kept locally)")
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.HTTP.JWTSigningKey == "" {
		return fmt.Errorf("http.jwt_signing_key is not set")
	}
	token, err := auth.Issue([]byte(cfg.HTTP.JWTSigningKey), auth.Claims{
		Operator: tokenOperator,
		Camera:   cfg.Camera.UID,
		Scopes:   tokenScopes,
	}, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "oceancam %s\n", version.Version)
	if !versionCheck {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	info, err := version.NewChecker().Check(ctx)
	if err != nil {
		return fmt.Errorf("check for updates: %w", err)
	}
	if !info.UpdateAvailable {
		fmt.Fprintln(out, "up to date")
		return nil
	}
	fmt.Fprintf(out, "update available: %s\n%s\n", info.LatestVersion, info.ReleaseURL)
	return nil
}
