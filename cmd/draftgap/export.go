package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"draftgap/internal/export"
	"draftgap/internal/logger"
	"draftgap/internal/matchup"
	"draftgap/internal/store"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		outDir   string
		upload   bool
		rank     string
		patch    string
		minGames int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON snapshot of the matchup data",
		Long: `Writes data.json (patches, primary roles and every champion's opponents in
its primary role) and manifest.json into the output directory. With --upload
both files are published to the configured S3-compatible bucket.

Example:
  draftgap export --out ./export --rank platinum+ --upload`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("out") {
				a.cfg.ExportDir = outDir
			}
			tiers, err := matchup.ExpandRankTier(rank)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := a.openStore(ctx, true)
			if err != nil {
				return err
			}
			defer st.Close()

			snap, err := export.Build(ctx, st, export.Options{Tiers: tiers, Patch: patch, MinGames: minGamesArg(minGames)})
			if err != nil {
				return err
			}
			manifest, err := export.WriteFiles(a.cfg.ExportDir, snap, "")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s: %d champions, patch %s\n",
				filepath.Join(a.cfg.ExportDir, export.DataFile), len(snap.Matchups), snap.Patch)
			fmt.Fprintf(out, "SHA256: %s\n", manifest.SHA256)

			if !upload {
				return nil
			}
			uploader, err := export.NewS3Uploader(ctx, export.S3Config{
				Bucket:          a.cfg.S3Bucket,
				Region:          a.cfg.S3Region,
				Endpoint:        a.cfg.S3Endpoint,
				AccessKeyID:     a.cfg.S3AccessKeyID,
				SecretAccessKey: a.cfg.S3SecretAccessKey,
				Prefix:          a.cfg.S3Prefix,
				PublicBaseURL:   a.cfg.S3PublicBaseURL,
			})
			if err != nil {
				return err
			}
			manifest, err = uploader.Publish(ctx, a.cfg.ExportDir, snap)
			if err != nil {
				return err
			}
			a.log.Info(ctx, "snapshot published", logger.String("url", manifest.DataURL))
			fmt.Fprintf(out, "Uploaded: %s\n", manifest.DataURL)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&outDir, "out", "", `output directory (default from config, "export")`)
	fl.BoolVar(&upload, "upload", false, "publish to the configured S3 bucket")
	fl.StringVar(&rank, "rank", matchup.AllTiers, "rank tier filter")
	fl.StringVar(&patch, "patch", "", "patch filter (default every patch)")
	fl.IntVar(&minGames, "min-games", store.DefaultMinGames, "minimum games against an opponent (0 exports all)")
	return cmd
}
