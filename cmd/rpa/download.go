package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"cdprpa/internal/download"
	"cdprpa/internal/storage"
)

// journalRecorder 将下载结果写入日志库
type journalRecorder struct {
	store *storage.Store
}

func (j journalRecorder) RecordDownload(ctx context.Context, res *download.Result) error {
	return j.store.SaveDownload(ctx, &storage.DownloadRecord{
		Path:      res.Path,
		Size:      res.Size,
		Readings:  res.Readings,
		StartedAt: res.StartedAt,
		ElapsedMs: res.Elapsed.Milliseconds(),
	})
}

func newDownloadCmd(a *app) *cobra.Command {
	var (
		interval  time.Duration
		threshold int
	)
	cmd := &cobra.Command{
		Use:   "download PATH",
		Short: "Wait until the file at PATH stops growing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("interval") {
				interval = a.cfg.Download.Interval
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = a.cfg.Download.Threshold
			}
			cfg := download.Config{
				Fs:           afero.NewOsFs(),
				MissingRetry: a.cfg.Download.MissingRetry,
				Logger:       a.log,
			}
			if a.cfg.Sqlite.Dsn != "" {
				store, err := storage.Open(storage.Config{Dsn: a.cfg.Sqlite.Dsn, Prefix: a.cfg.Sqlite.Prefix, Logger: a.log})
				if err != nil {
					return err
				}
				defer store.Close()
				cfg.Recorder = journalRecorder{store: store}
			}
			res, err := download.New(cfg).Await(cmd.Context(), args[0], interval, threshold)
			if err != nil {
				return err
			}
			doc, _ := sjson.Set("{}", "path", res.Path)
			doc, _ = sjson.Set(doc, "size", res.Size)
			doc, _ = sjson.Set(doc, "readings", res.Readings)
			doc, _ = sjson.Set(doc, "elapsed", res.Elapsed.Round(time.Millisecond).String())
			fmt.Fprintln(cmd.OutOrStdout(), doc)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", download.DefaultInterval, "interval between size readings")
	cmd.Flags().IntVarP(&threshold, "threshold", "n", download.DefaultThreshold, "consecutive equal readings that mark completion")
	return cmd
}
