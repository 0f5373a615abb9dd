package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/okian/kiosk/internal/config"
	"github.com/okian/kiosk/pkg/logger"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize FILE",
	Short: "Send one JPEG to the recognizer and print the outcome",
	Long: `Upload a face crop to the recognition backend, outside the camera loop,
and print the outcome as JSON. Names are resolved against the employee roster.

Examples:
  kiosk recognize face.jpg
  kiosk recognize --config kiosk.yaml face.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	img, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if len(img) == 0 {
		return fmt.Errorf("read image: %s is empty", args[0])
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout stays parseable.
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
		return err
	}
	_ = logger.SetLevelString(cfg.LogLevel)

	c, err := build(ctx, cfg, localCamera, logger.Get())
	if err != nil {
		return err
	}
	defer c.close()

	out, err := c.svc.Recognize(ctx, img)
	if err != nil {
		return fmt.Errorf("recognize %s: %w", args[0], err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
