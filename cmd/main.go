// Command kiosk runs the face recognition attendance kiosk.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "kiosk",
	Short: "Face recognition attendance kiosk",
	Long: `kiosk drives a local camera, detects faces on every frame and sends
the latest face crop to the attendance backend for recognition. Operators
control the camera and watch outcomes through the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		// Load reads the config file path from the environment.
		if configPath != "" {
			_ = os.Setenv("KIOSK_CONFIG", configPath)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides KIOSK_CONFIG)")
}

func main() {
	// Our own registry carries the process metrics we care about.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
