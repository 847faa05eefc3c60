package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/srlabs/arq-sim/config"
	"github.com/srlabs/arq-sim/simulation"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   "arq-sim",
		Short: "arq-sim simulates a selective-repeat ARQ transport over an unreliable network",
	}

	var metricsEndpoint string
	runCmd := &cobra.Command{
		Use:   "run <config-file>",
		Short: "run drives the simulation described by a YAML config file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var conf simulation.Config
			if err := config.ReadYAML(args[0], &conf); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if metricsEndpoint != "" {
				server := &http.Server{
					Addr:    metricsEndpoint,
					Handler: promhttp.Handler(),
				}
				defer server.Close()
				go func() {
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logrus.
							WithError(err).
							Error("error serving metrics")
					}
				}()
			}

			stats, err := simulation.Run(ctx, conf)
			if err != nil {
				return err
			}
			logrus.
				WithField("stats", fmt.Sprintf("%+v", stats)).
				Info("run finished")
			return nil
		},
	}
	runCmd.Flags().StringVar(&metricsEndpoint, "metrics-endpoint", "", "address for serving prometheus metrics during the run")

	rootCmd.AddCommand(runCmd)
	return rootCmd.Execute()
}
