// Package cliapp is the daemon's command-line surface (§6, external
// collaborator): one positional configuration file path, plus flags for
// service install/uninstall/service-run. Its only coupling to the core
// is a stop flag it polls.
package cliapp

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmhostd/coopvm/internal/svc"
)

const defaultConfigPath = "config/coopvm.yaml"

// Runner starts the daemon's core against a loaded configuration file
// and blocks until stop is raised.
type Runner func(configPath string, stop *svc.StopFlag) error

// New builds the root command. run is invoked for ordinary (non-service,
// non-install/uninstall) invocations and for the body of a dispatched
// Windows service.
func New(run Runner) *cobra.Command {
	var (
		install    bool
		uninstall  bool
		serviceRun bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:           "coopvmd [config-file]",
		Short:         "Cooperative VM daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				configPath = args[0]
			}

			switch {
			case install:
				bin, err := os.Executable()
				if err != nil {
					return fmt.Errorf("cliapp: locate executable: %w", err)
				}
				if err := svc.Install(bin); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "installed service %s\n", svc.Name)
				return nil

			case uninstall:
				if err := svc.Uninstall(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uninstalled service %s\n", svc.Name)
				return nil

			case serviceRun:
				return svc.RunAsService(func(stop *svc.StopFlag) error {
					return run(configPath, stop)
				})

			default:
				return run(configPath, svc.NewStopFlag())
			}
		},
	}

	cmd.Flags().BoolVar(&install, "install", false, "install the Windows service and exit")
	cmd.Flags().BoolVar(&uninstall, "uninstall", false, "uninstall the Windows service and exit")
	cmd.Flags().BoolVar(&serviceRun, "service-run", false, "run under the Windows Service Control Manager")
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the daemon configuration file")

	return cmd
}
