package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ValentinKolb/mclock/cmd/lock"
	"github.com/ValentinKolb/mclock/cmd/serve"
	"github.com/ValentinKolb/mclock/cmd/util"
	"github.com/spf13/cobra"
)

// Version is overwritten at build time (-ldflags "-X github.com/ValentinKolb/mclock/cmd.Version=...")
var Version = "1.0.0"

var (
	// RootCmd is the mclock command, every other command hangs below it
	RootCmd = &cobra.Command{
		Use:   "mclock",
		Short: "Lock service for management console sessions",
		Long: fmt.Sprintf(`mclock (v%s)

Arbitrates configuration requests of concurrent management console
sessions. Sessions acquire advisory read and write locks on hierarchically
addressed resources, the lock table survives restarts of the service.

Start a server with "mclock serve" and talk to it with "mclock lock".`, Version),
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version of mclock",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("mclock v%s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd, lock.LockCommands, versionCmd)

	// shared by client and server, both sides must agree
	RootCmd.PersistentFlags().String("serializer", "json", util.WrapString("serializer to use (json, gob, binary)"))
	RootCmd.PersistentFlags().String("transport", "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute runs the command selected by the command line arguments.
// It exits the process with status 1 if the command fails.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
