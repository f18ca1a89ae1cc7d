package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/meshworks/meshd/mesh/config"
	"github.com/meshworks/meshd/mesh/executor"
	"github.com/meshworks/meshd/std/utils"
	"github.com/meshworks/meshd/std/utils/toolutils"
	"github.com/spf13/cobra"
)

var CmdMesh = &cobra.Command{
	Use:     "meshd CONFIG-FILE",
	Short:   "Mesh Node Daemon",
	GroupID: "run",
	Version: utils.MeshdVersion,
	Args:    cobra.ExactArgs(1),
	Run:     run,
}

func run(cmd *cobra.Command, args []string) {
	configfile := args[0]

	config := struct {
		Config *config.Config `json:"mesh"`
	}{
		Config: config.DefaultConfig(),
	}
	toolutils.ReadYaml(&config, configfile)

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)

	mse, err := executor.NewMeshExecutor(config.Config)
	if err != nil {
		panic(err)
	}

	go func() {
		if err := mse.Start(); err != nil {
			panic(err)
		}
		sigchan <- syscall.SIGTERM
	}()

	// wait for interrupt
	<-sigchan
	mse.Stop()
	<-sigchan
}
