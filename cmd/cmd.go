package cmd

import (
	mesh "github.com/meshworks/meshd/mesh/cmd"
	"github.com/meshworks/meshd/std/utils"
	"github.com/meshworks/meshd/tools"
	"github.com/spf13/cobra"
)

const banner = `
                      _         _
  _ __ ___   ___ ___| |__   __| |
 | '_ ' _ \ / _ \ __| '_ \ / _' |
 | | | | | |  __/\__ \ | | (_| |
 |_| |_| |_|\___||___/_| |_|\__,_|

Wireless Mesh Networking Daemon
`

var CmdMeshd = &cobra.Command{
	Use:     "meshd",
	Short:   "Wireless Mesh Networking Daemon",
	Long:    banner[1:],
	Version: utils.MeshdVersion,
}

func init() {
	cobra.EnableCommandSorting = false
	CmdMeshd.Root().CompletionOptions.HiddenDefaultCmd = true
	CmdMeshd.PersistentFlags().BoolP("help", "h", false, "Print usage")
	CmdMeshd.PersistentFlags().Lookup("help").Hidden = true

	CmdMeshd.AddGroup(&cobra.Group{ID: "run", Title: "Mesh Daemon"})
	mesh.CmdMesh.Use = "run CONFIG-FILE"
	mesh.CmdMesh.Short = "Start the mesh node daemon"
	CmdMeshd.AddCommand(mesh.CmdMesh)

	CmdMeshd.AddGroup(&cobra.Group{ID: "tools", Title: "Store Tools"})
	CmdMeshd.AddCommand(cmdStore())
}

func cmdStore() *cobra.Command {
	cmdStore := &cobra.Command{
		Use:     "store",
		Short:   "Settings Store Tools",
		Long: `Settings Store Tools

The store commands operate directly on the settings store of a
stopped node, using the same configuration file as the daemon.`,
		GroupID: "tools",
	}

	cmdStore.AddGroup(&cobra.Group{ID: "store", Title: "Store Tools"})
	cmdStore.AddCommand(tools.CmdStoreDump)
	cmdStore.AddCommand(tools.CmdStoreExport)
	cmdStore.AddCommand(tools.CmdStoreImport)
	cmdStore.AddCommand(tools.CmdStoreErase)

	return cmdStore
}
