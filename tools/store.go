package tools

import (
	"fmt"
	"io"
	"os"

	"github.com/meshworks/meshd/mesh/config"
	"github.com/meshworks/meshd/mesh/executor"
	"github.com/meshworks/meshd/std/storage"
	"github.com/meshworks/meshd/std/utils/toolutils"
	"github.com/spf13/cobra"
)

// StoreTool works on the settings store of a stopped node.
type StoreTool struct {
	eraseFirst bool
}

var toolStore = StoreTool{}

var CmdStoreDump = &cobra.Command{
	GroupID: "store",
	Use:     "dump CONFIG-FILE",
	Short:   "Print every record in the settings store",
	Args:    cobra.ExactArgs(1),
	Example: `  meshd store dump mesh.yml`,
	Run:     toolStore.dump,
}

var CmdStoreExport = &cobra.Command{
	GroupID: "store",
	Use:     "export CONFIG-FILE",
	Short:   "Write a snapshot of the settings store to stdout",
	Long: `Write a snapshot of the settings store to stdout.
The snapshot is deterministic: equal stores produce equal files.`,
	Args:    cobra.ExactArgs(1),
	Example: `  meshd store export mesh.yml > mesh.snap`,
	Run:     toolStore.export,
}

var CmdStoreImport = &cobra.Command{
	GroupID: "store",
	Use:     "import CONFIG-FILE",
	Short:   "Load a snapshot from stdin into the settings store",
	Args:    cobra.ExactArgs(1),
	Example: `  meshd store import mesh.yml < mesh.snap`,
	Run:     toolStore.restore,
}

var CmdStoreErase = &cobra.Command{
	GroupID: "store",
	Use:     "erase CONFIG-FILE",
	Short:   "Erase every record in the settings store",
	Args:    cobra.ExactArgs(1),
	Run:     toolStore.erase,
}

func init() {
	CmdStoreImport.Flags().BoolVar(&toolStore.eraseFirst, "erase", false, "Erase existing records before importing")
}

// open reads the daemon configuration and opens its settings store. The
// daemon must not be running on the same store.
func (st *StoreTool) open(configfile string) storage.Store {
	conf := struct {
		Mesh *config.Config `json:"mesh"`
	}{
		Mesh: config.DefaultConfig(),
	}
	toolutils.ReadYaml(&conf, configfile)

	if err := conf.Mesh.Parse(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %+v\n", err)
		os.Exit(3)
	}

	store, err := executor.OpenStore(conf.Mesh)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to open settings store: %+v\n", err)
		os.Exit(1)
	}
	return store
}

func (st *StoreTool) dump(_ *cobra.Command, args []string) {
	store := st.open(args[0])
	defer store.Close()

	printer := toolutils.StatusPrinter{File: os.Stdout, Padding: 12}
	count := 0
	err := store.Iterate(func(key string, value []byte) error {
		printer.Print(key, fmt.Sprintf("%x", value))
		count++
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to read settings store: %+v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%d records\n", count)
}

func (st *StoreTool) export(_ *cobra.Command, args []string) {
	store := st.open(args[0])
	defer store.Close()

	snap, err := storage.Export(store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to export settings store: %+v\n", err)
		os.Exit(1)
	}

	os.Stdout.Write(snap)
}

func (st *StoreTool) restore(_ *cobra.Command, args []string) {
	snap, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to read snapshot: %+v\n", err)
		os.Exit(1)
	}

	store := st.open(args[0])
	defer store.Close()

	if st.eraseFirst {
		if err := store.EraseAll(); err != nil {
			fmt.Fprintf(os.Stderr, "Unable to erase settings store: %+v\n", err)
			os.Exit(1)
		}
	}

	if err := storage.Import(store, snap); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to import snapshot: %+v\n", err)
		os.Exit(1)
	}
}

func (st *StoreTool) erase(_ *cobra.Command, args []string) {
	store := st.open(args[0])
	defer store.Close()

	if err := store.EraseAll(); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to erase settings store: %+v\n", err)
		os.Exit(1)
	}
}
