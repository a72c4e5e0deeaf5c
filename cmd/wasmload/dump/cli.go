package dump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/load"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
)

func Command(config *load.Config) *cobra.Command {
	var stats bool

	command := &cobra.Command{
		Use:   "dump [path to module]",
		Short: "Dump WebAssembly modules",
		Long:  "Dump a summary of a loaded WebAssembly module, or per-function statistics in CSV format",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			mod, err := load.LoadFile(args[0], *config)
			if err != nil {
				return err
			}
			defer mod.Close()

			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()

			if stats {
				return dumpStats(w, mod.Module)
			}
			return dumpSummary(w, mod.Module)
		},
	}

	command.PersistentFlags().BoolVarP(&stats, "stats", "s", false, "dump function statistics in CSV format")

	return command
}

func functionName(m *wasm.Module, funcidx uint32) string {
	if name, ok := m.Names.FunctionName(funcidx); ok {
		return name
	}
	if funcidx < uint32(len(m.ImportedFunctions)) {
		imp := m.ImportedFunctions[funcidx]
		return imp.ModuleName + "." + imp.FieldName
	}
	return fmt.Sprintf("$f%d", funcidx)
}

func index(i int64) string {
	if i < 0 {
		return "-"
	}
	return fmt.Sprint(i)
}

func dumpSummary(w io.Writer, m *wasm.Module) error {
	if m.Names != nil && m.Names.ModuleName != "" {
		fmt.Fprintf(w, "module %s\n", m.Names.ModuleName)
	}
	fmt.Fprintf(w, "features: %v\n", m.Features)

	fmt.Fprintf(w, "types: %d (%d unique)\n", len(m.Types), len(m.UniqueTypes()))
	for i, t := range m.UniqueTypes() {
		fmt.Fprintf(w, "  %d: %v refs=%d\n", i, t, t.RefCount)
	}

	fmt.Fprintf(w, "imports:\n")
	for _, f := range m.ImportedFunctions {
		fmt.Fprintf(w, "  func %s.%s %v resolved=%v\n", f.ModuleName, f.FieldName, f.Sig, f.Resolved)
	}
	for _, t := range m.ImportedTables {
		fmt.Fprintf(w, "  table %s.%s %v\n", t.ModuleName, t.FieldName, t.Table.Limits)
	}
	for _, mem := range m.ImportedMemories {
		fmt.Fprintf(w, "  memory %s.%s %v\n", mem.ModuleName, mem.FieldName, mem.Memory.Limits)
	}
	for _, g := range m.ImportedGlobals {
		fmt.Fprintf(w, "  global %s.%s %v mutable=%v resolved=%v\n", g.ModuleName, g.FieldName, g.Type.Type, g.Type.Mutable, g.Resolved)
	}

	fmt.Fprintf(w, "functions:\n")
	imported := uint32(len(m.ImportedFunctions))
	for i := range m.Functions {
		f := &m.Functions[i]
		funcidx := imported + uint32(i)
		fmt.Fprintf(w, "  %d %s %v locals=%d stack=%d cells=%d nesting=%d", funcidx, functionName(m, funcidx), f.Sig,
			len(f.Locals), f.MaxStackDepth, f.MaxStackCells, f.MaxBlockDepth)
		if f.Rewritten {
			fmt.Fprintf(w, " code=%d consts=%d", len(f.Code), len(f.Consts)/8)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "exports:\n")
	for _, e := range m.Exports {
		fmt.Fprintf(w, "  %s %v %d\n", e.Name, e.Kind, e.Index)
	}

	fmt.Fprintf(w, "globals: %d bytes\n", m.GlobalDataSize)
	fmt.Fprintf(w, "aux: heap_base=%s data_end=%s stack_top=%s stack_size=%d\n",
		index(m.Aux.HeapBaseGlobal), index(m.Aux.DataEndGlobal), index(m.Aux.StackTopGlobal), m.Aux.StackSize)
	fmt.Fprintf(w, "allocator: malloc=%s free=%s retain=%s\n",
		index(m.MallocFunction), index(m.FreeFunction), index(m.RetainFunction))
	fmt.Fprintf(w, "memory.grow: %v\n", m.PossibleMemoryGrow)
	return nil
}
