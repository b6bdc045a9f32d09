package inspect

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/lunixbochs/fvbommel-util/sortorder"

	"github.com/lowtemp/permafrost"
	"github.com/lowtemp/permafrost/blob"
	"github.com/lowtemp/permafrost/cmd"
)

type moduleList []blob.DecodedModule

func (m moduleList) Len() int           { return len(m) }
func (m moduleList) Swap(i, j int)      { m[i], m[j] = m[j], m[i] }
func (m moduleList) Less(i, j int) bool { return sortorder.NaturalLess(m[i].Name, m[j].Name) }

func Main(args []string) {
	fs := flag.NewFlagSet("args", flag.ExitOnError)
	symbol := fs.String("sym", "", "locator symbol name")
	offsets := fs.Bool("offsets", false, "print blob and table offsets")
	sortNames := fs.Bool("sort", false, "sort modules by name")
	fs.Usage = func() {
		fmt.Printf("Usage: %s [options] <binary>\n", args[0])
		fs.PrintDefaults()
	}
	fs.Parse(args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	info, err := permafrost.Inspect(data, *symbol)
	if err != nil {
		cmd.PrintError(err)
		os.Exit(1)
	}
	fmt.Printf("format: %s\n", info.Format)
	if info.Legacy {
		fmt.Println("blob located by the trailing pointer (no locator symbol)")
	}
	for _, arch := range info.Arches {
		fmt.Printf("\n%d-bit: %d modules\n", arch.Bits, len(arch.Modules))
		if *offsets {
			if arch.Header != nil {
				fmt.Printf("blob at %#x (%#x bytes), module table at +%#x\n",
					arch.Header.BlobOffset, arch.Header.BlobSize, arch.TableOff)
			} else {
				fmt.Printf("module table at +%#x\n", arch.TableOff)
			}
		}
		mods := arch.Modules
		if *sortNames {
			sorted := append(moduleList{}, arch.Modules...)
			sort.Sort(sorted)
			mods = sorted
		}
		for i := range mods {
			mod := &mods[i]
			size := "-"
			if mod.Payload != nil {
				size = fmt.Sprintf("%d", len(mod.Payload))
			}
			fmt.Printf("%-40s %-9s %8s\n", mod.Name, mod.Kind(), size)
		}
	}
}

func init() {
	cmd.Register("inspect", "list the modules frozen into a binary", Main)
}
