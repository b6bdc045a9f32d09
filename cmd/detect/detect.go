package detect

import (
	"flag"
	"fmt"
	"os"

	"github.com/lowtemp/permafrost/cmd"
	"github.com/lowtemp/permafrost/stub"
)

func Main(args []string) {
	fs := flag.NewFlagSet("args", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Printf("Usage: %s <binary>\n", args[0])
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
	img, err := stub.Open(data)
	if err != nil {
		cmd.PrintError(err)
		os.Exit(1)
	}
	fmt.Printf("format: %s\n", img.Format)
	for i := range img.Slices {
		s := &img.Slices[i]
		if img.Format == stub.FatMachO {
			fmt.Printf("%d-bit slice at %#x (%#x bytes), cputype %#x\n",
				s.Bits, s.Offset, s.Size, s.Machine)
		} else {
			fmt.Printf("%d-bit, machine %#x\n", s.Bits, s.Machine)
		}
	}
	fmt.Printf("default blob alignment: %d\n", img.DefaultBlobAlign())
}

func init() {
	cmd.Register("detect", "identify a stub binary's format and slices", Main)
}
