package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/WebFirstLanguage/wflos/kernel/hal/limine"
	"github.com/WebFirstLanguage/wflos/kernel/mm"
	"github.com/WebFirstLanguage/wflos/kernel/mm/pmm"
	"github.com/fatih/color"
	"github.com/fogleman/gg"
)

// defaultMap is the memory map reported by QEMU for a 256M guest.
const defaultMap = "0x0:0x9fc00:0,0x9fc00:0x400:1,0xf0000:0x10000:1,0x100000:0xfee0000:0,0xffe0000:0x20000:1,0xfffc0000:0x40000:1"

const (
	cellSize     = 8
	cellGap      = 1
	margin       = 10
	captionLines = 3
	lineHeight   = 16
)

// cellState describes the frames covered by a single cell.
type cellState uint8

const (
	cellReserved cellState = iota
	cellFree
	cellUsed
	cellMixed
)

var cellColors = [...][3]float64{
	cellReserved: {0.35, 0.35, 0.35},
	cellFree:     {0.20, 0.70, 0.30},
	cellUsed:     {0.80, 0.20, 0.20},
	cellMixed:    {0.90, 0.70, 0.10},
}

var errBadRange = errors.New("expected a range in start:end format")

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[memmapviz] error: %s\n", err.Error())
	os.Exit(1)
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, 64)
}

// parseMap parses a comma-separated list of base:length:type entries.
func parseMap(spec string) ([]limine.MemoryRegion, error) {
	var regions []limine.MemoryRegion
	for _, entry := range strings.Split(spec, ",") {
		if strings.TrimSpace(entry) == "" {
			continue
		}

		fields := strings.Split(entry, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed region %q: expected base:length:type", entry)
		}

		var values [3]uint64
		for i, field := range fields {
			v, err := parseUint(field)
			if err != nil {
				return nil, fmt.Errorf("malformed region %q: %w", entry, err)
			}
			values[i] = v
		}

		if values[2] > uint64(limine.Framebuffer) {
			return nil, fmt.Errorf("malformed region %q: unknown region type %d", entry, values[2])
		}

		regions = append(regions, limine.MemoryRegion{
			Base:   values[0],
			Length: values[1],
			Type:   limine.RegionType(values[2]),
		})
	}

	if len(regions) == 0 {
		return nil, errors.New("memory map is empty")
	}

	return regions, nil
}

// parseRange parses a start:end address pair.
func parseRange(spec string) (uintptr, uintptr, error) {
	fields := strings.Split(spec, ":")
	if len(fields) != 2 {
		return 0, 0, errBadRange
	}

	start, err := parseUint(fields[0])
	if err != nil {
		return 0, 0, err
	}

	end, err := parseUint(fields[1])
	if err != nil {
		return 0, 0, err
	}

	return uintptr(start), uintptr(end), nil
}

// classifyCells groups the frames tracked by alloc into cells of
// framesPerCell frames and returns the state of each cell.
func classifyCells(alloc *pmm.BitmapAllocator, framesPerCell uint64) []cellState {
	tracked := alloc.TrackedFrames()
	cells := make([]cellState, 0, (tracked+framesPerCell-1)/framesPerCell)

	for first := uint64(0); first < tracked; first += framesPerCell {
		var managed, free uint64
		last := first + framesPerCell
		if last > tracked {
			last = tracked
		}

		for frame := first; frame < last; frame++ {
			if alloc.IsManaged(mm.Frame(frame)) {
				managed++
				if alloc.IsFree(mm.Frame(frame)) {
					free++
				}
			}
		}

		switch count := last - first; {
		case managed == 0:
			cells = append(cells, cellReserved)
		case free == count:
			cells = append(cells, cellFree)
		case managed == count && free == 0:
			cells = append(cells, cellUsed)
		default:
			cells = append(cells, cellMixed)
		}
	}

	return cells
}

// render draws one square per cell, wrapping after cols cells, followed by
// a caption with the allocator statistics.
func render(cells []cellState, cols int, caption []string) *gg.Context {
	rows := (len(cells) + cols - 1) / cols
	width := 2*margin + cols*(cellSize+cellGap)
	height := 2*margin + rows*(cellSize+cellGap) + captionLines*lineHeight

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for i, state := range cells {
		x := float64(margin + (i%cols)*(cellSize+cellGap))
		y := float64(margin + (i/cols)*(cellSize+cellGap))
		rgb := cellColors[state]
		dc.SetRGB(rgb[0], rgb[1], rgb[2])
		dc.DrawRectangle(x, y, cellSize, cellSize)
		dc.Fill()
	}

	dc.SetRGB(0, 0, 0)
	captionTop := float64(2*margin + rows*(cellSize+cellGap))
	for i, line := range caption {
		dc.DrawStringAnchored(line, margin, captionTop+float64(i*lineHeight), 0, 0.5)
	}

	return dc
}

// printRegions writes a colored summary of the memory map to w.
func printRegions(w io.Writer, regions []limine.MemoryRegion) {
	usable := color.New(color.FgGreen)
	other := color.New(color.FgYellow)

	fmt.Fprintln(w, "system memory map:")
	for i := range regions {
		c := other
		if regions[i].Type == limine.Usable {
			c = usable
		}

		c.Fprintf(w, "  [0x%010x - 0x%010x] %-24s %d KB\n",
			regions[i].Base, regions[i].End(), regions[i].Type.String(), regions[i].Length>>10)
	}
}

func runTool() error {
	var (
		mapSpec    = flag.String("map", defaultMap, "comma-separated memory map entries in base:length:type format")
		kernelSpec = flag.String("kernel", "0x100000:0x200000", "the kernel image range in start:end format")
		output     = flag.String("out", "memmap.png", "the PNG file to write")
		cols       = flag.Int("cols", 128, "number of cells per row")
		group      = flag.Uint64("group", 64, "number of frames represented by each cell")
		allocs     = flag.Uint64("alloc", 0, "number of frames to allocate before rendering")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "memmapviz: render the frame allocator state for a memory map\n\n")
		fmt.Fprint(os.Stderr, "Usage: memmapviz [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *cols <= 0 || *group == 0 {
		return errors.New("cols and group must be positive")
	}

	regions, err := parseMap(*mapSpec)
	if err != nil {
		return err
	}

	kernelStart, kernelEnd, err := parseRange(*kernelSpec)
	if err != nil {
		return err
	}

	alloc := new(pmm.BitmapAllocator)
	alloc.Init(regions, kernelStart, kernelEnd)
	for i := uint64(0); i < *allocs; i++ {
		if _, kErr := alloc.AllocFrame(); kErr != nil {
			return kErr
		}
	}
	total, used, free := alloc.Stats()

	printRegions(os.Stdout, regions)

	caption := []string{
		fmt.Sprintf("tracked frames: %d, %d frames per cell", alloc.TrackedFrames(), *group),
		fmt.Sprintf("managed: %d, used: %d, free: %d", total, used, free),
		fmt.Sprintf("kernel image: 0x%x - 0x%x", kernelStart, kernelEnd),
	}

	dc := render(classifyCells(alloc, *group), *cols, caption)
	if err := dc.SavePNG(*output); err != nil {
		return err
	}

	color.New(color.FgCyan).Printf("wrote %s (%d free of %d managed frames)\n", *output, free, total)
	return nil
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
