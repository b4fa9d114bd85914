package main

import (
	"fmt"
	"os"

	"github.com/deads-sif/sif/internal/sif"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: sifinfo <file.sif>\n")
		os.Exit(1)
	}

	path := os.Args[1]

	ok, _ := sif.IsPossiblySIF(path)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: %s does not look like a SIF file\n", path)
		os.Exit(1)
	}

	f, err := sif.Open(path, true, sif.BigEndian)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("File: %s\n", path)
	fmt.Printf("Version: %d\n", f.Version())
	fmt.Printf("Size: %d x %d, %d bands\n", f.Width(), f.Height(), f.Bands())
	fmt.Printf("Tile size: %d x %d\n", f.TileWidth(), f.TileHeight())
	fmt.Printf("Data unit size: %d bytes\n", f.DataUnitSize())
	fmt.Printf("User data type: %d\n", f.UserDataType())

	at := f.AffineGeoTransform()
	fmt.Printf("Affine transform: %v\n", at)

	if proj := f.Projection(); proj != "" {
		fmt.Printf("Projection: %s\n", proj)
	}
	if agr := f.Agreement(); agr != "" {
		fmt.Printf("Data-type convention: %s\n", agr)
	}

	live := 0
	for _, t := range f.BlockToTile() {
		if t != -1 {
			live++
		}
	}
	fmt.Printf("Live blocks: %d\n", live)
	fmt.Printf("Metadata keys: %d\n", f.MetaDataLen())
	for _, k := range f.MetaDataKeys() {
		fmt.Printf("  %s\n", k)
	}
}
