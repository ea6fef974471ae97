package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	makegtfs "github.com/mrcagney/make-gtfs"
	"github.com/spf13/pflag"
)

func usageAndDie() {
	fmt.Println("Example usage:\n" +
		"    make-gtfs <source_dir>\n" +
		"    make-gtfs <source_dir> --out feed.zip\n" +
		"    make-gtfs <source_dir> --db --out feed.db")
	os.Exit(1)
}

func main() {
	output := pflag.StringP("out", "o", "", "Path to write the feed to (a .zip file, a directory, or a .db with --db)")
	buffer := pflag.Float64P("buffer", "b", 10, "Meters to buffer trip paths to find stops")
	dbMode := pflag.Bool("db", false, "Write a sqlite database instead of a GTFS zip")

	pflag.Parse()

	if pflag.NArg() != 1 {
		usageAndDie()
	}
	sourcePath := pflag.Arg(0)

	pfeed, err := makegtfs.ReadProtoFeed(sourcePath)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}

	feed, issues, err := makegtfs.Build(pfeed, &makegtfs.BuildOpts{Buffer: *buffer})
	if err != nil {
		if errors.Is(err, makegtfs.ErrInvalidInput) {
			fmt.Printf("Error: %d problem(s) with the source files\n", len(issues))
		} else {
			fmt.Printf("Error: %s\n", err)
		}
		os.Exit(1)
	}

	if *dbMode {
		err = feed.WriteDB(outputPathOrDefault(sourcePath, *output, ".db"))
	} else {
		outputPath := outputPathOrDefault(sourcePath, *output, ".zip")
		if strings.HasSuffix(outputPath, ".zip") {
			err = feed.WriteZip(outputPath)
		} else {
			err = feed.WriteDir(outputPath)
		}
	}

	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	} else {
		fmt.Println("All done")
	}
}

func outputPathOrDefault(inputPath string, outputPath string, newSuffix string) string {
	if outputPath != "" {
		return outputPath
	}
	return path.Base(path.Clean(inputPath)) + newSuffix
}
