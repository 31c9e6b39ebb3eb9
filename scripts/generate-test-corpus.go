//go:build ignore

// Generates a synthetic prose corpus for benchmarking the indexing and
// retrieval pipeline.
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of files to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var topics = []string{
	"quantum computing", "sourdough baking", "trail running", "double-entry bookkeeping",
	"container orchestration", "watercolor technique", "bird migration", "home networking",
	"chess openings", "garden irrigation", "coffee roasting", "solar installation",
	"database indexing", "knot tying", "weather forecasting", "music theory",
}

var sentenceShapes = []string{
	"Notes on %s from a long weekend of reading and experimentation.",
	"The most common mistake people make with %s is skipping the fundamentals.",
	"A practical checklist for %s, collected from several sources over the years.",
	"Why %s turns out to be harder than it looks, and what finally worked.",
	"Comparing three approaches to %s and when each one applies.",
	"Open questions about %s to follow up on next month.",
	"A summary of what changed in %s recently and what it means in practice.",
	"Step-by-step record of a %s session, including the dead ends.",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	extensions := []string{".txt", ".md"}
	for i := 0; i < *numFiles; i++ {
		topic := topics[rng.Intn(len(topics))]
		ext := extensions[rng.Intn(len(extensions))]
		name := fmt.Sprintf("%s-%04d%s", strings.ReplaceAll(topic, " ", "-"), i, ext)

		var b strings.Builder
		if ext == ".md" {
			fmt.Fprintf(&b, "# %s\n\n", topic)
		}
		paragraphs := 3 + rng.Intn(12)
		for p := 0; p < paragraphs; p++ {
			sentences := 4 + rng.Intn(6)
			for s := 0; s < sentences; s++ {
				shape := sentenceShapes[rng.Intn(len(sentenceShapes))]
				fmt.Fprintf(&b, shape+" ", topic)
			}
			b.WriteString("\n\n")
		}

		path := filepath.Join(*outputDir, name)
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	fmt.Printf("generated %d files under %s\n", *numFiles, *outputDir)
}
