// Command ingest walks an Aozora Bunko checkout, chunks every eligible work
// and hands the chunks to the embedding queue or straight to the index.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"bunko/internal/config"
)

const (
	sinkQueue = "queue"
	sinkIndex = "index"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "ingest",
		Usage: "Chunk and index Aozora Bunko works",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Ingest the archive checkout",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "root",
						Aliases: []string{"r"},
						Usage:   "Path to the aozorabunko checkout",
						EnvVars: []string{"AOZORA_REPO_PATH"},
					},
					&cli.IntFlag{
						Name:    "max-works",
						Aliases: []string{"n"},
						Usage:   "Stop after this many files, 0 for no limit",
						Value:   -1,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of files processed at once",
					},
					&cli.StringFlag{
						Name:  "sink",
						Usage: "Where chunks go: queue (NSQ embed topic) or index (embed and store now)",
						Value: sinkQueue,
					},
					&cli.StringFlag{
						Name:  "manifest",
						Usage: "Path of the JSONL manifest written after the run",
					},
				},
			},
			{
				Name:      "chunk",
				Usage:     "Print the chunks of a single file as JSON lines",
				ArgsUsage: "<file>",
				Action:    chunkCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "root",
						Aliases: []string{"r"},
						Usage:   "Checkout root the file belongs to",
						Value:   ".",
					},
					&cli.IntFlag{
						Name:  "target",
						Usage: "Target chunk size in characters",
						Value: 400,
					},
					&cli.IntFlag{
						Name:  "overlap",
						Usage: "Overlap between consecutive chunks in characters",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  "context",
						Usage: "Context window size in characters",
						Value: 2000,
					},
				},
			},
			{
				Name:   "purge-cache",
				Usage:  "Delete expired web search cache entries",
				Action: purgeCacheCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "path",
						Usage:   "Path to the cache database",
						Value:   "data/cache/exa.db",
						EnvVars: []string{"EXA_CACHE_PATH"},
					},
					&cli.IntFlag{
						Name:    "ttl-days",
						Usage:   "Entries older than this many days are removed",
						Value:   7,
						EnvVars: []string{"EXA_CACHE_TTL_DAYS"},
					},
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the shared service configuration. The ingest command
// needs the same database, index and queue settings as the server.
var loadConfig = config.Load
