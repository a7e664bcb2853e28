package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/esimrouter/internal/flagx"
)

// parseFlags overlays the flags this package owns.
//
//	-l string   log level
//	-store      record store (postgres|airtable)
//	-d string   PostgreSQL DSN
//	-b string   S3 bucket
//	-e string   S3 base endpoint
//	-q string   SQS queue URL
//	-n int      restock amount
//	-w int      concurrent issuance workers
//	-nolock     disable the run lock
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-l", "-store", "-d", "-b", "-e", "-q", "-n", "-w", "-nolock"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.Store, "store", config.Store, "record store")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.SQSQueueURL, "q", config.SQSQueueURL, "SQS queue URL")
	fs.IntVar(&config.RestockAmount, "n", config.RestockAmount, "eSIMs to issue per low provider")
	fs.IntVar(&config.IssueWorkers, "w", config.IssueWorkers, "concurrent issuance workers")
	noLock := fs.Bool("nolock", !config.LockEnabled, "disable the run lock")

	if err := fs.Parse(args); err != nil {
		return err
	}
	config.LockEnabled = !*noLock
	return nil
}
