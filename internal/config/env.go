package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "ESIM_"

// parseEnv loads dotenvPath when it exists (without overriding variables
// already set) and then applies ESIM_* variables to config.
func parseEnv(config *Config, dotenvPath string) error {
	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			if err := godotenv.Load(dotenvPath); err != nil {
				return err
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return applyEnv(config, os.LookupEnv)
}

func applyEnv(config *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LOG_LEVEL":                &config.LogLevel,
		"STORE":                    &config.Store,
		"DATABASE_DSN":             &config.DatabaseDSN,
		"AIRTABLE_API_KEY":         &config.AirtableAPIKey,
		"AIRTABLE_API_KEY_PARAM":   &config.AirtableAPIKeyParam,
		"AIRTABLE_BASE_ID":         &config.AirtableBaseID,
		"AIRTABLE_VIEW":            &config.AirtableView,
		"AIRTABLE_DONATIONS_TABLE": &config.AirtableDonationsTable,
		"AIRTABLE_PROVIDERS_TABLE": &config.AirtableProvidersTable,
		"AIRTABLE_INVENTORY_TABLE": &config.AirtableInventoryTable,
		"S3_ROOT_USER":             &config.S3RootUser,
		"S3_ROOT_PASSWORD":         &config.S3RootPassword,
		"S3_BUCKET":                &config.S3Bucket,
		"S3_REGION":                &config.S3Region,
		"S3_BASE_ENDPOINT":         &config.S3BaseEndpoint,
		"SQS_QUEUE_URL":            &config.SQSQueueURL,
		"DROPBOX_TOKEN":            &config.DropboxToken,
		"DROPBOX_TOKEN_PARAM":      &config.DropboxTokenParam,
		"DROPBOX_ROOT":             &config.DropboxRoot,
		"DROPBOX_APP_KEY_PARAM":    &config.DropboxAppKeyParam,
		"DROPBOX_APP_SECRET_PARAM": &config.DropboxAppSecretParam,
		"DROPBOX_REFRESH_PARAM":    &config.DropboxRefreshTokenParam,
		"LAYAN_URL":                &config.LayanURL,
		"LAYAN_USERNAME":           &config.LayanUsername,
		"LAYAN_USERNAME_PARAM":     &config.LayanUsernameParam,
		"LAYAN_PASSWORD":           &config.LayanPassword,
		"LAYAN_PASSWORD_PARAM":     &config.LayanPasswordParam,
		"LAYAN_TOKEN_PARAM":        &config.LayanTokenParam,
		"LAYAN_CUSTOMER_NAME":      &config.LayanCustomerName,
		"PUSHGATEWAY_URL":          &config.PushgatewayURL,
		"DEFAULT_CONTACT":          &config.DefaultContact,
		"FONT_PATH":                &config.FontPath,
	}
	for name, target := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*target = v
		}
	}

	ints := map[string]*int{
		"RESTOCK_AMOUNT": &config.RestockAmount,
		"ISSUE_WORKERS":  &config.IssueWorkers,
		"FETCH_RETRIES":  &config.FetchRetries,
	}
	for name, target := range ints {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*target = n
		}
	}

	durations := map[string]*time.Duration{
		"S3_PRESIGN_EXPIRY": &config.S3PresignExpiry,
		"FETCH_TIMEOUT":     &config.FetchTimeout,
	}
	for name, target := range durations {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*target = d
		}
	}

	if v, ok := lookup(envPrefix + "LOCK_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOCK_ENABLED: %w", envPrefix, err)
		}
		config.LockEnabled = b
	}
	return nil
}
