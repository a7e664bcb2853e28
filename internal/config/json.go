package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/esimrouter/internal/flagx"
	"github.com/dmitrijs2005/esimrouter/internal/timex"
)

// JsonConfig is the on-disk shape of the optional config file. Pointer
// fields distinguish "absent" from "zero" so a partial file only overrides
// what it names.
type JsonConfig struct {
	LogLevel            *string                 `json:"log_level"`
	Store               *string                 `json:"store"`
	DatabaseDSN         *string                 `json:"database_dsn"`
	LockEnabled         *bool                   `json:"lock_enabled"`
	AirtableBaseID      *string                 `json:"airtable_base_id"`
	AirtableAPIKeyParam *string                 `json:"airtable_api_key_param"`
	AirtableView        *string                 `json:"airtable_view"`
	S3Bucket            *string                 `json:"s3_bucket"`
	S3Region            *string                 `json:"s3_region"`
	S3BaseEndpoint      *string                 `json:"s3_base_endpoint"`
	S3PresignExpiry     *timex.Duration         `json:"s3_presign_expiry"`
	SQSQueueURL         *string                 `json:"sqs_queue_url"`
	DropboxRoot         *string                 `json:"dropbox_root"`
	DropboxTokenParam   *string                 `json:"dropbox_token_param"`
	DropboxAppKeyParam  *string                 `json:"dropbox_app_key_param"`
	DropboxSecretParam  *string                 `json:"dropbox_app_secret_param"`
	DropboxRefreshParam *string                 `json:"dropbox_refresh_token_param"`
	LayanURL            *string                 `json:"layan_url"`
	LayanUsernameParam  *string                 `json:"layan_username_param"`
	LayanPasswordParam  *string                 `json:"layan_password_param"`
	LayanTokenParam     *string                 `json:"layan_token_param"`
	LayanCustomerName   *string                 `json:"layan_customer_name"`
	LayanPackages       map[string]LayanPackage `json:"layan_packages"`
	RestockAmount       *int                    `json:"restock_amount"`
	IssueWorkers        *int                    `json:"issue_workers"`
	PushgatewayURL      *string                 `json:"pushgateway_url"`
	DefaultContact      *string                 `json:"default_contact"`
	FetchTimeout        *timex.Duration         `json:"fetch_timeout"`
	FetchRetries        *int                    `json:"fetch_retries"`
	FontPath            *string                 `json:"font_path"`
}

// parseJson overlays the JSON file named by -c/-config in args. Without
// such a flag nothing is loaded.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.LogLevel, c.LogLevel)
	setString(&config.Store, c.Store)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	if c.LockEnabled != nil {
		config.LockEnabled = *c.LockEnabled
	}
	setString(&config.AirtableBaseID, c.AirtableBaseID)
	setString(&config.AirtableAPIKeyParam, c.AirtableAPIKeyParam)
	setString(&config.AirtableView, c.AirtableView)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.S3PresignExpiry != nil {
		config.S3PresignExpiry = c.S3PresignExpiry.Duration
	}
	setString(&config.SQSQueueURL, c.SQSQueueURL)
	setString(&config.DropboxRoot, c.DropboxRoot)
	setString(&config.DropboxTokenParam, c.DropboxTokenParam)
	setString(&config.DropboxAppKeyParam, c.DropboxAppKeyParam)
	setString(&config.DropboxAppSecretParam, c.DropboxSecretParam)
	setString(&config.DropboxRefreshTokenParam, c.DropboxRefreshParam)
	setString(&config.LayanURL, c.LayanURL)
	setString(&config.LayanUsernameParam, c.LayanUsernameParam)
	setString(&config.LayanPasswordParam, c.LayanPasswordParam)
	setString(&config.LayanTokenParam, c.LayanTokenParam)
	setString(&config.LayanCustomerName, c.LayanCustomerName)
	for name, p := range c.LayanPackages {
		config.LayanPackages[name] = p
	}
	setInt(&config.RestockAmount, c.RestockAmount)
	setInt(&config.IssueWorkers, c.IssueWorkers)
	setString(&config.PushgatewayURL, c.PushgatewayURL)
	setString(&config.DefaultContact, c.DefaultContact)
	if c.FetchTimeout != nil {
		config.FetchTimeout = c.FetchTimeout.Duration
	}
	setInt(&config.FetchRetries, c.FetchRetries)
	setString(&config.FontPath, c.FontPath)

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
