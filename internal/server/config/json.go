package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dkravets/bankvault/internal/flagx"
	"github.com/dkravets/bankvault/internal/timex"
)

// JsonConfig is the DTO for the optional JSON config file. Interval fields
// use timex.Duration so both "90s" strings and integer nanoseconds parse.
// Zero-valued fields leave the target Config untouched.
type JsonConfig struct {
	DatabaseDSN                  string         `json:"database_dsn"`
	EncryptionKey                string         `json:"encryption_key"`
	EncryptionKeyFile            string         `json:"encryption_key_file"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	GalleryPrefix                string         `json:"gallery_prefix"`
	GalleryDir                   string         `json:"gallery_dir"`
	MatchThreshold               float64        `json:"match_threshold"`
	MatchTimeout                 timex.Duration `json:"match_timeout"`
	MatchWorkers                 int64          `json:"match_workers"`
	MaxImageBytes                int64          `json:"max_image_bytes"`
	ScratchDir                   string         `json:"scratch_dir"`
	StrictDetection              bool           `json:"strict_detection"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. Absent flag means no file is
// loaded; an unreadable or invalid file panics, since running with half a
// config is worse than not starting.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	applyJson(config, c)
}

func applyJson(config *Config, c *JsonConfig) {
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.EncryptionKey != "" {
		config.EncryptionKey = c.EncryptionKey
	}
	if c.EncryptionKeyFile != "" {
		config.EncryptionKeyFile = c.EncryptionKeyFile
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = time.Duration(c.RefreshTokenValidityDuration.Duration)
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
	if c.GalleryPrefix != "" {
		config.GalleryPrefix = c.GalleryPrefix
	}
	if c.GalleryDir != "" {
		config.GalleryDir = c.GalleryDir
	}
	if c.MatchThreshold != 0 {
		config.MatchThreshold = c.MatchThreshold
	}
	if c.MatchTimeout.Duration != 0 {
		config.MatchTimeout = time.Duration(c.MatchTimeout.Duration)
	}
	if c.MatchWorkers != 0 {
		config.MatchWorkers = c.MatchWorkers
	}
	if c.MaxImageBytes != 0 {
		config.MaxImageBytes = c.MaxImageBytes
	}
	if c.ScratchDir != "" {
		config.ScratchDir = c.ScratchDir
	}
	if c.StrictDetection {
		config.StrictDetection = true
	}
}
