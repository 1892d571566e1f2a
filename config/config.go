// Package config holds settings shared by the record and attachment stores,
// the HTTP server and the backup mirror.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/kjk/testdesk/u"
)

const (
	DefaultTableFileName      = "database.xlsx"
	DefaultAttachmentsDirName = "attachments"
	DefaultMaxFileSize        = 10 * 1024 * 1024
	DefaultHTTPAddr           = ":8080"
)

// DefaultAllowedExtensions are attachment types accepted for upload:
// pdf, word, excel and common image formats
var DefaultAllowedExtensions = []string{
	".pdf",
	".doc", ".docx",
	".xls", ".xlsx",
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp",
}

// BackupConfig describes S3-compatible storage the data is mirrored to.
// Backups are disabled if Bucket is empty.
type BackupConfig struct {
	Endpoint string
	Region   string
	Bucket   string
	Access   string
	Secret   string
	Insecure bool
}

func (c *BackupConfig) Enabled() bool {
	return c != nil && c.Bucket != ""
}

type Config struct {
	// directory with the table file and attachments directory
	DataDir            string
	TableFileName      string
	AttachmentsDirName string

	// lower-case, with leading dot
	AllowedExtensions []string
	MaxFileSize       int64

	// allowed values for the department and progress fields.
	// empty means any value is accepted
	Departments []string
	Progress    []string
	// fields that must be present when creating a record.
	// nil means the default list of the records package
	RequiredFields []string

	HTTPAddr string
	// if empty, logs only go to stdout
	LogDir string

	Backup BackupConfig
}

// Default returns configuration with all defaults filled in, rooted at dataDir
func Default(dataDir string) *Config {
	return &Config{
		DataDir:            dataDir,
		TableFileName:      DefaultTableFileName,
		AttachmentsDirName: DefaultAttachmentsDirName,
		AllowedExtensions:  slices.Clone(DefaultAllowedExtensions),
		MaxFileSize:        DefaultMaxFileSize,
		HTTPAddr:           DefaultHTTPAddr,
	}
}

// TablePath is the path of the persisted record table
func (c *Config) TablePath() string {
	return filepath.Join(c.DataDir, c.TableFileName)
}

// AttachmentsDir is the root of per-application-number attachment folders
func (c *Config) AttachmentsDir() string {
	return filepath.Join(c.DataDir, c.AttachmentsDirName)
}

// IsAllowedExt returns true if extension of name is one of AllowedExtensions.
// Comparison is case-insensitive.
func (c *Config) IsAllowedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	return slices.Contains(c.AllowedExtensions, ext)
}

// Load returns Default("data") updated with values from .env style file
// at envPath (skipped if envPath is "") and then from environment variables.
// Environment variables win over the file.
func Load(envPath string) (*Config, error) {
	vals := map[string]string{}
	if envPath != "" {
		d, err := os.ReadFile(envPath)
		if err != nil {
			return nil, err
		}
		vals, err = u.ParseEnv(d)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envPath, err)
		}
	}
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, envPrefix) && v != "" {
			vals[k] = v
		}
	}
	c := Default("data")
	if err := c.apply(vals); err != nil {
		return nil, err
	}
	return c, nil
}

const envPrefix = "TESTDESK_"

func (c *Config) apply(vals map[string]string) error {
	get := func(k string, dst *string) {
		if v := vals[envPrefix+k]; v != "" {
			*dst = v
		}
	}
	getList := func(k string, dst *[]string) {
		if v := vals[envPrefix+k]; v != "" {
			*dst = u.SplitTrimmed(v, ",")
		}
	}
	get("DATA_DIR", &c.DataDir)
	get("TABLE_FILE", &c.TableFileName)
	get("ATTACHMENTS_DIR", &c.AttachmentsDirName)
	get("ADDR", &c.HTTPAddr)
	get("LOG_DIR", &c.LogDir)
	getList("DEPARTMENTS", &c.Departments)
	getList("PROGRESS", &c.Progress)
	getList("REQUIRED_FIELDS", &c.RequiredFields)

	var exts []string
	getList("ALLOWED_EXTENSIONS", &exts)
	if len(exts) > 0 {
		c.AllowedExtensions = c.AllowedExtensions[:0]
		for _, ext := range exts {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			c.AllowedExtensions = append(c.AllowedExtensions, ext)
		}
	}

	if v := vals[envPrefix+"MAX_FILE_SIZE"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid %sMAX_FILE_SIZE '%s'", envPrefix, v)
		}
		c.MaxFileSize = n
	}

	b := &c.Backup
	get("BACKUP_ENDPOINT", &b.Endpoint)
	get("BACKUP_REGION", &b.Region)
	get("BACKUP_BUCKET", &b.Bucket)
	get("BACKUP_ACCESS", &b.Access)
	get("BACKUP_SECRET", &b.Secret)
	if v := vals[envPrefix+"BACKUP_INSECURE"]; v != "" {
		insecure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sBACKUP_INSECURE '%s'", envPrefix, v)
		}
		b.Insecure = insecure
	}
	return nil
}
