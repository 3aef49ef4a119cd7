package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds every tunable the service consumes. Values resolve field by
// field: environment variable first, then the persisted settings file, then
// the built-in default.
type Config struct {
	Server  ServerConfig
	Readarr ReadarrConfig
	Books   BooksConfig
	Search  SearchConfig
	Browser BrowserConfig

	configFolder string
}

type ServerConfig struct {
	Port int
}

type ReadarrConfig struct {
	Address              string
	APIKey               string
	RootFolderPath       string
	APITimeout           time.Duration
	QualityProfileID     int
	MetadataProfileID    int
	SearchForMissingBook bool
	WaitDelay            time.Duration
}

type BooksConfig struct {
	APIKey string
}

type SearchConfig struct {
	MinimumRating  float64
	MinimumVotes   int
	ThreadLimit    int
	AutoStart      bool
	AutoStartDelay time.Duration
}

type BrowserConfig struct {
	Headless  bool
	WaitDelay time.Duration
}

// fileSettings mirrors the persisted settings file. Pointers distinguish
// "absent" from zero values during resolution.
type fileSettings struct {
	ReadarrAddress       *string  `json:"readarr_address,omitempty"`
	ReadarrAPIKey        *string  `json:"readarr_api_key,omitempty"`
	RootFolderPath       *string  `json:"root_folder_path,omitempty"`
	GoogleBooksAPIKey    *string  `json:"google_books_api_key,omitempty"`
	ReadarrAPITimeout    *float64 `json:"readarr_api_timeout,omitempty"`
	QualityProfileID     *int     `json:"quality_profile_id,omitempty"`
	MetadataProfileID    *int     `json:"metadata_profile_id,omitempty"`
	SearchForMissingBook *bool    `json:"search_for_missing_book,omitempty"`
	MinimumRating        *float64 `json:"minimum_rating,omitempty"`
	MinimumVotes         *int     `json:"minimum_votes,omitempty"`
	GoodreadsWaitDelay   *float64 `json:"goodreads_wait_delay,omitempty"`
	ReadarrWaitDelay     *float64 `json:"readarr_wait_delay,omitempty"`
	ThreadLimit          *int     `json:"thread_limit,omitempty"`
	AutoStart            *bool    `json:"auto_start,omitempty"`
	AutoStartDelay       *float64 `json:"auto_start_delay,omitempty"`
}

// Load resolves the configuration and writes the effective settings back to
// the settings file so a fresh install gets an editable template.
func Load(configFolder string) (*Config, error) {
	if configFolder == "" {
		configFolder = "config"
	}
	if err := os.MkdirAll(configFolder, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config folder: %w", err)
	}

	file := readSettingsFile(filepath.Join(configFolder, "settings.json"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("PORT", 5000),
		},
		Readarr: ReadarrConfig{
			Address:              getEnvOrFile("readarr_address", file.ReadarrAddress, "http://192.168.1.2:8787"),
			APIKey:               getEnvOrFile("readarr_api_key", file.ReadarrAPIKey, ""),
			RootFolderPath:       getEnvOrFile("root_folder_path", file.RootFolderPath, "/data/media/books"),
			APITimeout:           getEnvOrFileSeconds("readarr_api_timeout", file.ReadarrAPITimeout, 120*time.Second),
			QualityProfileID:     getEnvOrFileInt("quality_profile_id", file.QualityProfileID, 1),
			MetadataProfileID:    getEnvOrFileInt("metadata_profile_id", file.MetadataProfileID, 1),
			SearchForMissingBook: getEnvOrFileBool("search_for_missing_book", file.SearchForMissingBook, false),
			WaitDelay:            getEnvOrFileSeconds("readarr_wait_delay", file.ReadarrWaitDelay, 7500*time.Millisecond),
		},
		Books: BooksConfig{
			APIKey: getEnvOrFile("google_books_api_key", file.GoogleBooksAPIKey, ""),
		},
		Search: SearchConfig{
			MinimumRating:  getEnvOrFileFloat("minimum_rating", file.MinimumRating, 3.5),
			MinimumVotes:   getEnvOrFileInt("minimum_votes", file.MinimumVotes, 500),
			ThreadLimit:    getEnvOrFileInt("thread_limit", file.ThreadLimit, 1),
			AutoStart:      getEnvOrFileBool("auto_start", file.AutoStart, false),
			AutoStartDelay: getEnvOrFileSeconds("auto_start_delay", file.AutoStartDelay, 60*time.Second),
		},
		Browser: BrowserConfig{
			Headless:  getEnvBool("BROWSER_HEADLESS", true),
			WaitDelay: getEnvOrFileSeconds("goodreads_wait_delay", file.GoodreadsWaitDelay, 12500*time.Millisecond),
		},
		configFolder: configFolder,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.Save(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Search.ThreadLimit < 1 {
		return fmt.Errorf("thread_limit must be at least 1")
	}
	if c.Search.MinimumVotes < 0 {
		return fmt.Errorf("minimum_votes cannot be negative")
	}
	if c.Browser.WaitDelay <= 0 {
		return fmt.Errorf("goodreads_wait_delay must be positive")
	}
	return nil
}

// Save writes the current settings back to the settings file.
func (c *Config) Save() error {
	apiTimeout := c.Readarr.APITimeout.Seconds()
	readarrDelay := c.Readarr.WaitDelay.Seconds()
	goodreadsDelay := c.Browser.WaitDelay.Seconds()
	autoStartDelay := c.Search.AutoStartDelay.Seconds()

	out := fileSettings{
		ReadarrAddress:       &c.Readarr.Address,
		ReadarrAPIKey:        &c.Readarr.APIKey,
		RootFolderPath:       &c.Readarr.RootFolderPath,
		GoogleBooksAPIKey:    &c.Books.APIKey,
		ReadarrAPITimeout:    &apiTimeout,
		QualityProfileID:     &c.Readarr.QualityProfileID,
		MetadataProfileID:    &c.Readarr.MetadataProfileID,
		SearchForMissingBook: &c.Readarr.SearchForMissingBook,
		MinimumRating:        &c.Search.MinimumRating,
		MinimumVotes:         &c.Search.MinimumVotes,
		GoodreadsWaitDelay:   &goodreadsDelay,
		ReadarrWaitDelay:     &readarrDelay,
		ThreadLimit:          &c.Search.ThreadLimit,
		AutoStart:            &c.Search.AutoStart,
		AutoStartDelay:       &autoStartDelay,
	}

	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	path := filepath.Join(c.configFolder, "settings.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

func readSettingsFile(path string) fileSettings {
	var fs fileSettings
	data, err := os.ReadFile(path)
	if err != nil {
		return fs
	}
	// A corrupt settings file falls through to env/defaults.
	_ = json.Unmarshal(data, &fs)
	return fs
}

func getEnvOrFile(key string, file *string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if file != nil {
		return *file
	}
	return defaultValue
}

func getEnvOrFileInt(key string, file *int, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	if file != nil {
		return *file
	}
	return defaultValue
}

func getEnvOrFileFloat(key string, file *float64, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	if file != nil {
		return *file
	}
	return defaultValue
}

func getEnvOrFileBool(key string, file *bool, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	if file != nil {
		return *file
	}
	return defaultValue
}

// Delay-style settings persist as plain seconds, matching the settings file
// the service has always written.
func getEnvOrFileSeconds(key string, file *float64, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	if file != nil {
		return time.Duration(*file * float64(time.Second))
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
