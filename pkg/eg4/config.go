package eg4

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/levenlabs/go-lflag"
)

// Configured registers the eg4 flags and returns a Config that is filled in
// once lflag.Configure runs. Flag defaults come from the EG4_* environment
// variables so a .env file loaded beforehand is honored.
func Configured() *Config {
	username := lflag.String("eg4-username", os.Getenv("EG4_USERNAME"), "EG4 monitor account name")
	password := lflag.String("eg4-password", os.Getenv("EG4_PASSWORD"), "EG4 monitor password")
	serial := lflag.String("eg4-serial-number", os.Getenv("EG4_SERIAL_NUMBER"), "Inverter serial number (optional, defaults to the inverter at eg4-inverter-index)")
	plantID := lflag.String("eg4-plant-id", os.Getenv("EG4_PLANT_ID"), "Plant ID of the inverter (optional)")
	baseURL := lflag.String("eg4-base-url", envOr("EG4_BASE_URL", DefaultBaseURL), "Base URL of the EG4 monitor")
	index := lflag.String("eg4-inverter-index", envOr("EG4_INVERTER_INDEX", "0"), "Index of the inverter to use when no serial number is given")
	insecure := lflag.Bool("eg4-disable-verify-ssl", os.Getenv("EG4_DISABLE_VERIFY_SSL") == "1", "Skip TLS certificate verification")
	timeout := lflag.Duration("eg4-timeout", DefaultTimeout, "Timeout for each request to the EG4 monitor")
	reauth := lflag.Bool("eg4-reauth", false, "Log in again once when the session expires")

	cfg := &Config{}

	lflag.Do(func() {
		i, err := strconv.Atoi(*index)
		if err != nil {
			panic(fmt.Sprintf("invalid eg4-inverter-index %q: %v", *index, err))
		}
		*cfg = Config{
			Username:           *username,
			Password:           *password,
			BaseURL:            *baseURL,
			SerialNumber:       *serial,
			PlantID:            *plantID,
			InverterIndex:      i,
			Timeout:            *timeout,
			InsecureSkipVerify: *insecure,
			ReauthOnExpiry:     *reauth,
		}
	})

	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ConfigFromEnv builds a Config from the EG4_* environment variables, for test
// harnesses that do not parse flags.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Username:           os.Getenv("EG4_USERNAME"),
		Password:           os.Getenv("EG4_PASSWORD"),
		BaseURL:            envOr("EG4_BASE_URL", DefaultBaseURL),
		SerialNumber:       os.Getenv("EG4_SERIAL_NUMBER"),
		PlantID:            os.Getenv("EG4_PLANT_ID"),
		InsecureSkipVerify: os.Getenv("EG4_DISABLE_VERIFY_SSL") == "1",
		Timeout:            DefaultTimeout,
	}
	if v := os.Getenv("EG4_INVERTER_INDEX"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid EG4_INVERTER_INDEX %q: %w", v, err)
		}
		cfg.InverterIndex = i
	}
	if v := os.Getenv("EG4_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid EG4_TIMEOUT %q: %w", v, err)
		}
		cfg.Timeout = d
	}
	return cfg, cfg.Validate()
}
