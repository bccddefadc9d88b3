package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"spoccrawler/lib/configutil"
	"spoccrawler/lib/crawlers/njuspoc"
	"spoccrawler/lib/ddlstore"
	"spoccrawler/lib/notify"
	"spoccrawler/lib/restyutil"
)

type Config struct {
	Account  string          `json:"account"`
	Password string          `json:"password"`
	Crawler  njuspoc.Config  `json:"crawler"`
	Db       ddlstore.Config `json:"db"`
	Notify   notify.Config   `json:"notify"`
	// schedule of the watch command, in cron syntax
	Cron string `json:"cron"`
}

// loadConfig reads the --config file, a missing file is an empty config.
// SPOC_ACCOUNT and SPOC_PASSWORD override the credential in the file.
func loadConfig() (Config, error) {
	config, err := configutil.ReadConfig[Config](configPath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no config file found, using defaults", "path", configPath)
		err = nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if account := os.Getenv("SPOC_ACCOUNT"); account != "" {
		config.Account = account
	}
	if password := os.Getenv("SPOC_PASSWORD"); password != "" {
		config.Password = password
	}
	return config, nil
}

func (c Config) fields() map[string]string {
	return map[string]string{
		"account":  c.Account,
		"password": c.Password,
	}
}

func httpOutput() (restyutil.InstrumentOutput, error) {
	if dumpHttp == "" {
		return nil, nil
	}
	output, err := restyutil.NewFilesystemOutput(dumpHttp)
	if err != nil {
		return nil, err
	}
	return output, nil
}

func newCrawler(config Config) (*njuspoc.Crawler, error) {
	output, err := httpOutput()
	if err != nil {
		return nil, err
	}
	return njuspoc.New(njuspoc.Options{
		Config: config.Crawler,
		Output: output,
	})
}
