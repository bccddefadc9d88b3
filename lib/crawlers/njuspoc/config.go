package njuspoc

import (
	"spoccrawler/lib/configutil"
	"spoccrawler/lib/ocr"
	"spoccrawler/lib/platforms/njuauth"
	"spoccrawler/lib/platforms/spoc"
)

type Config struct {
	AuthUrl     string `json:"auth_url"`
	PlatformUrl string `json:"platform_url"`
	// endpoint of the captcha recognition service, logins that need a
	// captcha fail if this is empty.
	OcrUrl string `json:"ocr_url"`
	// "raw" posts the base64 image as the body, "json" wraps it as {"image": ...}
	OcrFormat string `json:"ocr_format"`
	// text preceding the due date in assignment listings
	DueLabel string `json:"due_label"`
	// number of courses fetched concurrently
	Workers           int     `json:"workers"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	BypassCloudflare  bool    `json:"bypass_cloudflare"`
}

func DefaultConfig() Config {
	return Config{
		AuthUrl:           njuauth.DefaultAuthBaseUrl,
		PlatformUrl:       njuauth.DefaultPlatformBaseUrl,
		OcrFormat:         string(ocr.FormatRaw),
		DueLabel:          spoc.DefaultDueLabel,
		Workers:           4,
		RequestsPerSecond: 10,
	}
}

// withDefaults fills the zero fields of `config` from DefaultConfig.
func (config Config) withDefaults() (Config, error) {
	return configutil.WithDefaults(config, DefaultConfig())
}
