package pipeline

import (
	"time"

	"github.com/idcs-tools/scimctl/internal/config"
)

func testConfig(url string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.IAMURL = url
	cfg.ClientID = "client"
	cfg.ClientSecret = "secret"
	cfg.Timeout = 5 * time.Second
	return cfg
}
