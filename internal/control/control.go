package control

import (
	"github.com/vietddude/overseer/internal/core/config"
	redisclient "github.com/vietddude/overseer/internal/infra/redis"
	"github.com/vietddude/overseer/internal/infra/storage/postgres"
)

// Config holds the application configuration.
type Config struct {
	Port        int
	Redis       redisclient.Config
	Database    postgres.Config
	Boot        config.BootConfig
	Heartbeat   config.HeartbeatConfig
	Recognition config.RecognitionConfig
	Playbooks   config.PlaybookConfig
	Harness     config.HarnessConfig
	Retention   config.RetentionConfig
	Units       []config.UnitConfig

	HarnessEnabled bool // CLI flag, ANDed with Harness.Enabled
}

// FromApp maps the loaded file configuration onto the control config.
func FromApp(app *config.AppConfig) Config {
	return Config{
		Port:        app.Server.Port,
		Redis:       app.Redis,
		Database:    app.Database,
		Boot:        app.Boot,
		Heartbeat:   app.Heartbeat,
		Recognition: app.Recognition,
		Playbooks:   app.Playbooks,
		Harness:     app.Harness,
		Retention:   app.Retention,
		Units:       app.Units,
	}
}
