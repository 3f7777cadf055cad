package main

import (
	apihttp "github.com/aveeno350-ctrl/hook-script-studio/adapters/http"
	"github.com/aveeno350-ctrl/hook-script-studio/bootstrap"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the Hook Script Studio server.

The server will:
  - Load configuration from hookstudio.yaml (or --config)
  - Or load configuration from environment variables
  - Open the configured counter store
  - Serve /api/generate, /api/metrics/*, /admin and /health

Environment variables (for container deployments):
  HSS_SECRET               - Usage token signing secret
  ADMIN_KEY                - Admin dashboard key
  OPENAI_API_KEY           - Text provider API key
  KV_REST_API_URL          - REST counter store URL (selects the kvrest backend)
  KV_REST_API_TOKEN        - REST counter store token
  HOOKSTUDIO_SERVER_PORT   - Server port (default: 8080)
  HOOKSTUDIO_LOG_LEVEL     - Log level: debug, info, warn, error

Examples:
  hookstudio serve
  hookstudio serve --config /etc/hookstudio/config.yaml
  hookstudio serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload dashboard keys, rate limits and log level on file change or SIGHUP")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: cfgFile,
		HotReload:  hotReload,
		Version: apihttp.VersionResponse{
			Version: version,
			Commit:  commit,
		},
	})
	if err != nil {
		return err
	}

	return app.Run()
}
