package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/apptest-runner/pkg/config"
	"github.com/devicelab-dev/apptest-runner/pkg/core"
	appiumdriver "github.com/devicelab-dev/apptest-runner/pkg/driver/appium"
	"github.com/devicelab-dev/apptest-runner/pkg/driver/mock"
	"github.com/devicelab-dev/apptest-runner/pkg/executor"
	"github.com/devicelab-dev/apptest-runner/pkg/jsengine"
	"github.com/devicelab-dev/apptest-runner/pkg/logger"
	"github.com/devicelab-dev/apptest-runner/pkg/report"
	"github.com/devicelab-dev/apptest-runner/pkg/script"
)

// logFileName is the log file created in the log directory.
const logFileName = "apptest-runner.log"

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run a test script on a device",
	ArgsUsage: "<script.yaml>",
	Description: `Run one YAML test script against an Appium session.

Configuration is read from --config, or from config.yaml next to the script.
Flags override the config file; APPIUM_URL and APPTEST_PLATFORM fill values
neither of them sets. Without any of these, the script's platform: field
picks the platform, then android.

Log messages and insert_data text are used as written unless --expand is
vars (${NAME} and $NAME for -e variables) or js (${expr} as JavaScript).

Reports are written to the report directory (default: ./reports):
  - REPORT_<timestamp>_<run id>.md
  - REPORT_<timestamp>_<run id>.json

Examples:
  apptest-runner run login.yaml
  apptest-runner run login.yaml -e USER=test -e PASS=secret
  apptest-runner run login.yaml --appium-url http://grid:4444/wd/hub --caps cloud.json
  apptest-runner run login.yaml --platform mock`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "platform",
			Aliases: []string{"p"},
			Usage:   "Platform to run on (android, ios, mock)",
		},
		&cli.StringFlag{
			Name:  "appium-url",
			Usage: "Appium server URL (default: " + config.DefaultAppiumURL + ")",
		},
		&cli.StringFlag{
			Name:  "caps",
			Usage: "Appium capabilities JSON file",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to config.yaml",
		},
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Script variables (KEY=VALUE)",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Report directory (default: ./reports)",
		},
		&cli.BoolFlag{
			Name:  "stop-on-failure",
			Usage: "Abort the run after the first failed step",
		},
		&cli.IntFlag{
			Name:  "find-timeout",
			Usage: "Milliseconds to poll for an element before it counts as missing",
		},
		&cli.StringFlag{
			Name:  "expand",
			Usage: "Text expansion: off, vars or js (default: off)",
		},
	},
	Action: runScript,
}

func runScript(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one script file is required", 2)
	}
	scriptPath := c.Args().First()
	out := newPrinter(c.App.Writer)

	cfg, err := loadRunConfig(c, scriptPath)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	if err := logger.Init(filepath.Join(cfg.LogDir, logFileName), lineageBool(c, "verbose")); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	s, err := script.ParseFile(scriptPath)
	if err != nil {
		logger.Error("parse %s: %v", scriptPath, err)
		reportParseFailure(out, cfg, scriptPath, err)
		return cli.Exit(err.Error(), 1)
	}
	if err := cfg.ResolvePlatform(s.Platform); err != nil {
		return cli.Exit(err.Error(), 2)
	}
	mode, err := jsengine.ParseMode(cfg.Expand)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, platform, cleanup, err := createDriver(ctx, cfg, out)
	if err != nil {
		logger.Error("create driver: %v", err)
		return cli.Exit(err.Error(), 1)
	}
	defer cleanup()

	out.header(s.DisplayName(), scriptPath, platformLabel(platform, s.Platform, driver))

	engine := executor.New(driver, executor.Config{
		Platform:          platform,
		ScreenshotDir:     cfg.ScreenshotDir,
		StopOnFailure:     cfg.StopOnFailure,
		ScrollMaxAttempts: cfg.ScrollMaxAttempts,
		ScrollSettle:      cfg.ScrollSettle(),
		Env:               cfg.Env,
		Expand:            mode,
		OnStepComplete:    out.stepComplete,
	})

	r, runErr := engine.Run(ctx, s)
	reportPath, writeErr := report.Write(cfg.ReportDir, r)
	if writeErr != nil {
		logger.Error("write report: %v", writeErr)
	}
	out.summary(r, reportPath)

	switch {
	case runErr != nil:
		return cli.Exit(fmt.Sprintf("run aborted: %v", runErr), 1)
	case writeErr != nil:
		return cli.Exit(writeErr.Error(), 1)
	case !r.Success():
		return cli.Exit(fmt.Sprintf("%d of %d steps failed", r.Failed, r.StepsExecuted), 1)
	}
	return nil
}

// reportParseFailure writes an aborted report with no steps for a script
// that could not be parsed.
func reportParseFailure(out *printer, cfg *config.Config, scriptPath string, parseErr error) {
	platform := cfg.Platform
	if platform == "" {
		platform = config.DefaultPlatform
	}
	b := report.NewBuilder(scriptPath, "", platform)
	b.Start()
	b.Note("⛔ Run aborted: " + parseErr.Error())
	r := b.Finalize(parseErr)

	reportPath, err := report.Write(cfg.ReportDir, r)
	if err != nil {
		logger.Error("write report: %v", err)
	}
	out.summary(r, reportPath)
}

// loadRunConfig merges, lowest first: defaults, environment, config file,
// flags. The platform is settled later, once the script is parsed.
func loadRunConfig(c *cli.Context, scriptPath string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(filepath.Dir(scriptPath))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("platform") {
		cfg.Platform = c.String("platform")
	}
	if c.IsSet("appium-url") {
		cfg.AppiumURL = c.String("appium-url")
	}
	if c.IsSet("caps") {
		cfg.CapabilitiesFile = c.String("caps")
	}
	if c.IsSet("output") {
		cfg.ReportDir = c.String("output")
	}
	if c.IsSet("stop-on-failure") {
		cfg.StopOnFailure = c.Bool("stop-on-failure")
	}
	if c.IsSet("find-timeout") {
		cfg.FindTimeoutMs = c.Int("find-timeout")
	}
	if c.IsSet("expand") {
		cfg.Expand = c.String("expand")
	}

	env := make(map[string]string, len(cfg.Env))
	for k, v := range cfg.Env {
		env[k] = v
	}
	for k, v := range parseEnvVars(c.StringSlice("env")) {
		env[k] = v // CLI overrides config file
	}
	cfg.Env = env

	cfg.ApplyEnv(nil)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDriver returns the driver, the platform label for the engine (empty
// lets the engine ask the driver) and a cleanup function.
func createDriver(ctx context.Context, cfg *config.Config, out *printer) (core.Driver, string, func(), error) {
	if cfg.Platform == "mock" {
		logger.Info("using mock driver")
		return mock.New(mock.Config{MatchAll: true}), "", func() {}, nil
	}

	caps, err := cfg.ResolveCapabilities()
	if err != nil {
		return nil, "", nil, err
	}

	out.setup(fmt.Sprintf("Connecting to Appium server: %s", cfg.AppiumURL))
	logger.Info("creating Appium session at %s with capabilities: %v", cfg.AppiumURL, redactCapabilities(caps))
	driver, err := appiumdriver.NewDriver(ctx, cfg.AppiumURL, caps, nil)
	if err != nil {
		return nil, "", nil, fmt.Errorf("create Appium session: %w", err)
	}
	driver.SetFindTimeout(cfg.FindTimeoutMs)

	cleanup := func() {
		if err := driver.Close(); err != nil {
			logger.Warn("close session: %v", err)
		}
	}
	return driver, cfg.Platform, cleanup, nil
}

// secretCapability matches capability names that carry credentials, such as
// accessKey, apiKey or sauce:token.
var secretCapability = regexp.MustCompile(`(?i)(key$|token|secret|password)`)

// redactCapabilities returns a copy of caps safe to log.
func redactCapabilities(caps map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(caps))
	for k, v := range caps {
		if secretCapability.MatchString(k) {
			v = "***"
		}
		out[k] = v
	}
	return out
}

func platformLabel(platform, scriptPlatform string, driver core.Driver) string {
	if platform != "" {
		return platform
	}
	if scriptPlatform != "" {
		return strings.ToLower(scriptPlatform)
	}
	if pd, ok := driver.(core.PlatformDescriber); ok {
		if info := pd.GetPlatformInfo(); info != nil {
			return info.Platform
		}
	}
	return config.DefaultPlatform
}

func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 && parts[0] != "" {
			result[parts[0]] = parts[1]
		}
	}
	return result
}
