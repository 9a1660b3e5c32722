package main

import (
	"github.com/spf13/cobra"

	"cdprpa/internal/config"
	"cdprpa/internal/logger"
	"cdprpa/pkg/api"
)

// app 命令共享的配置与日志
type app struct {
	configPath string
	devtools   string
	launch     bool
	headless   bool

	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "rpa",
		Short:         "Browser automation with explicit waits and download tracking",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "config.yaml", "config file")
	flags.StringVar(&a.devtools, "devtools", "", "DevTools endpoint of a running browser")
	flags.BoolVar(&a.launch, "launch", false, "launch a new browser instead of attaching")
	flags.BoolVar(&a.headless, "headless", false, "run the launched browser headless")

	root.AddCommand(
		newLaunchCmd(a),
		newWaitCmd(a),
		newDownloadCmd(a),
		newScreenshotCmd(a),
		newKindsCmd(),
	)
	return root
}

// load 读取配置文件并应用命令行覆盖
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.devtools != "" {
		cfg.Browser.DevToolsURL = a.devtools
	}
	if cmd.Flags().Changed("launch") {
		cfg.Browser.Launch = a.launch
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = a.headless
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(logger.Options{Level: cfg.Log.Level, Writer: cfg.Log.Writer, File: cfg.Log.File})
	return nil
}

func (a *app) service() (api.Service, error) {
	return api.NewService(a.cfg, a.log)
}
