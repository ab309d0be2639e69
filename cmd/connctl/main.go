// connctl 连接状态命令行工具：一次性探测、本地轮询观察、查询服务端事件
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"connstatus/internal/buildinfo"
	"connstatus/internal/config"
	"connstatus/internal/logger"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "connctl",
	Short:         "Backend connection status tool",
	Version:       buildinfo.GetVersion(),
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if debug {
			level = "debug"
		}
		logger.ConfigureOutput(os.Stderr, level, "text")
		_, err := config.LoadDotenvFromConfigDir(configPath)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// loadConfig 读取配置；文件不存在时使用默认值（仍应用环境变量）
func loadConfig() (*config.AppConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		logger.Debug("connctl", "配置文件不存在，使用默认配置", "file", configPath)
		data = nil
	}
	return config.Parse(data)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}
