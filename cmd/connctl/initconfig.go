package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"connstatus/internal/config"
)

// configTemplate 生成配置所需的参数
type configTemplate struct {
	Name           string
	Origin         string
	AlivePath      string
	ExpectBody     string
	ProbeTimeout   string
	RetryThreshold int
	PollInterval   string
	Port           string
	StorageType    string
	SQLitePath     string
	WebhookURL     string
}

func defaultTemplate() configTemplate {
	return configTemplate{
		Name:           "backend",
		Origin:         "http://127.0.0.1:8080",
		AlivePath:      "/alive",
		ExpectBody:     "OK",
		ProbeTimeout:   config.DefaultProbeTimeout.String(),
		RetryThreshold: config.DefaultRetryThreshold,
		PollInterval:   config.DefaultPollInterval.String(),
		Port:           "8080",
		StorageType:    "sqlite",
		SQLitePath:     "connstatus.db",
	}
}

// quoteYAML 把字符串编码为 YAML 双引号标量
func quoteYAML(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if ch < 0x20 {
				fmt.Fprintf(&b, `\x%02x`, ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// renderConfig 生成 YAML 并用正式解析流程校验
func renderConfig(t configTemplate) (string, error) {
	var sb strings.Builder
	sb.WriteString("# connstatus 配置文件\n")
	sb.WriteString("# 由 connctl init 生成\n\n")

	sb.WriteString("target:\n")
	fmt.Fprintf(&sb, "  name: %s\n", quoteYAML(t.Name))
	fmt.Fprintf(&sb, "  origin: %s\n", quoteYAML(t.Origin))
	fmt.Fprintf(&sb, "  alive_path: %s\n", quoteYAML(t.AlivePath))
	fmt.Fprintf(&sb, "  expect_body: %s\n\n", quoteYAML(t.ExpectBody))

	sb.WriteString("connection_status:\n")
	fmt.Fprintf(&sb, "  probe_timeout: %s\n", quoteYAML(t.ProbeTimeout))
	fmt.Fprintf(&sb, "  retry_threshold: %d\n", t.RetryThreshold)
	fmt.Fprintf(&sb, "  poll_interval: %s\n\n", quoteYAML(t.PollInterval))

	sb.WriteString("server:\n")
	fmt.Fprintf(&sb, "  port: %s\n\n", quoteYAML(t.Port))

	if t.WebhookURL != "" {
		sb.WriteString("notify:\n")
		fmt.Fprintf(&sb, "  webhook_url: %s\n\n", quoteYAML(t.WebhookURL))
	}

	sb.WriteString("storage:\n")
	fmt.Fprintf(&sb, "  type: %s\n", quoteYAML(t.StorageType))
	if t.StorageType == "sqlite" {
		sb.WriteString("  sqlite:\n")
		fmt.Fprintf(&sb, "    path: %s\n", quoteYAML(t.SQLitePath))
	}

	out := sb.String()
	if _, err := config.Parse([]byte(out)); err != nil {
		return "", err
	}
	return out, nil
}

var (
	initTemplate = defaultTemplate()
	initOutput   string
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a config file",
	Long: `Generate a validated config file.

Examples:
  # Print to stdout
  connctl init

  # Write config.yaml for a backend on port 3000
  connctl init --origin http://127.0.0.1:3000 -o config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := renderConfig(initTemplate)
		if err != nil {
			return err
		}
		if initOutput == "" {
			fmt.Print(out)
			return nil
		}
		if !initForce {
			if _, err := os.Stat(initOutput); err == nil {
				return fmt.Errorf("%s 已存在，使用 --force 覆盖", initOutput)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		if err := os.WriteFile(initOutput, []byte(out), 0o644); err != nil {
			return fmt.Errorf("写入文件失败: %w", err)
		}
		fmt.Printf("%s %s\n", green("Config written to"), initOutput)
		return nil
	},
}

func init() {
	f := initCmd.Flags()
	f.StringVar(&initTemplate.Name, "name", initTemplate.Name, "Target name")
	f.StringVar(&initTemplate.Origin, "origin", initTemplate.Origin, "Backend origin")
	f.StringVar(&initTemplate.AlivePath, "alive-path", initTemplate.AlivePath, "Liveness path")
	f.StringVar(&initTemplate.ExpectBody, "expect-body", initTemplate.ExpectBody, "Expected alive response body, compared exactly")
	f.StringVar(&initTemplate.ProbeTimeout, "probe-timeout", initTemplate.ProbeTimeout, "Probe timeout")
	f.IntVar(&initTemplate.RetryThreshold, "threshold", initTemplate.RetryThreshold, "Retry threshold")
	f.StringVar(&initTemplate.PollInterval, "interval", initTemplate.PollInterval, "Poll interval")
	f.StringVar(&initTemplate.Port, "port", initTemplate.Port, "HTTP port")
	f.StringVar(&initTemplate.StorageType, "storage", initTemplate.StorageType, "Storage type (sqlite|postgres)")
	f.StringVar(&initTemplate.SQLitePath, "sqlite-path", initTemplate.SQLitePath, "SQLite file path")
	f.StringVar(&initTemplate.WebhookURL, "webhook", "", "Webhook URL for notifications")
	f.StringVarP(&initOutput, "output", "o", "", "Output file (default stdout)")
	f.BoolVar(&initForce, "force", false, "Overwrite existing file")
	rootCmd.AddCommand(initCmd)
}
