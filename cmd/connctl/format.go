package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"connstatus/internal/listeners"
	"connstatus/internal/monitor"
	"connstatus/internal/status"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// formatProbe 单次探测结果
func formatProbe(r *monitor.ProbeResult) string {
	if r.Success {
		return fmt.Sprintf("%s %s %s", green("OK  "), r.Target, gray(fmt.Sprintf("http=%d latency=%dms", r.HttpCode, r.Latency)))
	}
	detail := string(r.Kind)
	if r.HttpCode != 0 {
		detail = fmt.Sprintf("%s http=%d", detail, r.HttpCode)
	}
	return fmt.Sprintf("%s %s %s", red("FAIL"), r.Target, gray(detail))
}

// stateLabel 状态文字（带颜色）
func stateLabel(s status.ConnectionState) string {
	if s == status.ConnectionLost {
		return red(s.String())
	}
	return green(s.String())
}

// healthLabel 健康度按状态栏分档着色
func healthLabel(health int) string {
	text := fmt.Sprintf("%3d%%", health)
	switch listeners.StatusIcon(health) {
	case "smile-o":
		return green(text)
	case "meh-o", "frown-o":
		return yellow(text)
	default:
		return red(text)
	}
}

// formatEvent 一次状态事件；changed 为 true 时高亮
func formatEvent(at time.Time, e status.ChangeEvent, changed bool) string {
	line := fmt.Sprintf("%s %s %s", gray(at.Format("15:04:05")), healthLabel(e.Health), stateLabel(e.State))
	if changed {
		return bold(line + "  <- state changed")
	}
	return line
}
