// Package buildinfo 保存构建期通过 -ldflags 注入的版本信息
//
//	go build -ldflags "-X connstatus/internal/buildinfo.Version=v1.2.0 -X connstatus/internal/buildinfo.GitCommit=$(git rev-parse --short HEAD)"
package buildinfo

import "runtime"

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// GetVersion 返回版本号
func GetVersion() string {
	return Version
}

// GetGitCommit 返回构建时的 git commit
func GetGitCommit() string {
	return GitCommit
}

// GetBuildTime 返回构建时间
func GetBuildTime() string {
	return BuildTime
}

// GetGoVersion 返回编译所用的 Go 版本
func GetGoVersion() string {
	return runtime.Version()
}
