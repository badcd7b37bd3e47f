// Package main은 mctl CLI의 진입점입니다.
// Mission Control 게이트웨이와 WebSocket으로 통신하는 클라이언트입니다.
package main

import (
	"os"

	"github.com/lstailors/LST-MissionControl-sub000/cmd"
)

// 빌드 시 ldflags로 주입되는 버전 정보
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
