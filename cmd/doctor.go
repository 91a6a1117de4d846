package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/larkbridge/internal/config"
	"github.com/nextlevelbuilder/larkbridge/internal/feishu"
	"github.com/nextlevelbuilder/larkbridge/internal/gateway"
	"github.com/nextlevelbuilder/larkbridge/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("larkbridge doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults + env apply)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid: %s\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println("  Feishu:")
	fmt.Printf("    %-12s %s\n", "App ID:", cfg.Feishu.AppID)
	fmt.Printf("    %-12s %s\n", "Domain:", feishu.ResolveDomain(cfg.Feishu.Domain))
	lark := feishu.NewLarkClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, cfg.Feishu.Domain)
	if openID, err := lark.GetBotInfo(ctx); err != nil {
		fmt.Printf("    %-12s FAILED (%s)\n", "API:", err)
	} else {
		fmt.Printf("    %-12s OK (bot %s)\n", "API:", openID)
	}

	fmt.Println()
	fmt.Println("  Gateway:")
	fmt.Printf("    %-12s %s\n", "URL:", cfg.Gateway.URL)
	gw := gateway.New(gateway.Config{
		URL:       cfg.Gateway.URL,
		Token:     cfg.Gateway.Token,
		Locale:    cfg.Gateway.Locale,
		UserAgent: "larkbridge/" + Version,
	}, nil)
	if err := gw.Handshake(ctx); err != nil {
		fmt.Printf("    %-12s FAILED (%s)\n", "Connect:", err)
	} else {
		fmt.Printf("    %-12s OK\n", "Connect:")
	}
}
