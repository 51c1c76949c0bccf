// Command sentientosctl is the operator-facing CLI for a running
// sentientosd: injecting goals, checking supervised-service status, and
// tailing the daemon's live event stream.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mscrnt/sentientos/internal/activity"
	"github.com/mscrnt/sentientos/internal/config"
	"github.com/mscrnt/sentientos/internal/supervisor"
)

var Version = "dev"

var (
	goalPriority string
	goalSource   string
	metricsAddr  string
)

var rootCmd = &cobra.Command{
	Use:     "sentientosctl",
	Short:   "Operator CLI for the sentientos control-plane daemon",
	Version: Version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and service manifests",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		sup := supervisor.New(cfg.ManifestDir)
		if err := sup.Load(); err != nil {
			return err
		}
		fmt.Printf("startup order: %v\n", sup.StartupOrder())
		return nil
	},
}

var injectGoalCmd = &cobra.Command{
	Use:   "inject-goal [text]",
	Short: "Inject a goal into the daemon's queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		queue, err := activity.NewQueue(cfg.GoalQueuePath)
		if err != nil {
			return err
		}
		return queue.Inject(activity.Goal{
			ID:       newManualGoalID(),
			Text:     args[0],
			Source:   activity.Source(goalSource),
			Priority: activity.Priority(goalPriority),
		})
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Inspect supervised services",
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured services in startup order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		sup := supervisor.New(cfg.ManifestDir)
		if err := sup.Load(); err != nil {
			return err
		}
		for _, name := range sup.StartupOrder() {
			fmt.Println(name)
		}
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show a supervised service's process and health status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		sup := supervisor.New(cfg.ManifestDir)
		if err := sup.Load(); err != nil {
			return err
		}
		state, _ := sup.Processes().State(args[0])
		health := sup.Health().Status(args[0])
		fmt.Printf("%s: process=%s health=%d\n", args[0], state.Status, health)
		return nil
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Tail the daemon's live event stream over websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return monitor(metricsAddr)
	},
}

func init() {
	injectGoalCmd.Flags().StringVar(&goalPriority, "priority", string(activity.PriorityNormal), "goal priority (low, normal, high)")
	injectGoalCmd.Flags().StringVar(&goalSource, "source", string(activity.SourceQueue), "recorded goal source")
	monitorCmd.Flags().StringVar(&metricsAddr, "addr", "localhost:9090", "sentientosd observability address")

	serviceCmd.AddCommand(serviceListCmd, serviceStatusCmd)
	rootCmd.AddCommand(validateCmd, injectGoalCmd, serviceCmd, monitorCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newManualGoalID() string {
	return fmt.Sprintf("manual-%d", time.Now().UnixNano())
}

func monitor(addr string) error {
	url := "ws://" + strings.TrimPrefix(strings.TrimPrefix(addr, "http://"), "https://") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", url, err)
	}
	defer conn.Close()

	fmt.Printf("connected to %s, streaming events (ctrl-c to stop)\n", url)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Println(string(msg))
	}
}
