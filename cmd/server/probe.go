package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/nova-gateway/internal/session"
)

var (
	probeTarget  targetFlags
	probeTimeout time.Duration
	probeJSON    bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Connect once, identify the processor and print its state",
	Example: `  nova-gateway probe --host 192.168.0.10 --model vx4s
  nova-gateway probe --host 192.168.0.10 --model mctrl600 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
		defer cancel()

		dev, _, err := openDevice(ctx, &probeTarget, false)
		if err != nil {
			return err
		}
		defer dev.Destroy()

		st := dev.Status()
		if st.Status != session.StatusConnected {
			return errors.New(statusLine(st))
		}
		dev.Poller().PollOnce(ctx)

		if probeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"status":    st,
				"snapshot":  dev.Store().Snapshot(),
				"variables": dev.Variables(),
			})
		}
		fmt.Println(statusLine(dev.Status()))
		fmt.Print(renderVariables(dev.Variables()))
		return nil
	},
}

func init() {
	probeTarget.bind(probeCmd)
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 10*time.Second, "整体超时")
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "以 JSON 输出")
}
