package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe [appliance-id...]",
	Short: "Check vendor connectivity and print appliance state",
	Long: `Lists the account's appliances and prints the reported state of the
given appliances, or of all of them when none are given. Nothing is sent
to the appliances.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.manager.Init(ctx); err != nil {
			return err
		}

		raw, err := a.client.ListAppliances(ctx)
		if err != nil {
			return fmt.Errorf("failed to list appliances: %w", err)
		}

		var appliances []struct {
			ApplianceID   string `json:"applianceId"`
			ApplianceName string `json:"applianceName"`
		}
		if err := json.Unmarshal(raw, &appliances); err != nil {
			return fmt.Errorf("unexpected appliance list: %w", err)
		}

		cmd.Printf("%s %d appliance(s)\n", okText("✓"), len(appliances))
		ids := args
		for _, ap := range appliances {
			cmd.Printf("  %s  %s  (profile %s)\n", ap.ApplianceID, ap.ApplianceName, a.registry.ProfileFor(ap.ApplianceID).Name)
			if len(args) == 0 {
				ids = append(ids, ap.ApplianceID)
			}
		}

		for _, id := range ids {
			state, err := a.client.GetApplianceState(ctx, id)
			if err != nil {
				cmd.Printf("%s %s: %v\n", badText("✗"), id, err)
				continue
			}
			temp := "-"
			if state.TargetTemperatureC != nil {
				temp = fmt.Sprintf("%.1f°C", *state.TargetTemperatureC)
			}
			ambient := "-"
			if state.AmbientTemperatureC != nil {
				ambient = fmt.Sprintf("%.1f°C", *state.AmbientTemperatureC)
			}
			cmd.Printf("%s %s: %s mode=%s target=%s ambient=%s fan=%s connection=%s\n",
				okText("✓"), id, state.ApplianceState, state.Mode, temp, ambient,
				state.FanSpeedSetting, state.ConnectionState)
		}
		return nil
	})
}
