package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/acqlab/instrumentd/pkg/device"
)

var (
	deviceKind string
	deviceArgs []string
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage attached instruments",
	Long:  `Commands for listing, attaching and detaching the instruments the daemon controls.`,
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attached devices",
	RunE:  runDevicesList,
}

var devicesAttachCmd = &cobra.Command{
	Use:   "attach <name>",
	Short: "Attach and initialize a device",
	Long:  `Attach a device of the given kind. Blocks until the instrument is ready or its initialization has failed.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesAttach,
}

var devicesDetachCmd = &cobra.Command{
	Use:   "detach <name>",
	Short: "Finalize and detach a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesDetach,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesAttachCmd)
	devicesCmd.AddCommand(devicesDetachCmd)

	devicesAttachCmd.Flags().StringVar(&deviceKind, "kind", "", "device kind (required)")
	devicesAttachCmd.Flags().StringArrayVar(&deviceArgs, "arg", nil, "device argument as key=value, repeatable")
	devicesAttachCmd.MarkFlagRequired("kind")
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	var devices []device.Status
	if err := apiCall("GET", "/devices", nil, &devices); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(devices)
	}
	if len(devices) == 0 {
		fmt.Println("No devices attached")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Kind", "State", "Since", "Error")

	for _, d := range devices {
		table.Append(d.Name, d.Kind, string(d.State),
			d.Since.Format(time.RFC3339), d.Error)
	}

	table.Render()
	return nil
}

func runDevicesAttach(cmd *cobra.Command, args []string) error {
	parsed := make(map[string]interface{}, len(deviceArgs))
	for _, kv := range deviceArgs {
		key, value, ok := splitKeyValue(kv)
		if !ok {
			return fmt.Errorf("invalid argument %q, expected key=value", kv)
		}
		parsed[key] = value
	}

	var status device.Status
	req := map[string]interface{}{
		"name": args[0],
		"kind": deviceKind,
		"args": parsed,
	}
	if err := apiCall("POST", "/devices", req, &status); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(status)
	}
	fmt.Printf("Device %s is %s\n", status.Name, status.State)
	return nil
}

func runDevicesDetach(cmd *cobra.Command, args []string) error {
	if err := apiCall("DELETE", "/devices/"+args[0], nil, nil); err != nil {
		return err
	}
	fmt.Printf("Device %s detached\n", args[0])
	return nil
}

func splitKeyValue(kv string) (string, string, bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], i > 0
		}
	}
	return "", "", false
}
