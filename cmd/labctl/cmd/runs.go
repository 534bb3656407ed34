package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/acqlab/instrumentd/pkg/models"
)

var runLabel string

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage measurement runs",
	Long:  `Commands for starting, stopping and inspecting measurement runs.`,
}

var runsStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a measurement run",
	Long:  `Start a run. Blocks until every attached device has finished initializing and the run gate is clear.`,
	RunE:  runRunsStart,
}

var runsStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active run",
	Long:  `Stop the active run. Blocks until all devices have handed over their remaining data and both gates are clear.`,
	RunE:  runRunsStop,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List run history",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its steps",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsStartCmd)
	runsCmd.AddCommand(runsStopCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsStartCmd.Flags().StringVar(&runLabel, "label", "", "label for the run")
}

func runRunsStart(cmd *cobra.Command, args []string) error {
	var run models.Run
	if err := apiCall("POST", "/runs/start", map[string]string{"label": runLabel}, &run); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(run)
	}
	fmt.Printf("Run %s started\n", run.ID)
	return nil
}

func runRunsStop(cmd *cobra.Command, args []string) error {
	var run models.Run
	if err := apiCall("POST", "/runs/stop", nil, &run); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(run)
	}
	fmt.Printf("Run %s %s\n", run.ID, run.Status)
	return nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	var runs []models.Run
	if err := apiCall("GET", "/runs", nil, &runs); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Label", "Status", "Started", "Duration")

	for _, run := range runs {
		duration := "-"
		if run.StoppedAt != nil {
			duration = run.StoppedAt.Sub(run.StartedAt).Round(time.Second).String()
		}
		table.Append(run.ID, run.Label, string(run.Status),
			run.StartedAt.Format(time.RFC3339), duration)
	}

	table.Render()
	fmt.Printf("\nTotal runs: %d\n", len(runs))
	return nil
}

type runDetail struct {
	Run   models.Run    `json:"run"`
	Steps []models.Step `json:"steps"`
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	var detail runDetail
	if err := apiCall("GET", "/runs/"+args[0], nil, &detail); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(detail)
	}

	fmt.Printf("Run:     %s\n", detail.Run.ID)
	fmt.Printf("Label:   %s\n", detail.Run.Label)
	fmt.Printf("Status:  %s\n", detail.Run.Status)
	fmt.Printf("Started: %s\n", detail.Run.StartedAt.Format(time.RFC3339))
	if detail.Run.StoppedAt != nil {
		fmt.Printf("Stopped: %s\n", detail.Run.StoppedAt.Format(time.RFC3339))
	}
	if detail.Run.Error != "" {
		fmt.Printf("Error:   %s\n", detail.Run.Error)
	}

	if len(detail.Steps) > 0 {
		fmt.Println()
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Step", "Status", "Started")
		for _, step := range detail.Steps {
			table.Append(fmt.Sprintf("%d", step.Index), string(step.Status),
				step.StartedAt.Format(time.RFC3339))
		}
		table.Render()
	}
	return nil
}
