package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// gatesCmd represents the gates command
var gatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "Inspect the completion gates",
	Long:  `Show the current hold count of the run and step gates. A non-zero count means some device still owes work.`,
	RunE:  runGates,
}

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Control steps of the active run",
}

var stepsBeginCmd = &cobra.Command{
	Use:   "begin",
	Short: "Open the next step",
	RunE: func(cmd *cobra.Command, args []string) error {
		var step struct {
			Index int `json:"index"`
		}
		if err := apiCall("POST", "/steps/begin", nil, &step); err != nil {
			return err
		}
		fmt.Printf("Step %d started\n", step.Index)
		return nil
	},
}

var stepsEndCmd = &cobra.Command{
	Use:   "end",
	Short: "Close the open step",
	Long:  `Close the open step. Blocks until no device holds the step gate anymore.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiCall("POST", "/steps/end", nil, nil); err != nil {
			return err
		}
		fmt.Println("Step closed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gatesCmd)
	rootCmd.AddCommand(stepsCmd)
	stepsCmd.AddCommand(stepsBeginCmd)
	stepsCmd.AddCommand(stepsEndCmd)
}

type gateStatus struct {
	Name     string `json:"name"`
	Count    int    `json:"count"`
	Acquired bool   `json:"acquired"`
}

func runGates(cmd *cobra.Command, args []string) error {
	var gates []gateStatus
	if err := apiCall("GET", "/gates", nil, &gates); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(gates)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Gate", "Count", "Acquired")
	for _, g := range gates {
		table.Append(g.Name, fmt.Sprintf("%d", g.Count), fmt.Sprintf("%t", g.Acquired))
	}
	table.Render()
	return nil
}
